package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cockpit/fusion/internal/engine"
	"cockpit/fusion/internal/feedback"
	"cockpit/fusion/internal/interaction"
	"cockpit/fusion/internal/profile"
	"cockpit/fusion/internal/replay"
)

var (
	replayHeadless bool
	replayOut      string
)

var replayCmd = &cobra.Command{
	Use:   "replay [script.yaml]",
	Short: "Drive the fusion loop synchronously from a signal script",
	Long: `Runs a YAML signal script through a fresh engine without any network
endpoints. Each produced interaction record is printed as a JSON line, or
appended to --out as CSV.

Example:
  fusiond replay testdata/distraction.yaml --headless`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayHeadless, "headless", false, "record feedback calls instead of logging them")
	replayCmd.Flags().StringVar(&replayOut, "out", "", "append records to this CSV file")
}

func runReplay(cmd *cobra.Command, args []string) error {
	script, err := replay.Load(args[0])
	if err != nil {
		return err
	}
	store, err := profile.Open(cfg.Profiles.Path, logger)
	if err != nil {
		return fmt.Errorf("open profiles: %w", err)
	}

	var (
		sink  feedback.Sink
		audio feedback.AudioPlayer
		rec   *feedback.Recorder
	)
	if replayHeadless {
		rec = feedback.NewRecorder()
		sink, audio = rec, rec
	} else {
		console := feedback.NewConsoleSink(logger)
		sink, audio = console, console
	}
	disp := feedback.NewDispatcher(sink, audio, feedbackConfig(), logger)
	eng := engine.New(engineConfig(), engine.Deps{Profiles: store, Dispatcher: disp}, logger)

	recs, err := replay.Run(cmd.Context(), script, time.Now(), eng)
	disp.Wait()
	if err != nil {
		return fmt.Errorf("replay %s: %w", script.Name, err)
	}

	if replayOut != "" {
		w, err := interaction.OpenCSV(replayOut)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if err := w.Write(cmd.Context(), r); err != nil {
				_ = w.Close()
				return err
			}
		}
		if err := w.Close(); err != nil {
			return err
		}
	} else {
		enc := json.NewEncoder(os.Stdout)
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	}

	fields := []zap.Field{zap.String("script", script.Name), zap.Int("records", len(recs))}
	if rec != nil {
		fields = append(fields, zap.Strings("feedback_calls", rec.Methods()))
	}
	logger.Info("replay finished", fields...)
	return nil
}
