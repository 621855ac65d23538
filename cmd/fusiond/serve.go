package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"cockpit/fusion/internal/api"
	"cockpit/fusion/internal/engine"
	"cockpit/fusion/internal/feedback"
	"cockpit/fusion/internal/health"
	"cockpit/fusion/internal/ingest"
	"cockpit/fusion/internal/interaction"
	"cockpit/fusion/internal/panel"
	"cockpit/fusion/internal/personalize"
	"cockpit/fusion/internal/profile"
	"cockpit/fusion/internal/types"
)

const (
	frameBuffer     = 64
	shutdownTimeout = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fusion loop with the HTTP, panel and gRPC ingest endpoints",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// logSink is the configured interaction log: the durable writer, the reader
// the personalization pass analyzes, and the in-memory tail behind /records.
type logSink struct {
	writer interaction.Writer
	reader interaction.Reader
	recent *interaction.MemoryWriter
	path   string
}

func openLogSink() (logSink, error) {
	mem := interaction.NewMemory(cfg.Interaction.MemoryCap)
	switch cfg.Interaction.Sink {
	case "memory":
		return logSink{writer: mem, reader: mem, recent: mem}, nil
	case "sqlite":
		w, err := interaction.OpenSQLite(cfg.Interaction.SQLitePath)
		if err != nil {
			return logSink{}, err
		}
		return logSink{writer: interaction.Tee{w, mem}, reader: w, recent: mem, path: cfg.Interaction.SQLitePath}, nil
	default:
		w, err := interaction.OpenCSV(cfg.Interaction.CSVPath)
		if err != nil {
			return logSink{}, err
		}
		return logSink{
			writer: interaction.Tee{w, mem},
			reader: interaction.CSVFile(cfg.Interaction.CSVPath),
			recent: mem,
			path:   cfg.Interaction.CSVPath,
		}, nil
	}
}

func feedbackConfig() feedback.Config {
	fc := feedback.DefaultConfig()
	fc.Lang = cfg.Feedback.Lang
	fc.PassiveVoiceFallback = cfg.Feedback.PassiveVoiceFallback
	fc.UrgentBoost = cfg.Feedback.UrgentVolumeBoost
	fc.VolumeCap = cfg.Feedback.VolumeCap
	if cfg.Feedback.ChannelTimeout > 0 {
		fc.CallTimeout = cfg.Feedback.ChannelTimeout
	}
	return fc
}

func engineConfig() engine.Config {
	ec := engine.Config{
		InitialScene: cfg.Fusion.InitialScene,
		InitialUser:  cfg.Fusion.InitialUser,
		VoiceQueue:   cfg.Fusion.VoiceQueue,
		IdleTick:     cfg.Fusion.IdleTick,
	}
	ec.Debounce.GazeOffThreshold = cfg.Fusion.GazeOffThreshold
	ec.Debounce.EyesClosedThreshold = cfg.Fusion.EyesClosedThreshold
	ec.Debounce.HeadHold = cfg.Fusion.HeadHold
	ec.Scene.UnresponsiveAfter = cfg.Fusion.WarningUnresponsive
	return ec
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := profile.Open(cfg.Profiles.Path, logger)
	if err != nil {
		return fmt.Errorf("open profiles: %w", err)
	}
	watcher, err := profile.NewWatcher(store, logger, 0)
	if err != nil {
		return fmt.Errorf("watch profiles: %w", err)
	}

	sink, err := openLogSink()
	if err != nil {
		return fmt.Errorf("open interaction log: %w", err)
	}
	records := interaction.NewLogger(sink.writer, cfg.Interaction.Queue, logger)

	hub := panel.NewHub(panel.DefaultOutbox, logger)
	console := feedback.NewConsoleSink(logger)
	screen := panel.NewSink(hub)
	disp := feedback.NewDispatcher(
		feedback.Multi{console, screen},
		feedback.MultiAudio{console, screen},
		feedbackConfig(), logger)

	eng := engine.New(engineConfig(), engine.Deps{Profiles: store, Dispatcher: disp, Records: records}, logger)
	eng.OnSnapshot(hub.PublishSnapshot)

	frames := make(chan types.Frame, frameBuffer)
	ing := ingest.NewServer(frames, eng, logger)
	ing.TokenSecret = cfg.Auth.TokenSecret
	ing.TokenSkewSecs = cfg.Auth.TokenSkewSecs
	gs := grpc.NewServer()
	ingest.Register(gs, ing)

	h := api.NewHandlers(api.Options{
		TokenSecret: cfg.Auth.TokenSecret,
		TokenTTL:    cfg.Auth.TokenTTL,
		Health:      health.Deps{Profiles: store, Engine: eng, LogPath: sink.path},
	}, eng, store, sink.recent, logger)
	ps := &panel.Server{Hub: hub, Ctl: eng, TokenSecret: cfg.Auth.TokenSecret, TokenSkewSecs: cfg.Auth.TokenSkewSecs, Log: logger}

	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h, ps.HandleWS))
	mux.Handle("/loglevel", logLevelCtl)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.LogMiddleware(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// The record writer outlives the group so outcomes from the last ticks
	// and in-flight dispatches are still flushed.
	logCtx, logCancel := context.WithCancel(context.Background())
	go records.Run(logCtx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx, frames) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		if err := watcher.Start(gctx); err != nil {
			return fmt.Errorf("watch profiles: %w", err)
		}
		<-gctx.Done()
		watcher.Stop()
		return nil
	})
	g.Go(func() error {
		return personalize.Run(gctx, cfg.Personalize.Interval, sink.reader, store, logger)
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.Ingest.Addr)
		if err != nil {
			return fmt.Errorf("ingest listen: %w", err)
		}
		logger.Info("ingest listening", zap.String("addr", cfg.Ingest.Addr))
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("ingest: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		stopGRPC(gs, shutdownTimeout)
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	disp.Wait()
	logCancel()
	<-records.Done()
	logger.Info("stopped",
		zap.Uint64("records_written", records.Written()),
		zap.Uint64("records_dropped", records.Dropped()))
	return err
}

// stopGRPC drains gracefully, then forces open ingest streams closed, since
// a connected signal source never ends its stream on its own.
func stopGRPC(gs *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		gs.Stop()
		<-done
	}
}
