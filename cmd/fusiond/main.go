package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cockpit/fusion/internal/config"
	"cockpit/fusion/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	cfg         config.Config
	logger      *zap.Logger
	logLevelCtl zap.AtomicLevel
)

var rootCmd = &cobra.Command{
	Use:   "fusiond",
	Short: "In-cabin multimodal fusion and feedback daemon",
	Long: `fusiond fuses gaze, head pose, gesture, eye state and voice labels into
scene-level events, dispatches feedback to the cabin displays and speakers,
and logs every interaction.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()

		c, err := config.Load(cfgFile, nil)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Server.LogLevel = logLevel
		}
		logger, logLevelCtl, err = logging.New(c.Server.LogLevel)
		if err != nil {
			return err
		}
		cfg = c
		logger.Debug("config loaded",
			zap.String("file", cfgFile),
			zap.String("scene", string(cfg.Fusion.InitialScene)),
			zap.String("sink", cfg.Interaction.Sink))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")

	rootCmd.AddCommand(serveCmd, replayCmd, analyzeCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
