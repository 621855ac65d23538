package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cockpit/fusion/internal/interaction"
	"cockpit/fusion/internal/personalize"
	"cockpit/fusion/internal/profile"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one personalization pass over the interaction log",
	Long: `Reads the configured interaction log (csv or sqlite), derives per-user
habits and writes them back into the profile document.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	store, err := profile.Open(cfg.Profiles.Path, logger)
	if err != nil {
		return fmt.Errorf("open profiles: %w", err)
	}

	var src interaction.Reader
	switch cfg.Interaction.Sink {
	case "sqlite":
		db, err := interaction.OpenSQLite(cfg.Interaction.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		src = db
	case "csv":
		src = interaction.CSVFile(cfg.Interaction.CSVPath)
	default:
		return fmt.Errorf("interaction.sink %q keeps no log to analyze", cfg.Interaction.Sink)
	}
	return personalize.Pass(cmd.Context(), src, store, logger)
}
