// Package cli wires configuration, adapters and services into the docsearch commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"docsearch/internal/config"
	"docsearch/internal/logger"
)

var (
	cfgFile string
	cfg     *config.AppConfig
	log     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "docsearch",
	Short: "PDF ingestion and semantic search service",
	Long: `docsearch stores uploaded PDFs, extracts their text, embeds it and serves
semantic search over each owner's documents.

Example usage:
  docsearch migrate                        # Create the documents schema
  docsearch api                            # Serve the HTTP API
  docsearch worker                         # Consume processing jobs
  docsearch reconcile --older-than 15m     # Republish stuck PENDING documents`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
				return err
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log = logger.New(cfg.Log, os.Stdout)
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
}
