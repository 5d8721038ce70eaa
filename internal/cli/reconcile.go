package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docsearch/internal/database"
	"docsearch/internal/repository/postgres"
	"docsearch/internal/service"
)

var (
	reconcileOlderThan time.Duration
	reconcileLimit     int
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Republish jobs for documents stuck in PENDING",
	Long: `Find PENDING documents whose bytes are stored but that have not moved for
--older-than, and publish a processing job for each. Safe to run repeatedly:
workers ignore jobs for documents that are no longer PENDING.

Examples:
  docsearch reconcile
  docsearch reconcile --older-than 1h --limit 500`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().DurationVar(&reconcileOlderThan, "older-than", 10*time.Minute, "minimum time since the last update")
	reconcileCmd.Flags().IntVarP(&reconcileLimit, "limit", "n", 100, "maximum number of documents to republish")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	if cfg.Messaging.Driver == "memory" {
		return fmt.Errorf("reconcile needs a shared broker; the memory messaging driver is process-local")
	}
	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg, log, database.Options{Component: "reconcile"})
	if err != nil {
		return err
	}
	defer db.Close()

	channel, err := newChannel(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer channel.Close()

	r := service.NewReconciler(postgres.NewDocumentPostgres(db), channel, log)
	n, err := r.Sweep(ctx, reconcileOlderThan, reconcileLimit)
	fmt.Fprintf(cmd.OutOrStdout(), "republished %d document(s)\n", n)
	return err
}
