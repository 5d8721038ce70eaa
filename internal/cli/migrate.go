package cli

import (
	"github.com/spf13/cobra"

	"docsearch/internal/database"
	"docsearch/internal/database/migration"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the documents schema and the pgvector extension",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.NewPostgres(cmd.Context(), cfg.Database, database.Options{Component: "migrate"})
		if err != nil {
			return err
		}
		defer db.Close()

		return migration.EnsureMigrated(cmd.Context(), db, log, cfg.Database.Host)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
