package main

import (
	"fmt"

	"github.com/spf13/cobra"

	convomemdb "github.com/convomem/convomem/pkg/db"
	"github.com/convomem/convomem/pkg/db/migrations"
)

var dbStatusCmd = &cobra.Command{
	Use:   "db-status",
	Short: "Open the database and report its schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := convomemdb.Open(cmd.Context(), convomemdb.Options{Path: cfg.DBPath, ReadOnly: true})
		if err != nil {
			return err
		}
		defer store.Close()

		runner := convomemdb.NewMigrationRunner(store.DB())
		version, err := runner.CurrentVersion(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("schema version: %d (latest known: %d)\n", version, convomemdb.LatestSchemaVersion)
		return nil
	},
}

var dbRollbackTarget int64

var dbRollbackCmd = &cobra.Command{
	Use:   "db-rollback",
	Short: "Roll the schema back to an earlier version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := convomemdb.Open(cmd.Context(), convomemdb.Options{Path: cfg.DBPath})
		if err != nil {
			return err
		}
		defer store.Close()

		runner := convomemdb.NewMigrationRunner(store.DB())
		if err := runner.RollbackTo(cmd.Context(), migrations.All(), dbRollbackTarget); err != nil {
			return err
		}
		fmt.Printf("rolled back to schema version %d\n", dbRollbackTarget)
		return nil
	},
}

func init() {
	dbRollbackCmd.Flags().Int64Var(&dbRollbackTarget, "target", 0, "schema version to roll back to")
}
