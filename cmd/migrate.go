/*
Package main provides the CLI commands for managing the SQLite ledger schema.
This includes commands for applying and rolling back migrations.
*/

package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/blnkfinance/inspectsync/config"
	"github.com/blnkfinance/inspectsync/ledger"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

func migrateCommands(_ *appInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "manage the sqlite ledger schema",
	}

	cmd.AddCommand(migrateDirectionCommand("up", migrate.Up, "Applied %d migrations!\n"))
	cmd.AddCommand(migrateDirectionCommand("down", migrate.Down, "Rolled back %d migrations!\n"))

	return cmd
}

func migrateDirectionCommand(use string, direction migrate.MigrationDirection, done string) *cobra.Command {
	return &cobra.Command{
		Use: use,
		RunE: func(cmd *cobra.Command, args []string) error {
			cnf, err := config.Fetch()
			if err != nil {
				return fmt.Errorf("error fetching config: %w", err)
			}
			if cnf.Ledger.Driver != config.LedgerDriverSQLite {
				return errors.New("migrations apply to the sqlite ledger only; set ledger.driver to sqlite")
			}

			db, err := sql.Open("sqlite3", cnf.Ledger.Dns)
			if err != nil {
				return fmt.Errorf("error connecting to ledger database: %w", err)
			}
			defer db.Close()

			n, err := ledger.Migrate(db, direction)
			if err != nil {
				return fmt.Errorf("error migrating %s: %w", use, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), done, n)
			return nil
		},
	}
}
