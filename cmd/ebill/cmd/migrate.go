// Package cmd - schema migrations
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bher20/ebill/internal/migrate"
)

func newMigrateCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema (postgres and postgrespool drivers)",
		Long: `Apply or inspect the versioned Postgres schema.

The sqlite and postgres drivers also migrate automatically when opened;
these commands are for operators who manage the schema explicitly.`,
	}

	c.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := migrate.Up(cmd.Context(), a.cfg.DBDriver, a.cfg.DBDSN); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Schema is up to date")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := migrate.Down(cmd.Context(), a.cfg.DBDriver, a.cfg.DBDSN); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Rolled back one migration")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the state of every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate.Status(cmd.Context(), a.cfg.DBDriver, a.cfg.DBDSN)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the embedded migration files",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				files, err := migrate.Migrations()
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
				return nil
			},
		},
	)
	return c
}
