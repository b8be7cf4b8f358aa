package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"editdesk/api/internal/store"
)

func init() {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if !statusOnly {
				if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
					return err
				}
			}
			items, err := store.MigrationStatus(ctx, db, cfg.MigrationsDir)
			if err != nil {
				return err
			}
			for _, item := range items {
				state := "pending"
				if item.Applied {
					state = "applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", state, item.Version)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "Only report which migrations are applied")

	RootCmd.AddCommand(cmd)
}
