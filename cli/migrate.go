package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docbed/docbed/engine/infra/store"
)

// MigrateCmd applies pending schema migrations and exits. NewDB already
// migrates on connect, so this exists for deployments that run schema
// changes as a separate step.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			db, err := store.NewDB(ctx, &cfg.Database)
			if err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}
			db.Close(ctx)
			log.Info("migrations applied")
			return nil
		},
	}
}
