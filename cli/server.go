package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docbed/docbed/engine/infra/store"
	"github.com/docbed/docbed/engine/pipeline"
	"github.com/docbed/docbed/engine/search"
	"github.com/docbed/docbed/engine/server"
	"github.com/docbed/docbed/pkg/config"
	"github.com/docbed/docbed/pkg/logger"
)

func ServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			return runServer(ctx, cfg, log)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	db, err := store.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close(ctx)
	temporalClient, err := pipeline.Dial(&cfg.Temporal, log)
	if err != nil {
		return err
	}
	defer temporalClient.Close()
	s := store.NewStore(db)
	jobs := pipeline.NewService(temporalClient, cfg.Temporal.TaskQueue)
	docs := search.NewManager(s)
	srv := server.NewServer(&cfg.Server, jobs, docs)
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(runCtx)
}
