package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docbed/docbed/engine/embedder"
	"github.com/docbed/docbed/engine/embedding"
	"github.com/docbed/docbed/engine/infra/store"
	"github.com/docbed/docbed/engine/pipeline"
	"github.com/docbed/docbed/engine/summarizer"
	"github.com/docbed/docbed/engine/vectordb"
	"github.com/docbed/docbed/pkg/config"
	"github.com/docbed/docbed/pkg/logger"
)

func WorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the pipeline worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			return runWorker(ctx, cfg, log)
		},
	}
}

func runWorker(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	db, err := store.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close(ctx)
	activities, err := buildActivities(store.NewStore(db), cfg, log)
	if err != nil {
		return err
	}
	temporalClient, err := pipeline.Dial(&cfg.Temporal, log)
	if err != nil {
		return err
	}
	defer temporalClient.Close()
	worker := pipeline.NewWorker(temporalClient, &cfg.Temporal, activities)
	log.Info("worker starting", "task_queue", cfg.Temporal.TaskQueue)
	return worker.Run()
}

func buildActivities(s *store.Store, cfg *config.Config, log logger.Logger) (*pipeline.Activities, error) {
	embedClient, err := embedder.NewOpenAI(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}
	embeddingSvc := embedding.NewService(s, embedClient)
	index, err := vectordb.New(&cfg.VectorDB)
	if err != nil {
		return nil, fmt.Errorf("building vector index: %w", err)
	}
	vectors := vectordb.NewManager(s, embeddingSvc, index)
	var sum summarizer.Summarizer
	if cfg.Summarizer.APIKey != "" {
		if sum, err = summarizer.NewOpenAI(cfg.Summarizer); err != nil {
			return nil, fmt.Errorf("building summarizer: %w", err)
		}
	} else {
		log.Warn("no summarizer api key configured, summarize requests will fail")
	}
	return pipeline.NewActivities(s, embeddingSvc, vectors, sum), nil
}
