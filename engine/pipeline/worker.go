package pipeline

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/docbed/docbed/pkg/logger"
)

// TemporalConfig holds the connection settings for the Temporal cluster.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

func (c *TemporalConfig) queue() string {
	if c.TaskQueue == "" {
		return TaskQueue
	}
	return c.TaskQueue
}

// Dial connects to Temporal with the application logger wired in.
func Dial(cfg *TemporalConfig, log logger.Logger) (client.Client, error) {
	options := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    log,
	}
	temporalClient, err := client.Dial(options)
	if err != nil {
		return nil, fmt.Errorf("connecting to temporal: %w", err)
	}
	return temporalClient, nil
}

// Worker polls the task queue and executes the pipeline workflows.
type Worker struct {
	worker worker.Worker
}

// NewWorker registers both workflows and the activity set.
func NewWorker(c client.Client, cfg *TemporalConfig, activities *Activities) *Worker {
	w := worker.New(c, cfg.queue(), worker.Options{})
	w.RegisterWorkflow(UploadWorkflow)
	w.RegisterWorkflow(EmbeddingWorkflow)
	w.RegisterActivity(activities.RegisterFile)
	w.RegisterActivity(activities.ResolveFile)
	w.RegisterActivity(activities.GetOrCreateSplit)
	w.RegisterActivity(activities.EmbedChunk)
	w.RegisterActivity(activities.AttachCollection)
	w.RegisterActivity(activities.AttachVector)
	w.RegisterActivity(activities.Summarize)
	w.RegisterActivity(activities.PersistSummaries)
	return &Worker{worker: w}
}

// Run blocks until the interrupt channel closes.
func (w *Worker) Run() error {
	return w.worker.Run(worker.InterruptCh())
}

// Start runs the worker without blocking.
func (w *Worker) Start() error {
	return w.worker.Start()
}

func (w *Worker) Stop() {
	w.worker.Stop()
}
