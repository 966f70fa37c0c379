package pipeline

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/docbed/docbed/engine/vfile"
)

const (
	// TaskQueue is the Temporal task queue every docbed worker polls.
	TaskQueue = "docbed-queue"

	// DefaultMaxConcurrency caps fan-out branches per workflow run.
	DefaultMaxConcurrency = 10

	QueryState = "state"
	QueryReady = "ready"
)

func defaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout:    2 * time.Hour,
		ScheduleToCloseTimeout: 24 * time.Hour,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
		},
	}
}

func concurrencyLimit(requested int) int {
	if requested > 0 {
		return requested
	}
	return DefaultMaxConcurrency
}

// EmbeddingWorkflow splits a file and embeds every pending chunk. Replays
// and retries are harmless: the split deduplicates by fingerprint and a
// completed chunk is never re-embedded. Per-chunk failures are collected
// in the result instead of failing the run.
func EmbeddingWorkflow(ctx workflow.Context, req EmbeddingRequest) (*EmbeddingState, error) {
	log := workflow.GetLogger(ctx)
	state := &EmbeddingState{VFileID: req.VFileID}
	if err := workflow.SetQueryHandler(ctx, QueryState, func() (*EmbeddingState, error) {
		return state, nil
	}); err != nil {
		return state, err
	}
	if err := workflow.SetQueryHandler(ctx, QueryReady, func() (bool, error) {
		return state.Ready, nil
	}); err != nil {
		return state, err
	}
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())
	var acts *Activities
	if state.VFileID.IsZero() {
		var file *vfile.VFile
		key := vfile.SubjectKey{SubjectID: req.SubjectID, SubjectType: req.SubjectType}
		if err := workflow.ExecuteActivity(ctx, acts.ResolveFile, key).Get(ctx, &file); err != nil {
			return state, err
		}
		state.VFileID = file.ID
	}
	var out SplitOutput
	input := SplitInput{VFileID: state.VFileID, Config: req.splitConfig(), Skip: req.Skip}
	if err := workflow.ExecuteActivity(ctx, acts.GetOrCreateSplit, input).Get(ctx, &out); err != nil {
		return state, err
	}
	state.SplitID = out.Split.ID
	state.Parts = out.Split.Parts
	if req.Skip {
		state.Ready = true
		return state, nil
	}
	pending := make([]*vfile.Chunk, 0, len(out.Chunks))
	for _, chunk := range out.Chunks {
		if chunk.Status != vfile.ChunkStatusComplete {
			pending = append(pending, chunk)
		} else {
			state.Chunks = append(state.Chunks, ChunkResult{
				ChunkID:    chunk.ID,
				PartNumber: chunk.PartNumber,
				Status:     chunk.Status,
			})
		}
	}
	sem := workflow.NewSemaphore(ctx, int64(concurrencyLimit(req.MaxConcurrency)))
	done := 0
	for i := range pending {
		chunk := pending[i]
		workflow.Go(ctx, func(gCtx workflow.Context) {
			defer func() { done++ }()
			if err := sem.Acquire(gCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			var result *ChunkResult
			err := workflow.ExecuteActivity(gCtx, acts.EmbedChunk, chunk.ID).Get(gCtx, &result)
			if err != nil {
				log.Error("chunk embedding failed",
					"chunk_id", chunk.ID, "part_number", chunk.PartNumber, "error", err)
				state.Chunks = append(state.Chunks, ChunkResult{
					ChunkID:    chunk.ID,
					PartNumber: chunk.PartNumber,
					Status:     vfile.ChunkStatusError,
					Err:        err.Error(),
				})
				return
			}
			state.Chunks = append(state.Chunks, *result)
		})
	}
	if err := workflow.Await(ctx, func() bool { return done == len(pending) }); err != nil {
		return state, err
	}
	state.Ready = true
	return state, nil
}
