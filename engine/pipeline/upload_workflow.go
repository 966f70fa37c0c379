package pipeline

import (
	"fmt"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/docbed/docbed/engine/vfile"
)

// summarizeMaxAttempts bounds LLM summarization retries; a model that
// keeps producing garbage is not going to fix itself on attempt four.
const summarizeMaxAttempts = 3

// UploadWorkflow ingests one document end to end: register the file, then
// fan out collection attachment, embedding and summarization, and finally
// persist any produced summaries. Registration failure fails the run;
// every fan-out branch runs to completion and the last branch error is
// returned (fail-late). Summarizer failures are tolerated and only
// recorded in the state.
func UploadWorkflow(ctx workflow.Context, req UploadRequest) (*UploadState, error) {
	log := workflow.GetLogger(ctx)
	state := &UploadState{}
	if err := workflow.SetQueryHandler(ctx, QueryState, func() (*UploadState, error) {
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

	var file *vfile.VFile
	if err := workflow.ExecuteActivity(ctx, acts.RegisterFile, req.Doc).Get(ctx, &file); err != nil {
		state.Errors = append(state.Errors, err.Error())
		return state, err
	}
	state.VFileID = file.ID

	var branches []func(workflow.Context) error
	if req.CollectionName != "" || !req.CollectionID.IsZero() {
		branches = append(branches, func(bCtx workflow.Context) error {
			return runAttachCollection(bCtx, acts, req, state)
		})
	}
	if !req.SkipEmbedding || req.VectorType != "" {
		branches = append(branches, func(bCtx workflow.Context) error {
			return runEmbedding(bCtx, acts, req, state)
		})
	}
	var variants map[string]vfile.SummaryResult
	if req.Summarize {
		branches = append(branches, func(bCtx workflow.Context) error {
			sCtx := workflow.WithActivityOptions(bCtx, summarizeActivityOptions())
			input := SummarizeInput{VFileID: state.VFileID, Resummarize: req.Resummarize}
			err := workflow.ExecuteActivity(sCtx, acts.Summarize, input).Get(sCtx, &variants)
			if err != nil {
				// Summaries are best effort; the upload stands without them.
				log.Error("summarization failed", "vfile_id", state.VFileID, "error", err)
				state.Errors = append(state.Errors, fmt.Sprintf("summarize: %s", err))
			}
			return nil
		})
	}

	var lastErr error
	sem := workflow.NewSemaphore(ctx, int64(concurrencyLimit(req.MaxConcurrency)))
	done := 0
	for i := range branches {
		branch := branches[i]
		workflow.Go(ctx, func(gCtx workflow.Context) {
			defer func() { done++ }()
			if err := sem.Acquire(gCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			if err := branch(gCtx); err != nil {
				state.Errors = append(state.Errors, err.Error())
				lastErr = err
			}
		})
	}
	if err := workflow.Await(ctx, func() bool { return done == len(branches) }); err != nil {
		return state, err
	}

	if len(variants) > 0 {
		input := PersistSummariesInput{
			VFileID:  state.VFileID,
			Variants: variants,
			Replace:  req.Resummarize,
		}
		if err := workflow.ExecuteActivity(ctx, acts.PersistSummaries, input).
			Get(ctx, &state.SummaryIDs); err != nil {
			log.Error("persisting summaries failed", "vfile_id", state.VFileID, "error", err)
			state.Errors = append(state.Errors, fmt.Sprintf("persist summaries: %s", err))
		}
	}

	state.Ready = true
	if lastErr != nil {
		return state, lastErr
	}
	return state, nil
}

func summarizeActivityOptions() workflow.ActivityOptions {
	opts := defaultActivityOptions()
	opts.RetryPolicy = &temporal.RetryPolicy{
		InitialInterval:    opts.RetryPolicy.InitialInterval,
		BackoffCoefficient: opts.RetryPolicy.BackoffCoefficient,
		MaximumInterval:    opts.RetryPolicy.MaximumInterval,
		MaximumAttempts:    summarizeMaxAttempts,
	}
	return opts
}

func runAttachCollection(
	ctx workflow.Context,
	acts *Activities,
	req UploadRequest,
	state *UploadState,
) error {
	input := AttachCollectionInput{
		VFileID:        state.VFileID,
		CollectionID:   req.CollectionID,
		CollectionName: req.CollectionName,
	}
	var collection *vfile.Collection
	if err := workflow.ExecuteActivity(ctx, acts.AttachCollection, input).Get(ctx, &collection); err != nil {
		return fmt.Errorf("attach collection: %w", err)
	}
	state.CollectionID = collection.ID
	return nil
}

func runEmbedding(
	ctx workflow.Context,
	acts *Activities,
	req UploadRequest,
	state *UploadState,
) error {
	child := EmbeddingRequest{
		VFileID:        state.VFileID,
		Config:         req.Config,
		Skip:           req.SkipEmbedding,
		MaxConcurrency: req.MaxConcurrency,
	}
	var embState *EmbeddingState
	if err := workflow.ExecuteChildWorkflow(ctx, EmbeddingWorkflow, child).Get(ctx, &embState); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	state.SplitID = embState.SplitID
	state.Chunks = embState.Chunks
	if failed := embState.Failed(); failed > 0 && !req.SkipEmbedding {
		return fmt.Errorf("embedding: %d of %d chunks failed", failed, embState.Parts)
	}
	if req.VectorType == "" {
		return nil
	}
	input := AttachVectorInput{
		VFileID:    state.VFileID,
		VectorType: req.VectorType,
		Config:     req.splitConfig(),
		Reindex:    req.Reindex,
	}
	var vector *vfile.Vector
	if err := workflow.ExecuteActivity(ctx, acts.AttachVector, input).Get(ctx, &vector); err != nil {
		return fmt.Errorf("attach vector: %w", err)
	}
	state.VectorID = vector.ID
	return nil
}
