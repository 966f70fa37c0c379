package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/embedding"
	"github.com/docbed/docbed/engine/split"
	"github.com/docbed/docbed/engine/summarizer"
	"github.com/docbed/docbed/engine/vectordb"
	"github.com/docbed/docbed/engine/vfile"
	"github.com/docbed/docbed/pkg/logger"
)

// Error types attached to non-retryable application errors so workflows
// and callers can tell a bad request from a transient failure.
const (
	ErrTypeInvalidConfig = "INVALID_CONFIG"
	ErrTypeNotFound      = "NOT_FOUND"
	ErrTypeConflict      = "CONFLICT"
)

// Activities is the full activity set registered on the worker. All
// database and provider I/O lives here; workflows stay deterministic.
type Activities struct {
	store      vfile.Store
	embedding  *embedding.Service
	vectors    *vectordb.Manager
	summarizer summarizer.Summarizer
}

func NewActivities(
	store vfile.Store,
	embeddingSvc *embedding.Service,
	vectors *vectordb.Manager,
	summarizerImpl summarizer.Summarizer,
) *Activities {
	return &Activities{
		store:      store,
		embedding:  embeddingSvc,
		vectors:    vectors,
		summarizer: summarizerImpl,
	}
}

// asActivityError maps domain sentinels onto non-retryable application
// errors; anything else stays retryable.
func asActivityError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrInvalidConfig):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidConfig, err)
	case errors.Is(err, core.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotFound, err)
	case errors.Is(err, core.ErrConflict):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeConflict, err)
	default:
		return err
	}
}

// RegisterFile persists the uploaded document, or merges its metadata
// into the existing record with the same subject key.
func (a *Activities) RegisterFile(ctx context.Context, doc Doc) (*vfile.VFile, error) {
	candidate := &vfile.VFile{
		SubjectID:         doc.SubjectID,
		SubjectType:       doc.SubjectType,
		Source:            doc.Source,
		SourceFilename:    doc.SourceFilename,
		SourceContentType: doc.SourceContentType,
		SourceCreatedAt:   doc.SourceCreatedAt,
		Pages:             doc.Pages,
		Info:              doc.Info,
	}
	if candidate.SubjectID == "" || candidate.SubjectType == "" {
		return nil, temporal.NewNonRetryableApplicationError(
			"document needs a subject id and type", ErrTypeInvalidConfig, nil)
	}
	candidate.Tokens = vfile.CountTokens(candidate.Content())
	file, err := a.store.GetOrCreateFile(ctx, candidate)
	if err != nil {
		return nil, asActivityError(err)
	}
	logger.FromContext(ctx).Debug("registered file",
		"vfile_id", file.ID, "subject_type", file.SubjectType, "subject_id", file.SubjectID)
	return file, nil
}

// ResolveFile looks up a file by subject key. A missing file is a
// data-integrity problem the caller has to fix, so it never retries.
func (a *Activities) ResolveFile(ctx context.Context, key vfile.SubjectKey) (*vfile.VFile, error) {
	file, err := a.store.GetFileByKey(ctx, key)
	if err != nil {
		return nil, asActivityError(err)
	}
	return file, nil
}

// SplitInput parameterizes GetOrCreateSplit.
type SplitInput struct {
	VFileID core.ID      `json:"vfile_id"`
	Config  split.Config `json:"config"`
	Skip    bool         `json:"skip"`
}

// SplitOutput carries the persisted split plus its chunk rows.
type SplitOutput struct {
	Split  *vfile.Split   `json:"split"`
	Chunks []*vfile.Chunk `json:"chunks"`
}

// GetOrCreateSplit is the idempotency anchor of the embedding pipeline:
// the same file and config always resolve to the same split and chunks.
func (a *Activities) GetOrCreateSplit(ctx context.Context, input SplitInput) (*SplitOutput, error) {
	file, err := a.store.GetFile(ctx, input.VFileID)
	if err != nil {
		return nil, asActivityError(err)
	}
	sp, chunks, err := a.embedding.PrepareSplit(ctx, file, input.Config, input.Skip)
	if err != nil {
		return nil, asActivityError(err)
	}
	return &SplitOutput{Split: sp, Chunks: chunks}, nil
}

// EmbedChunk embeds one chunk at most once; a chunk that completed in an
// earlier attempt or a sibling run comes back untouched.
func (a *Activities) EmbedChunk(ctx context.Context, chunkID core.ID) (*ChunkResult, error) {
	chunk, err := a.embedding.EmbedChunk(ctx, chunkID)
	if err != nil {
		return nil, asActivityError(err)
	}
	return &ChunkResult{
		ChunkID:    chunk.ID,
		PartNumber: chunk.PartNumber,
		Status:     chunk.Status,
	}, nil
}

// AttachCollectionInput identifies the target collection by id or name.
type AttachCollectionInput struct {
	VFileID        core.ID `json:"vfile_id"`
	CollectionID   core.ID `json:"collection_id,omitempty"`
	CollectionName string  `json:"collection_name,omitempty"`
}

// AttachCollection links the file into a collection, creating a named
// collection on first use. Re-attaching is a no-op.
func (a *Activities) AttachCollection(
	ctx context.Context,
	input AttachCollectionInput,
) (*vfile.Collection, error) {
	var collection *vfile.Collection
	var err error
	switch {
	case !input.CollectionID.IsZero():
		collection, err = a.store.GetCollection(ctx, input.CollectionID)
	case input.CollectionName != "":
		collection, err = a.store.GetOrCreateCollection(ctx, input.CollectionName)
	default:
		return nil, temporal.NewNonRetryableApplicationError(
			"collection id or name is required", ErrTypeInvalidConfig, nil)
	}
	if err != nil {
		return nil, asActivityError(err)
	}
	if err := a.store.AddFileToCollection(ctx, input.VFileID, collection.ID); err != nil {
		return nil, asActivityError(err)
	}
	return collection, nil
}

// AttachVectorInput parameterizes AttachVector.
type AttachVectorInput struct {
	VFileID    core.ID      `json:"vfile_id"`
	VectorType string       `json:"vector_type"`
	Config     split.Config `json:"config"`
	Reindex    bool         `json:"reindex"`
}

// AttachVector indexes the file's embeddings into the external vector
// store under the subject's vector handle.
func (a *Activities) AttachVector(ctx context.Context, input AttachVectorInput) (*vfile.Vector, error) {
	file, err := a.store.GetFile(ctx, input.VFileID)
	if err != nil {
		return nil, asActivityError(err)
	}
	vector, err := a.vectors.GetOrCreateVector(ctx, file.Key(), input.VectorType)
	if err != nil {
		return nil, asActivityError(err)
	}
	if err := a.vectors.AddFilesToVector(
		ctx, vector, []core.ID{file.ID}, input.Config, input.Reindex,
	); err != nil {
		return nil, asActivityError(err)
	}
	return vector, nil
}

// SummarizeInput parameterizes Summarize.
type SummarizeInput struct {
	VFileID     core.ID `json:"vfile_id"`
	Resummarize bool    `json:"resummarize"`
}

// Summarize produces the missing summary variants for a file. When every
// variant already exists and no regeneration was requested, it returns an
// empty map without touching the LLM.
func (a *Activities) Summarize(
	ctx context.Context,
	input SummarizeInput,
) (map[string]vfile.SummaryResult, error) {
	if !input.Resummarize {
		existing, err := a.store.ListSummaries(ctx, input.VFileID)
		if err != nil {
			return nil, asActivityError(err)
		}
		present := make(map[string]bool, len(existing))
		for _, summary := range existing {
			present[summary.VariantName] = true
		}
		if present[summarizer.VariantMachine] && present[summarizer.VariantPretty] {
			return map[string]vfile.SummaryResult{}, nil
		}
	}
	if a.summarizer == nil {
		return nil, temporal.NewNonRetryableApplicationError(
			"no summarizer configured", ErrTypeInvalidConfig, nil)
	}
	file, err := a.store.GetFile(ctx, input.VFileID)
	if err != nil {
		return nil, asActivityError(err)
	}
	variants, err := a.summarizer.Summarize(ctx, file.Content())
	if err != nil {
		return nil, fmt.Errorf("summarizing file %s: %w", input.VFileID, err)
	}
	return variants, nil
}

// PersistSummariesInput parameterizes PersistSummaries.
type PersistSummariesInput struct {
	VFileID  core.ID                        `json:"vfile_id"`
	Variants map[string]vfile.SummaryResult `json:"variants"`
	// Replace overwrites variants that were just regenerated; otherwise a
	// variant that appeared concurrently wins and stays.
	Replace bool `json:"replace"`
}

// PersistSummaries writes the produced variants and returns their ids.
func (a *Activities) PersistSummaries(
	ctx context.Context,
	input PersistSummariesInput,
) ([]core.ID, error) {
	ids := make([]core.ID, 0, len(input.Variants))
	for variant, result := range input.Variants {
		summary := &vfile.Summary{
			ID:          core.MustNewID(),
			VFileID:     input.VFileID,
			VariantName: variant,
			SummaryText: result.ShortVersion,
			Description: result.Description,
			Title:       result.Title,
			Tags:        result.Tags,
			Language:    result.Language,
			Tokens:      vfile.CountTokens(result.ShortVersion),
		}
		if input.Replace {
			if err := a.store.ReplaceSummary(ctx, summary); err != nil {
				return nil, asActivityError(err)
			}
		} else {
			if _, err := a.store.CreateSummaryIfAbsent(ctx, summary); err != nil {
				return nil, asActivityError(err)
			}
		}
		stored, err := a.store.GetSummary(ctx, input.VFileID, variant)
		if err != nil {
			return nil, asActivityError(err)
		}
		ids = append(ids, stored.ID)
	}
	return ids, nil
}
