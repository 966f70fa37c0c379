package vfile

import (
	"context"
	"reflect"

	"github.com/docbed/docbed/engine/core"
)

// FileRepo owns the VFile aggregate root.
type FileRepo interface {
	// GetOrCreateFile looks up by natural key; when absent it persists
	// candidate, when present it merges candidate's metadata into the
	// existing record and writes only if something changed.
	GetOrCreateFile(ctx context.Context, candidate *VFile) (*VFile, error)
	GetFile(ctx context.Context, id core.ID) (*VFile, error)
	GetFileByKey(ctx context.Context, key SubjectKey) (*VFile, error)
	DeleteFile(ctx context.Context, id core.ID) error
}

// SplitRepo owns splits and their chunks.
type SplitRepo interface {
	// GetOrCreateSplit answers "has this file already been split this
	// way" by fingerprint lookup. A hit returns the prior split and its
	// chunks untouched; a miss creates the split plus every chunk row in
	// one transaction.
	GetOrCreateSplit(ctx context.Context, file *VFile, split *Split, chunks []*Chunk) (*Split, []*Chunk, error)
	GetSplit(ctx context.Context, id core.ID) (*Split, error)
	FindSplitByHash(ctx context.Context, fileID core.ID, configHash string) (*Split, error)
	LatestSplit(ctx context.Context, fileID core.ID) (*Split, error)
	ListChunks(ctx context.Context, splitID core.ID) ([]*Chunk, error)
	GetChunk(ctx context.Context, id core.ID) (*Chunk, error)
	// SetChunkVector stores the vector and marks the chunk complete, but
	// only when the chunk is not already complete.
	SetChunkVector(ctx context.Context, id core.ID, vector []float32) (bool, error)
	SetChunkStatus(ctx context.Context, id core.ID, status ChunkStatus) error
}

// SummaryRepo owns summary variants.
type SummaryRepo interface {
	// CreateSummaryIfAbsent writes the summary unless the (file, variant)
	// pair already exists; it reports whether a row was written.
	CreateSummaryIfAbsent(ctx context.Context, summary *Summary) (bool, error)
	ReplaceSummary(ctx context.Context, summary *Summary) error
	ListSummaries(ctx context.Context, fileID core.ID) ([]*Summary, error)
	GetSummary(ctx context.Context, fileID core.ID, variant string) (*Summary, error)
}

// CollectionRepo owns named file groupings.
type CollectionRepo interface {
	GetOrCreateCollection(ctx context.Context, name string) (*Collection, error)
	GetCollection(ctx context.Context, id core.ID) (*Collection, error)
	// AddFileToCollection attaches idempotently: a duplicate pair is a
	// silent no-op.
	AddFileToCollection(ctx context.Context, fileID, collectionID core.ID) error
}

// VectorRepo owns external vector-index handles and memberships.
type VectorRepo interface {
	GetOrCreateVector(ctx context.Context, candidate *Vector) (*Vector, error)
	FindVector(ctx context.Context, key SubjectKey, vectorType, provider string) (*Vector, error)
	GetVectorVFile(ctx context.Context, vectorID, fileID core.ID) (*VectorVFile, error)
	// CreateVectorVFile propagates a uniqueness violation unless
	// tolerateConflict marks this a reindex race.
	CreateVectorVFile(ctx context.Context, membership *VectorVFile, tolerateConflict bool) error
}

// Store aggregates every repository the pipeline consumes.
type Store interface {
	FileRepo
	SplitRepo
	SummaryRepo
	CollectionRepo
	VectorRepo
}

// MergeInfo merges candidate metadata into existing, last-write-wins per
// key, preserving existing keys absent from the candidate. It reports
// whether the merge changed anything so callers can skip the write.
func MergeInfo(existing, candidate map[string]any) (map[string]any, bool) {
	if len(candidate) == 0 {
		return existing, false
	}
	if existing == nil {
		return core.CloneMap(candidate), true
	}
	merged := core.CloneMap(existing)
	changed := false
	for k, v := range candidate {
		if prev, ok := merged[k]; !ok || !reflect.DeepEqual(prev, v) {
			merged[k] = v
			changed = true
		}
	}
	return merged, changed
}
