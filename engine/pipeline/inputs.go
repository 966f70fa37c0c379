package pipeline

import (
	"time"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/split"
	"github.com/docbed/docbed/engine/vfile"
)

// Doc is the caller-supplied document payload for an upload.
type Doc struct {
	SubjectID         string         `json:"subject_id"`
	SubjectType       string         `json:"subject_type"`
	Source            string         `json:"source"`
	SourceFilename    string         `json:"source_filename"`
	SourceContentType string         `json:"source_content_type"`
	SourceCreatedAt   *time.Time     `json:"source_created_at,omitempty"`
	Pages             []string       `json:"pages"`
	Info              map[string]any `json:"info,omitempty"`
}

// UploadRequest drives one UploadWorkflow run.
type UploadRequest struct {
	Doc            Doc           `json:"doc"`
	Config         *split.Config `json:"config,omitempty"`
	SkipEmbedding  bool          `json:"skip_embedding"`
	CollectionName string        `json:"collection_name,omitempty"`
	CollectionID   core.ID       `json:"collection_id,omitempty"`
	// VectorType, when set, pushes the file's embeddings into the external
	// vector index under this logical type.
	VectorType     string `json:"vector_type,omitempty"`
	Reindex        bool   `json:"reindex"`
	Summarize      bool   `json:"summarize"`
	Resummarize    bool   `json:"resummarize"`
	MaxConcurrency int    `json:"max_concurrency,omitempty"`
}

// UploadState is the accumulated outcome of an upload, also served by the
// workflow's state query while the run is still in flight.
type UploadState struct {
	VFileID      core.ID       `json:"vfile_id,omitempty"`
	SplitID      core.ID       `json:"split_id,omitempty"`
	CollectionID core.ID       `json:"collection_id,omitempty"`
	VectorID     core.ID       `json:"vector_id,omitempty"`
	SummaryIDs   []core.ID     `json:"summary_ids,omitempty"`
	Chunks       []ChunkResult `json:"chunks,omitempty"`
	Errors       []string      `json:"errors,omitempty"`
	Ready        bool          `json:"ready"`
}

// EmbeddingRequest drives one EmbeddingWorkflow run. Either VFileID or the
// subject key must identify an existing file.
type EmbeddingRequest struct {
	VFileID        core.ID       `json:"vfile_id,omitempty"`
	SubjectID      string        `json:"subject_id,omitempty"`
	SubjectType    string        `json:"subject_type,omitempty"`
	Config         *split.Config `json:"config,omitempty"`
	Skip           bool          `json:"skip"`
	MaxConcurrency int           `json:"max_concurrency,omitempty"`
}

// ChunkResult is the per-chunk outcome of an embedding fan-out.
type ChunkResult struct {
	ChunkID    core.ID           `json:"chunk_id"`
	PartNumber int               `json:"part_number"`
	Status     vfile.ChunkStatus `json:"status"`
	Err        string            `json:"error,omitempty"`
}

// EmbeddingState is the result of an EmbeddingWorkflow and its state query.
type EmbeddingState struct {
	VFileID core.ID       `json:"vfile_id,omitempty"`
	SplitID core.ID       `json:"split_id,omitempty"`
	Parts   int           `json:"parts"`
	Chunks  []ChunkResult `json:"chunks,omitempty"`
	Ready   bool          `json:"ready"`
}

// Failed reports how many chunks did not reach the complete state.
func (s *EmbeddingState) Failed() int {
	failed := 0
	for _, chunk := range s.Chunks {
		if chunk.Status != vfile.ChunkStatusComplete {
			failed++
		}
	}
	return failed
}

func (r *EmbeddingRequest) splitConfig() split.Config {
	if r.Config != nil {
		return r.Config.Normalized()
	}
	return split.DefaultConfig()
}

func (r *UploadRequest) splitConfig() split.Config {
	if r.Config != nil {
		return r.Config.Normalized()
	}
	return split.DefaultConfig()
}
