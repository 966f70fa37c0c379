package vfile

import (
	"strings"
	"time"

	"github.com/docbed/docbed/engine/core"
)

// ChunkStatus tracks the embedding lifecycle of one chunk. A chunk only
// ever moves new|skip|error -> complete; complete is terminal.
type ChunkStatus string

const (
	ChunkStatusNew      ChunkStatus = "new"
	ChunkStatusSkip     ChunkStatus = "skip"
	ChunkStatusError    ChunkStatus = "error"
	ChunkStatusComplete ChunkStatus = "complete"
)

// Pending reports whether the chunk still needs an embedding.
func (s ChunkStatus) Pending() bool {
	return s == ChunkStatusNew || s == ChunkStatusSkip || s == ChunkStatusError
}

// SubjectKey is the natural identity of an ingested document.
type SubjectKey struct {
	SubjectID   string `json:"subject_id"`
	SubjectType string `json:"subject_type"`
}

// VFile is the canonical record of one ingested document, the aggregate
// root owning splits, summaries and memberships.
type VFile struct {
	ID                core.ID        `json:"id"                  db:"id"`
	SubjectID         string         `json:"subject_id"          db:"subject_id"`
	SubjectType       string         `json:"subject_type"        db:"subject_type"`
	Source            string         `json:"source"              db:"source"`
	SourceFilename    string         `json:"source_filename"     db:"source_filename"`
	SourceContentType string         `json:"source_content_type" db:"source_content_type"`
	SourceCreatedAt   *time.Time     `json:"source_created_at"   db:"source_created_at"`
	Pages             []string       `json:"pages"               db:"pages"`
	Info              map[string]any `json:"info"                db:"info"`
	Tokens            int            `json:"tokens"              db:"tokens"`
	CreatedAt         time.Time      `json:"created_at"          db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"          db:"updated_at"`
}

// Key returns the file's natural identity.
func (f *VFile) Key() SubjectKey {
	return SubjectKey{SubjectID: f.SubjectID, SubjectType: f.SubjectType}
}

// Content returns the flattened text of all pages.
func (f *VFile) Content() string {
	return strings.Join(f.Pages, "\n")
}

// Split is one deterministic chunking of a file under one configuration,
// unique per (vfile_id, config_hash).
type Split struct {
	ID           core.ID        `json:"id"            db:"id"`
	VFileID      core.ID        `json:"vfile_id"      db:"vfile_id"`
	ConfigHash   string         `json:"config_hash"   db:"config_hash"`
	Mode         string         `json:"mode"          db:"mode"`
	Name         string         `json:"name"          db:"name"`
	ChunkSize    int            `json:"chunk_size"    db:"chunk_size"`
	ChunkOverlap int            `json:"chunk_overlap" db:"chunk_overlap"`
	Model        string         `json:"model"         db:"model"`
	Parts        int            `json:"parts"         db:"parts"`
	Info         map[string]any `json:"info"          db:"info"`
	CreatedAt    time.Time      `json:"created_at"    db:"created_at"`
}

// Chunk is one slice of a file's text plus its optional vector. PartNumber
// is assigned at split creation and never changes, regardless of the order
// embeddings complete in.
type Chunk struct {
	ID         core.ID     `json:"id"          db:"id"`
	VFileID    core.ID     `json:"vfile_id"    db:"vfile_id"`
	SplitID    core.ID     `json:"split_id"    db:"split_id"`
	PartNumber int         `json:"part_number" db:"part_number"`
	CharStart  int         `json:"char_start"  db:"char_start"`
	CharEnd    int         `json:"char_end"    db:"char_end"`
	Content    string      `json:"content"     db:"content"`
	Status     ChunkStatus `json:"status"      db:"status"`
	Vector     []float32   `json:"vector"      db:"vector"`
	Model      string      `json:"model"       db:"model"`
}

// Summary is one generated variant of a file's condensed content, unique
// per (vfile_id, variant_name).
type Summary struct {
	ID          core.ID   `json:"id"           db:"id"`
	VFileID     core.ID   `json:"vfile_id"     db:"vfile_id"`
	VariantName string    `json:"variant_name" db:"variant_name"`
	SummaryText string    `json:"summary"      db:"summary"`
	Description string    `json:"description"  db:"description"`
	Title       string    `json:"title"        db:"title"`
	Tags        []string  `json:"tags"         db:"tags"`
	Language    string    `json:"language"     db:"language"`
	Tokens      int       `json:"tokens"       db:"tokens"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
}

// SummaryResult is the fixed field set a summarizer produces for one
// variant.
type SummaryResult struct {
	ShortVersion string   `json:"short_version"`
	Description  string   `json:"description"`
	Title        string   `json:"title"`
	Tags         []string `json:"tags"`
	Language     string   `json:"language"`
}

// Collection is a named grouping of files for retrieval scoping.
type Collection struct {
	ID          core.ID        `json:"id"              db:"id"`
	Name        string         `json:"collection_name" db:"collection_name"`
	Description string         `json:"description"     db:"description"`
	Info        map[string]any `json:"info"            db:"info"`
	CreatedAt   time.Time      `json:"created_at"      db:"created_at"`
}

// Vector is the handle of one logical external vector-store collection,
// unique per (subject_id, subject_type, vector_type, external_provider).
type Vector struct {
	ID               core.ID   `json:"id"                db:"id"`
	SubjectID        string    `json:"subject_id"        db:"subject_id"`
	SubjectType      string    `json:"subject_type"      db:"subject_type"`
	VectorType       string    `json:"vector_type"       db:"vector_type"`
	ExternalProvider string    `json:"external_provider" db:"external_provider"`
	ExternalID       string    `json:"external_id"       db:"external_id"`
	CreatedAt        time.Time `json:"created_at"        db:"created_at"`
}

// CollectionName returns the provider-side collection name for the vector.
func (v *Vector) CollectionName() string {
	return "v-" + v.SubjectType + "_" + v.SubjectID + "_" + v.VectorType
}

// MetaCollectionName returns the companion collection holding one summary
// point per file.
func (v *Vector) MetaCollectionName() string {
	return v.CollectionName() + "-meta"
}

// VectorVFile joins a vector and a file, recording which split produced
// the indexed chunks and the provider-side identifier.
type VectorVFile struct {
	ID               core.ID   `json:"id"                db:"id"`
	VectorID         core.ID   `json:"vector_id"         db:"vector_id"`
	VFileID          core.ID   `json:"vfile_id"          db:"vfile_id"`
	SplitID          core.ID   `json:"split_id"          db:"split_id"`
	ExternalID       string    `json:"external_id"       db:"external_id"`
	ExternalProvider string    `json:"external_provider" db:"external_provider"`
	CreatedAt        time.Time `json:"created_at"        db:"created_at"`
}

// VFileCollection joins a file and a collection.
type VFileCollection struct {
	ID           core.ID   `json:"id"            db:"id"`
	VFileID      core.ID   `json:"vfile_id"      db:"vfile_id"`
	CollectionID core.ID   `json:"collection_id" db:"collection_id"`
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
}
