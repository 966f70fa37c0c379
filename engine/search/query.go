package search

import (
	"sort"
	"strings"
	"time"

	"github.com/docbed/docbed/engine/core"
)

// ContentMode selects what Docs renders per file.
type ContentMode string

const (
	ModeFull    ContentMode = "full"
	ModeChunk   ContentMode = "chunk"
	ModeSummary ContentMode = "summary"
	ModeNone    ContentMode = "none"
)

// OutputFormat selects the Docs serialization.
type OutputFormat string

const (
	OutputJSON     OutputFormat = "json"
	OutputMarkdown OutputFormat = "markdown"
)

// Order sorts results by source creation date.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// KeyAlias maps a payload key to the name it is exported under.
type KeyAlias struct {
	Key   string `json:"key"`
	Alias string `json:"alias"`
}

// SubjectRef is one (type, id) pair in a DocsQuery id filter.
type SubjectRef struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
}

// DocsQuery scrolls persisted files.
type DocsQuery struct {
	Limit          int            `json:"limit"`
	Mode           ContentMode    `json:"mode"`
	Keys           []KeyAlias     `json:"keys,omitempty"`
	CollectionID   core.ID        `json:"collection_id,omitempty"`
	CollectionName string         `json:"collection_name,omitempty"`
	IDs            []SubjectRef   `json:"ids,omitempty"`
	Output         OutputFormat   `json:"output"`
	DateLT         *time.Time     `json:"date_lt,omitempty"`
	DateGT         *time.Time     `json:"date_gt,omitempty"`
	Filters        map[string]any `json:"filters,omitempty"`
	Order          Order          `json:"order"`
	SummaryVariant string         `json:"summary_variant,omitempty"`
}

// Normalized fills zero-valued fields with defaults.
func (q DocsQuery) Normalized() DocsQuery {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Mode == "" {
		q.Mode = ModeSummary
	}
	if q.Output == "" {
		q.Output = OutputJSON
	}
	if q.Order == "" {
		q.Order = OrderAsc
	}
	return q
}

// defaultKeys is the payload projection used when the caller supplies none.
var defaultKeys = []KeyAlias{
	{Key: "subject_id", Alias: "id"},
	{Key: "subject_type", Alias: "type"},
	{Key: "created_at", Alias: "date"},
	{Key: "filename", Alias: "name"},
	{Key: "language", Alias: "language"},
	{Key: "keywords", Alias: "keywords"},
	{Key: "content_type", Alias: "mime"},
	{Key: "metadata", Alias: "metadata"},
	{Key: "title", Alias: "title"},
	{Key: "description", Alias: "description"},
	{Key: "summary_variant", Alias: "summary_variant"},
}

// Content is one rendered search hit.
type Content struct {
	Metadata       map[string]any `json:"metadata,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Verbatim       string         `json:"full,omitempty"`
	Chunk          string         `json:"chunk,omitempty"`
	Title          string         `json:"title,omitempty"`
	Description    string         `json:"descr,omitempty"`
	Keywords       []string       `json:"tags,omitempty"`
	Language       string         `json:"lang,omitempty"`
	Mode           ContentMode    `json:"-"`
	SummaryVariant string         `json:"svar,omitempty"`
}

// Body returns the text selected by the hit's content mode.
func (c *Content) Body() string {
	switch c.Mode {
	case ModeFull:
		return c.Verbatim
	case ModeChunk:
		return c.Chunk
	case ModeSummary:
		return c.Summary
	default:
		return ""
	}
}

// Markdown renders the hit as a metadata block plus its content.
func (c *Content) Markdown() string {
	var b strings.Builder
	b.WriteString("\n\n -----\n\n")
	b.WriteString("\n## Metadata\n\n")
	keys := make([]string, 0, len(c.Metadata))
	for key := range c.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteString("- ")
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(stringify(c.Metadata[key]))
		b.WriteString("\n")
	}
	b.WriteString("\n## Content\n\n")
	b.WriteString(c.Body())
	return b.String()
}

// DocsResponse wraps the rendered hits together with the query that
// produced them.
type DocsResponse struct {
	Docs  []*Content `json:"docs"`
	Query DocsQuery  `json:"query"`
}
