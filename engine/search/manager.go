package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/vfile"
)

// Store is the persistence surface Docs needs. *store.Store satisfies it.
type Store interface {
	Scroll(ctx context.Context, query DocsQuery) ([]*vfile.VFile, error)
	ListSummaries(ctx context.Context, fileID core.ID) ([]*vfile.Summary, error)
	LatestSplit(ctx context.Context, fileID core.ID) (*vfile.Split, error)
	ListChunks(ctx context.Context, splitID core.ID) ([]*vfile.Chunk, error)
}

// Manager resolves document queries against the store and renders the
// hits in the requested content mode.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Docs scrolls files matching the query and renders one Content per hit.
func (m *Manager) Docs(ctx context.Context, query DocsQuery) (*DocsResponse, error) {
	query = query.Normalized()
	files, err := m.store.Scroll(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("docs query: %w", err)
	}
	docs := make([]*Content, 0, len(files))
	for _, file := range files {
		content, err := m.render(ctx, file, query)
		if err != nil {
			return nil, fmt.Errorf("docs query: file %s: %w", file.ID, err)
		}
		docs = append(docs, content)
	}
	return &DocsResponse{Docs: docs, Query: query}, nil
}

// Render produces one hit for a file outside a scroll, reusing the same
// mode and projection rules.
func (m *Manager) Render(ctx context.Context, file *vfile.VFile, query DocsQuery) (*Content, error) {
	return m.render(ctx, file, query.Normalized())
}

func (m *Manager) render(ctx context.Context, file *vfile.VFile, query DocsQuery) (*Content, error) {
	content := &Content{Mode: query.Mode}
	summary, err := m.pickSummary(ctx, file.ID, query.SummaryVariant)
	if err != nil {
		return nil, err
	}
	if summary != nil {
		content.Summary = summary.SummaryText
		content.Title = summary.Title
		content.Description = summary.Description
		content.Keywords = summary.Tags
		content.Language = summary.Language
		content.SummaryVariant = summary.VariantName
	}
	switch query.Mode {
	case ModeFull:
		content.Verbatim = file.Content()
	case ModeChunk:
		chunk, err := m.chunkText(ctx, file.ID)
		if err != nil {
			return nil, err
		}
		content.Chunk = chunk
	case ModeSummary, ModeNone:
	default:
		return nil, fmt.Errorf("%w: content mode %q", core.ErrInvalidConfig, query.Mode)
	}
	content.Metadata = projectKeys(file, summary, query.Keys)
	return content, nil
}

// pickSummary resolves the requested variant, falling back from pretty to
// machine to whatever exists when the caller did not pin one.
func (m *Manager) pickSummary(ctx context.Context, fileID core.ID, variant string) (*vfile.Summary, error) {
	summaries, err := m.store.ListSummaries(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	if variant != "" && variant != "default" {
		for _, s := range summaries {
			if s.VariantName == variant {
				return s, nil
			}
		}
		return nil, nil
	}
	for _, preferred := range []string{"pretty", "machine"} {
		for _, s := range summaries {
			if s.VariantName == preferred {
				return s, nil
			}
		}
	}
	return summaries[0], nil
}

// chunkText renders the chunk-level view: the latest split's parts in
// order, separated so boundaries stay visible.
func (m *Manager) chunkText(ctx context.Context, fileID core.ID) (string, error) {
	split, err := m.store.LatestSplit(ctx, fileID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	chunks, err := m.store.ListChunks(ctx, split.ID)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, chunk.Content)
	}
	return strings.Join(parts, "\n\n"), nil
}

// projectKeys builds the metadata map from the file's payload fields
// under the query's aliases.
func projectKeys(file *vfile.VFile, summary *vfile.Summary, keys []KeyAlias) map[string]any {
	if len(keys) == 0 {
		keys = defaultKeys
	}
	payload := map[string]any{
		"id":           string(file.ID),
		"subject_id":   file.SubjectID,
		"subject_type": file.SubjectType,
		"source":       file.Source,
		"filename":     file.SourceFilename,
		"content_type": file.SourceContentType,
		"metadata":     file.Info,
		"tokens":       file.Tokens,
	}
	if file.SourceCreatedAt != nil {
		payload["created_at"] = file.SourceCreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if summary != nil {
		payload["title"] = summary.Title
		payload["description"] = summary.Description
		payload["keywords"] = summary.Tags
		payload["language"] = summary.Language
		payload["summary_variant"] = summary.VariantName
	}
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		value, ok := payload[key.Key]
		if !ok || value == nil {
			continue
		}
		if s, isStr := value.(string); isStr && s == "" {
			continue
		}
		alias := key.Alias
		if alias == "" {
			alias = key.Key
		}
		out[alias] = value
	}
	return out
}

// ToJSON serializes the response.
func (r *DocsResponse) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ToMarkdown concatenates the hits' markdown blocks.
func (r *DocsResponse) ToMarkdown() string {
	var b strings.Builder
	for _, doc := range r.Docs {
		b.WriteString(doc.Markdown())
	}
	return b.String()
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
