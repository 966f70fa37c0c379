package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/vfile"
)

var summaryColumns = []string{
	"id", "vfile_id", "variant_name", "summary", "description", "title",
	"tags", "language", "tokens", "created_at",
}

func (s *Store) CreateSummaryIfAbsent(ctx context.Context, summary *vfile.Summary) (bool, error) {
	stored := *summary
	if stored.ID.IsZero() {
		stored.ID = core.MustNewID()
	}
	stored.CreatedAt = time.Now().UTC()
	query, args, err := squirrel.Insert("summaries").
		Columns(summaryColumns...).
		Values(
			stored.ID, stored.VFileID, stored.VariantName, stored.SummaryText,
			stored.Description, stored.Title, stored.Tags, stored.Language,
			stored.Tokens, stored.CreatedAt,
		).
		Suffix("ON CONFLICT (vfile_id, variant_name) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building summary insert: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("inserting summary: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ReplaceSummary(ctx context.Context, summary *vfile.Summary) error {
	stored := *summary
	if stored.ID.IsZero() {
		stored.ID = core.MustNewID()
	}
	stored.CreatedAt = time.Now().UTC()
	query, args, err := squirrel.Insert("summaries").
		Columns(summaryColumns...).
		Values(
			stored.ID, stored.VFileID, stored.VariantName, stored.SummaryText,
			stored.Description, stored.Title, stored.Tags, stored.Language,
			stored.Tokens, stored.CreatedAt,
		).
		Suffix(`ON CONFLICT (vfile_id, variant_name) DO UPDATE SET
			summary = EXCLUDED.summary,
			description = EXCLUDED.description,
			title = EXCLUDED.title,
			tags = EXCLUDED.tags,
			language = EXCLUDED.language,
			tokens = EXCLUDED.tokens,
			created_at = EXCLUDED.created_at`).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building summary upsert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting summary: %w", err)
	}
	return nil
}

func (s *Store) ListSummaries(ctx context.Context, fileID core.ID) ([]*vfile.Summary, error) {
	query, args, err := squirrel.Select(summaryColumns...).
		From("summaries").
		Where(squirrel.Eq{"vfile_id": fileID}).
		OrderBy("variant_name ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building summary select: %w", err)
	}
	var summaries []*vfile.Summary
	if err := pgxscan.Select(ctx, s.db, &summaries, query, args...); err != nil {
		return nil, fmt.Errorf("scanning summaries: %w", err)
	}
	return summaries, nil
}

func (s *Store) GetSummary(ctx context.Context, fileID core.ID, variant string) (*vfile.Summary, error) {
	query, args, err := squirrel.Select(summaryColumns...).
		From("summaries").
		Where(squirrel.Eq{"vfile_id": fileID, "variant_name": variant}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building summary select: %w", err)
	}
	var summary vfile.Summary
	if err := pgxscan.Get(ctx, s.db, &summary, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("summary %s/%s: %w", fileID, variant, core.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning summary: %w", err)
	}
	return &summary, nil
}
