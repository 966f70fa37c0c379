package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/vfile"
)

var vfileColumns = []string{
	"id", "subject_id", "subject_type", "source", "source_filename",
	"source_content_type", "source_created_at", "pages", "info", "tokens",
	"created_at", "updated_at",
}

func (s *Store) GetOrCreateFile(ctx context.Context, candidate *vfile.VFile) (*vfile.VFile, error) {
	existing, err := s.GetFileByKey(ctx, candidate.Key())
	if err == nil {
		return s.mergeFileInfo(ctx, existing, candidate.Info)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	created, err := s.insertFile(ctx, candidate)
	if err == nil {
		return created, nil
	}
	if !isUniqueViolation(err) {
		return nil, err
	}
	// Lost a create race on the subject key; the winner's row is the
	// file, merge into that instead.
	existing, err = s.GetFileByKey(ctx, candidate.Key())
	if err != nil {
		return nil, err
	}
	return s.mergeFileInfo(ctx, existing, candidate.Info)
}

func (s *Store) insertFile(ctx context.Context, candidate *vfile.VFile) (*vfile.VFile, error) {
	stored := *candidate
	if stored.ID.IsZero() {
		stored.ID = core.MustNewID()
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	query, args, err := squirrel.Insert("vfiles").
		Columns(vfileColumns...).
		Values(
			stored.ID, stored.SubjectID, stored.SubjectType, stored.Source,
			stored.SourceFilename, stored.SourceContentType, stored.SourceCreatedAt,
			stored.Pages, stored.Info, stored.Tokens, stored.CreatedAt, stored.UpdatedAt,
		).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building vfile insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("inserting vfile: %w", err)
	}
	return &stored, nil
}

func (s *Store) mergeFileInfo(
	ctx context.Context,
	existing *vfile.VFile,
	info map[string]any,
) (*vfile.VFile, error) {
	merged, changed := vfile.MergeInfo(existing.Info, info)
	if !changed {
		return existing, nil
	}
	existing.Info = merged
	existing.UpdatedAt = time.Now().UTC()
	query, args, err := squirrel.Update("vfiles").
		Set("info", existing.Info).
		Set("updated_at", existing.UpdatedAt).
		Where(squirrel.Eq{"id": existing.ID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building vfile update: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("updating vfile info: %w", err)
	}
	return existing, nil
}

func (s *Store) GetFile(ctx context.Context, id core.ID) (*vfile.VFile, error) {
	query, args, err := squirrel.Select(vfileColumns...).
		From("vfiles").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building vfile select: %w", err)
	}
	var file vfile.VFile
	if err := pgxscan.Get(ctx, s.db, &file, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("vfile %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning vfile: %w", err)
	}
	return &file, nil
}

func (s *Store) GetFileByKey(ctx context.Context, key vfile.SubjectKey) (*vfile.VFile, error) {
	query, args, err := squirrel.Select(vfileColumns...).
		From("vfiles").
		Where(squirrel.Eq{"subject_id": key.SubjectID, "subject_type": key.SubjectType}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building vfile select: %w", err)
	}
	var file vfile.VFile
	if err := pgxscan.Get(ctx, s.db, &file, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("vfile %s/%s: %w", key.SubjectType, key.SubjectID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning vfile: %w", err)
	}
	return &file, nil
}

func (s *Store) DeleteFile(ctx context.Context, id core.ID) error {
	query, args, err := squirrel.Delete("vfiles").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building vfile delete: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting vfile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vfile %s: %w", id, core.ErrNotFound)
	}
	return nil
}
