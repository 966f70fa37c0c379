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

var vectorColumns = []string{
	"id", "subject_id", "subject_type", "vector_type", "external_provider",
	"external_id", "created_at",
}

var vectorVFileColumns = []string{
	"id", "vector_id", "vfile_id", "split_id", "external_id",
	"external_provider", "created_at",
}

func (s *Store) GetOrCreateVector(ctx context.Context, candidate *vfile.Vector) (*vfile.Vector, error) {
	key := vfile.SubjectKey{SubjectID: candidate.SubjectID, SubjectType: candidate.SubjectType}
	existing, err := s.FindVector(ctx, key, candidate.VectorType, candidate.ExternalProvider)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	stored := *candidate
	if stored.ID.IsZero() {
		stored.ID = core.MustNewID()
	}
	stored.CreatedAt = time.Now().UTC()
	query, args, err := squirrel.Insert("vectors").
		Columns(vectorColumns...).
		Values(
			stored.ID, stored.SubjectID, stored.SubjectType, stored.VectorType,
			stored.ExternalProvider, stored.ExternalID, stored.CreatedAt,
		).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building vector insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return s.FindVector(ctx, key, candidate.VectorType, candidate.ExternalProvider)
		}
		return nil, fmt.Errorf("inserting vector: %w", err)
	}
	return &stored, nil
}

func (s *Store) FindVector(
	ctx context.Context,
	key vfile.SubjectKey,
	vectorType, provider string,
) (*vfile.Vector, error) {
	query, args, err := squirrel.Select(vectorColumns...).
		From("vectors").
		Where(squirrel.Eq{
			"subject_id":        key.SubjectID,
			"subject_type":      key.SubjectType,
			"vector_type":       vectorType,
			"external_provider": provider,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building vector select: %w", err)
	}
	var vector vfile.Vector
	if err := pgxscan.Get(ctx, s.db, &vector, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("vector %s/%s/%s: %w", key.SubjectType, key.SubjectID, vectorType, core.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning vector: %w", err)
	}
	return &vector, nil
}

func (s *Store) GetVectorVFile(ctx context.Context, vectorID, fileID core.ID) (*vfile.VectorVFile, error) {
	query, args, err := squirrel.Select(vectorVFileColumns...).
		From("vector_vfiles").
		Where(squirrel.Eq{"vector_id": vectorID, "vfile_id": fileID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building membership select: %w", err)
	}
	var membership vfile.VectorVFile
	if err := pgxscan.Get(ctx, s.db, &membership, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("vector membership %s/%s: %w", vectorID, fileID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning membership: %w", err)
	}
	return &membership, nil
}

func (s *Store) CreateVectorVFile(
	ctx context.Context,
	membership *vfile.VectorVFile,
	tolerateConflict bool,
) error {
	stored := *membership
	if stored.ID.IsZero() {
		stored.ID = core.MustNewID()
	}
	stored.CreatedAt = time.Now().UTC()
	query, args, err := squirrel.Insert("vector_vfiles").
		Columns(vectorVFileColumns...).
		Values(
			stored.ID, stored.VectorID, stored.VFileID, stored.SplitID,
			stored.ExternalID, stored.ExternalProvider, stored.CreatedAt,
		).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building membership insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			if tolerateConflict {
				return nil
			}
			return fmt.Errorf("vector membership %s/%s: %w", stored.VectorID, stored.VFileID, core.ErrConflict)
		}
		return fmt.Errorf("inserting membership: %w", err)
	}
	return nil
}
