package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/vfile"
)

var splitColumns = []string{
	"id", "vfile_id", "config_hash", "mode", "name", "chunk_size",
	"chunk_overlap", "model", "parts", "info", "created_at",
}

var chunkColumns = []string{
	"id", "vfile_id", "split_id", "part_number", "char_start", "char_end",
	"content", "status", "vector", "model",
}

func (s *Store) GetOrCreateSplit(
	ctx context.Context,
	file *vfile.VFile,
	split *vfile.Split,
	chunks []*vfile.Chunk,
) (*vfile.Split, []*vfile.Chunk, error) {
	existing, err := s.FindSplitByHash(ctx, file.ID, split.ConfigHash)
	if err == nil {
		return s.withChunks(ctx, existing)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, nil, err
	}
	created, err := s.insertSplit(ctx, file, split, chunks)
	if err == nil {
		return s.withChunks(ctx, created)
	}
	if !isUniqueViolation(err) {
		return nil, nil, err
	}
	// A concurrent run persisted the same fingerprint first. Its split
	// and chunks are the canonical ones.
	existing, err = s.FindSplitByHash(ctx, file.ID, split.ConfigHash)
	if err != nil {
		return nil, nil, err
	}
	return s.withChunks(ctx, existing)
}

func (s *Store) withChunks(ctx context.Context, split *vfile.Split) (*vfile.Split, []*vfile.Chunk, error) {
	chunks, err := s.ListChunks(ctx, split.ID)
	if err != nil {
		return nil, nil, err
	}
	return split, chunks, nil
}

func (s *Store) insertSplit(
	ctx context.Context,
	file *vfile.VFile,
	split *vfile.Split,
	chunks []*vfile.Chunk,
) (*vfile.Split, error) {
	stored := *split
	if stored.ID.IsZero() {
		stored.ID = core.MustNewID()
	}
	stored.VFileID = file.ID
	stored.CreatedAt = time.Now().UTC()
	err := withTx(ctx, s.db, func(tx pgx.Tx) error {
		query, args, err := squirrel.Insert("vfile_splits").
			Columns(splitColumns...).
			Values(
				stored.ID, stored.VFileID, stored.ConfigHash, stored.Mode, stored.Name,
				stored.ChunkSize, stored.ChunkOverlap, stored.Model, stored.Parts,
				stored.Info, stored.CreatedAt,
			).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("building split insert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting split: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		insert := squirrel.Insert("embeddings").Columns(chunkColumns...)
		for _, chunk := range chunks {
			id := chunk.ID
			if id.IsZero() {
				id = core.MustNewID()
			}
			insert = insert.Values(
				id, file.ID, stored.ID, chunk.PartNumber, chunk.CharStart,
				chunk.CharEnd, chunk.Content, chunk.Status, chunk.Vector, chunk.Model,
			)
		}
		query, args, err = insert.PlaceholderFormat(squirrel.Dollar).ToSql()
		if err != nil {
			return fmt.Errorf("building chunk insert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *Store) GetSplit(ctx context.Context, id core.ID) (*vfile.Split, error) {
	query, args, err := squirrel.Select(splitColumns...).
		From("vfile_splits").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building split select: %w", err)
	}
	var split vfile.Split
	if err := pgxscan.Get(ctx, s.db, &split, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("split %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning split: %w", err)
	}
	return &split, nil
}

func (s *Store) FindSplitByHash(ctx context.Context, fileID core.ID, configHash string) (*vfile.Split, error) {
	query, args, err := squirrel.Select(splitColumns...).
		From("vfile_splits").
		Where(squirrel.Eq{"vfile_id": fileID, "config_hash": configHash}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building split select: %w", err)
	}
	var split vfile.Split
	if err := pgxscan.Get(ctx, s.db, &split, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("split for file %s: %w", fileID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning split: %w", err)
	}
	return &split, nil
}

func (s *Store) LatestSplit(ctx context.Context, fileID core.ID) (*vfile.Split, error) {
	query, args, err := squirrel.Select(splitColumns...).
		From("vfile_splits").
		Where(squirrel.Eq{"vfile_id": fileID}).
		OrderBy("created_at DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building split select: %w", err)
	}
	var split vfile.Split
	if err := pgxscan.Get(ctx, s.db, &split, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("split for file %s: %w", fileID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning split: %w", err)
	}
	return &split, nil
}

func (s *Store) ListChunks(ctx context.Context, splitID core.ID) ([]*vfile.Chunk, error) {
	query, args, err := squirrel.Select(chunkColumns...).
		From("embeddings").
		Where(squirrel.Eq{"split_id": splitID}).
		OrderBy("part_number ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building chunk select: %w", err)
	}
	var chunks []*vfile.Chunk
	if err := pgxscan.Select(ctx, s.db, &chunks, query, args...); err != nil {
		return nil, fmt.Errorf("scanning chunks: %w", err)
	}
	return chunks, nil
}

func (s *Store) GetChunk(ctx context.Context, id core.ID) (*vfile.Chunk, error) {
	query, args, err := squirrel.Select(chunkColumns...).
		From("embeddings").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building chunk select: %w", err)
	}
	var chunk vfile.Chunk
	if err := pgxscan.Get(ctx, s.db, &chunk, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("chunk %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	return &chunk, nil
}

func (s *Store) SetChunkVector(ctx context.Context, id core.ID, vector []float32) (bool, error) {
	query, args, err := squirrel.Update("embeddings").
		Set("vector", vector).
		Set("status", vfile.ChunkStatusComplete).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.NotEq{"status": vfile.ChunkStatusComplete}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building chunk update: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating chunk vector: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	// Either the chunk is already complete or it does not exist.
	if _, err := s.GetChunk(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) SetChunkStatus(ctx context.Context, id core.ID, status vfile.ChunkStatus) error {
	query, args, err := squirrel.Update("embeddings").
		Set("status", status).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.NotEq{"status": vfile.ChunkStatusComplete}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building chunk update: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating chunk status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetChunk(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
