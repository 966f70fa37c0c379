package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/infra/store"
	"github.com/docbed/docbed/engine/vfile"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *store.Store) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool, store.NewStore(pool)
}

func vfileRow(pool pgxmock.PgxPoolIface, id core.ID, info map[string]any) *pgxmock.Rows {
	now := time.Now().UTC()
	var nilTime *time.Time
	return pool.NewRows([]string{
		"id", "subject_id", "subject_type", "source", "source_filename",
		"source_content_type", "source_created_at", "pages", "info", "tokens",
		"created_at", "updated_at",
	}).AddRow(
		id, "42", "doc", "upload", "report.pdf", "application/pdf", nilTime,
		[]string{"page one"}, info, 3, now, now,
	)
}

func TestStoreGetOrCreateFile(t *testing.T) {
	t.Run("Should return the existing file without writing when info is unchanged", func(t *testing.T) {
		pool, s := newMockStore(t)
		id := core.MustNewID()
		pool.ExpectQuery("SELECT (.+) FROM vfiles WHERE subject_id = \\$1 AND subject_type = \\$2").
			WithArgs("42", "doc").
			WillReturnRows(vfileRow(pool, id, map[string]any{"lang": "en"}))
		got, err := s.GetOrCreateFile(context.Background(), &vfile.VFile{
			SubjectID:   "42",
			SubjectType: "doc",
			Info:        map[string]any{"lang": "en"},
		})
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
	t.Run("Should merge new info keys into the existing file", func(t *testing.T) {
		pool, s := newMockStore(t)
		id := core.MustNewID()
		pool.ExpectQuery("SELECT (.+) FROM vfiles").
			WithArgs("42", "doc").
			WillReturnRows(vfileRow(pool, id, map[string]any{"lang": "en"}))
		pool.ExpectExec("UPDATE vfiles SET info = \\$1, updated_at = \\$2 WHERE id = \\$3").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		got, err := s.GetOrCreateFile(context.Background(), &vfile.VFile{
			SubjectID:   "42",
			SubjectType: "doc",
			Info:        map[string]any{"source_system": "crm"},
		})
		require.NoError(t, err)
		assert.Equal(t, "en", got.Info["lang"])
		assert.Equal(t, "crm", got.Info["source_system"])
		assert.NoError(t, pool.ExpectationsWereMet())
	})
	t.Run("Should insert when no file matches the subject key", func(t *testing.T) {
		pool, s := newMockStore(t)
		pool.ExpectQuery("SELECT (.+) FROM vfiles").
			WithArgs("42", "doc").
			WillReturnRows(pool.NewRows([]string{"id"}))
		pool.ExpectExec("INSERT INTO vfiles").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		got, err := s.GetOrCreateFile(context.Background(), &vfile.VFile{
			SubjectID:   "42",
			SubjectType: "doc",
			Pages:       []string{"page one"},
		})
		require.NoError(t, err)
		assert.False(t, got.ID.IsZero())
		assert.NoError(t, pool.ExpectationsWereMet())
	})
	t.Run("Should fall back to the winner's row after losing a create race", func(t *testing.T) {
		pool, s := newMockStore(t)
		id := core.MustNewID()
		pool.ExpectQuery("SELECT (.+) FROM vfiles").
			WithArgs("42", "doc").
			WillReturnRows(pool.NewRows([]string{"id"}))
		pool.ExpectExec("INSERT INTO vfiles").
			WillReturnError(&pgconn.PgError{Code: "23505"})
		pool.ExpectQuery("SELECT (.+) FROM vfiles").
			WithArgs("42", "doc").
			WillReturnRows(vfileRow(pool, id, nil))
		got, err := s.GetOrCreateFile(context.Background(), &vfile.VFile{
			SubjectID:   "42",
			SubjectType: "doc",
		})
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
}

func TestStoreSetChunkVector(t *testing.T) {
	t.Run("Should write the vector and report the update", func(t *testing.T) {
		pool, s := newMockStore(t)
		id := core.MustNewID()
		pool.ExpectExec("UPDATE embeddings SET vector = \\$1, status = \\$2 WHERE id = \\$3 AND status <> \\$4").
			WithArgs([]float32{0.1, 0.2}, vfile.ChunkStatusComplete, id, vfile.ChunkStatusComplete).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		updated, err := s.SetChunkVector(context.Background(), id, []float32{0.1, 0.2})
		require.NoError(t, err)
		assert.True(t, updated)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
	t.Run("Should leave a completed chunk untouched", func(t *testing.T) {
		pool, s := newMockStore(t)
		id := core.MustNewID()
		pool.ExpectExec("UPDATE embeddings").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		rows := pool.NewRows([]string{
			"id", "vfile_id", "split_id", "part_number", "char_start", "char_end",
			"content", "status", "vector", "model",
		}).AddRow(
			id, core.MustNewID(), core.MustNewID(), 0, 0, 10,
			"chunk text", vfile.ChunkStatusComplete, []float32{1}, "text-embedding-3-large",
		)
		pool.ExpectQuery("SELECT (.+) FROM embeddings WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(rows)
		updated, err := s.SetChunkVector(context.Background(), id, []float32{0.5})
		require.NoError(t, err)
		assert.False(t, updated)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
	t.Run("Should report a missing chunk", func(t *testing.T) {
		pool, s := newMockStore(t)
		id := core.MustNewID()
		pool.ExpectExec("UPDATE embeddings").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		pool.ExpectQuery("SELECT (.+) FROM embeddings").
			WithArgs(id).
			WillReturnRows(pool.NewRows([]string{"id"}))
		_, err := s.SetChunkVector(context.Background(), id, []float32{0.5})
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
}

func TestStoreCreateSummaryIfAbsent(t *testing.T) {
	t.Run("Should insert a new variant", func(t *testing.T) {
		pool, s := newMockStore(t)
		pool.ExpectExec("INSERT INTO summaries (.+) ON CONFLICT \\(vfile_id, variant_name\\) DO NOTHING").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		created, err := s.CreateSummaryIfAbsent(context.Background(), &vfile.Summary{
			VFileID:     core.MustNewID(),
			VariantName: "machine",
			SummaryText: "terse",
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
	t.Run("Should keep the existing variant on conflict", func(t *testing.T) {
		pool, s := newMockStore(t)
		pool.ExpectExec("INSERT INTO summaries").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		created, err := s.CreateSummaryIfAbsent(context.Background(), &vfile.Summary{
			VFileID:     core.MustNewID(),
			VariantName: "machine",
		})
		require.NoError(t, err)
		assert.False(t, created)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
}

func TestStoreCreateVectorVFile(t *testing.T) {
	t.Run("Should surface a duplicate membership as a conflict", func(t *testing.T) {
		pool, s := newMockStore(t)
		pool.ExpectExec("INSERT INTO vector_vfiles").
			WillReturnError(&pgconn.PgError{Code: "23505"})
		err := s.CreateVectorVFile(context.Background(), &vfile.VectorVFile{
			VectorID: core.MustNewID(),
			VFileID:  core.MustNewID(),
		}, false)
		assert.ErrorIs(t, err, core.ErrConflict)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
	t.Run("Should tolerate the duplicate when reindexing", func(t *testing.T) {
		pool, s := newMockStore(t)
		pool.ExpectExec("INSERT INTO vector_vfiles").
			WillReturnError(&pgconn.PgError{Code: "23505"})
		err := s.CreateVectorVFile(context.Background(), &vfile.VectorVFile{
			VectorID: core.MustNewID(),
			VFileID:  core.MustNewID(),
		}, true)
		assert.NoError(t, err)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
}

func TestStoreGetOrCreateSplit(t *testing.T) {
	t.Run("Should return the existing split for a known fingerprint", func(t *testing.T) {
		pool, s := newMockStore(t)
		fileID := core.MustNewID()
		splitID := core.MustNewID()
		now := time.Now().UTC()
		splitRows := pool.NewRows([]string{
			"id", "vfile_id", "config_hash", "mode", "name", "chunk_size",
			"chunk_overlap", "model", "parts", "info", "created_at",
		}).AddRow(
			splitID, fileID, "abc123", "recursive", "recursive_c800", 800,
			400, "text-embedding-3-large", 1, map[string]any(nil), now,
		)
		pool.ExpectQuery("SELECT (.+) FROM vfile_splits WHERE config_hash = \\$1 AND vfile_id = \\$2").
			WithArgs("abc123", fileID).
			WillReturnRows(splitRows)
		chunkRows := pool.NewRows([]string{
			"id", "vfile_id", "split_id", "part_number", "char_start", "char_end",
			"content", "status", "vector", "model",
		}).AddRow(
			core.MustNewID(), fileID, splitID, 0, 0, 8,
			"page one", vfile.ChunkStatusNew, []float32(nil), "text-embedding-3-large",
		)
		pool.ExpectQuery("SELECT (.+) FROM embeddings WHERE split_id = \\$1 ORDER BY part_number ASC").
			WithArgs(splitID).
			WillReturnRows(chunkRows)
		split, chunks, err := s.GetOrCreateSplit(
			context.Background(),
			&vfile.VFile{ID: fileID},
			&vfile.Split{ConfigHash: "abc123"},
			nil,
		)
		require.NoError(t, err)
		assert.Equal(t, splitID, split.ID)
		require.Len(t, chunks, 1)
		assert.Equal(t, "page one", chunks[0].Content)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
	t.Run("Should create the split and its chunks in one transaction", func(t *testing.T) {
		pool, s := newMockStore(t)
		fileID := core.MustNewID()
		pool.ExpectQuery("SELECT (.+) FROM vfile_splits").
			WithArgs("abc123", fileID).
			WillReturnRows(pool.NewRows([]string{"id"}))
		pool.ExpectBegin()
		pool.ExpectExec("INSERT INTO vfile_splits").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		pool.ExpectExec("INSERT INTO embeddings").
			WillReturnResult(pgxmock.NewResult("INSERT", 2))
		pool.ExpectCommit()
		pool.ExpectQuery("SELECT (.+) FROM embeddings").
			WillReturnRows(pool.NewRows([]string{
				"id", "vfile_id", "split_id", "part_number", "char_start", "char_end",
				"content", "status", "vector", "model",
			}))
		_, _, err := s.GetOrCreateSplit(
			context.Background(),
			&vfile.VFile{ID: fileID},
			&vfile.Split{ConfigHash: "abc123", Parts: 2},
			[]*vfile.Chunk{
				{ID: core.MustNewID(), PartNumber: 0, Content: "a", Status: vfile.ChunkStatusNew},
				{ID: core.MustNewID(), PartNumber: 1, Content: "b", Status: vfile.ChunkStatusNew},
			},
		)
		require.NoError(t, err)
		assert.NoError(t, pool.ExpectationsWereMet())
	})
}
