package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/embedder"
	"github.com/docbed/docbed/engine/embedding"
	"github.com/docbed/docbed/engine/split"
	"github.com/docbed/docbed/engine/vfile"
)

func newManagerFixture(t *testing.T) (*Manager, *vfile.MemStore, *Memory, *vfile.VFile) {
	t.Helper()
	store := vfile.NewMemStore()
	service := embedding.NewService(store, embedder.NewStatic(8))
	index := NewMemory(0)
	manager := NewManager(store, service, index)
	file, err := store.GetOrCreateFile(context.Background(), &vfile.VFile{
		SubjectID:   "42",
		SubjectType: "doc",
		Pages: []string{
			"Object storage keeps every revision of the manifest.",
			"Workers drain the queue in part number order each night.",
		},
	})
	require.NoError(t, err)
	return manager, store, index, file
}

func testSplitConfig() split.Config {
	return split.Config{
		ChunkSize:           40,
		ChunkOverlapPercent: 0,
		Algorithm:           split.AlgorithmFixed,
		Model:               "text-embedding-3-large",
	}
}

func TestManagerGetOrCreateVector(t *testing.T) {
	t.Run("Should register the handle once and reuse it", func(t *testing.T) {
		manager, _, _, file := newManagerFixture(t)
		ctx := context.Background()
		first, err := manager.GetOrCreateVector(ctx, file.Key(), "content")
		require.NoError(t, err)
		second, err := manager.GetOrCreateVector(ctx, file.Key(), "content")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "v-doc_42_content", first.ExternalID)
		assert.Equal(t, string(ProviderMemory), first.ExternalProvider)
	})
}

func TestManagerAddFilesToVector(t *testing.T) {
	t.Run("Should index one point per chunk plus a meta point", func(t *testing.T) {
		manager, store, index, file := newManagerFixture(t)
		ctx := context.Background()
		vector, err := manager.GetOrCreateVector(ctx, file.Key(), "content")
		require.NoError(t, err)
		require.NoError(t, manager.AddFilesToVector(ctx, vector, []core.ID{file.ID}, testSplitConfig(), false))

		sp, err := store.LatestSplit(ctx, file.ID)
		require.NoError(t, err)
		chunks, err := store.ListChunks(ctx, sp.ID)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		for _, chunk := range chunks {
			assert.Equal(t, vfile.ChunkStatusComplete, chunk.Status)
		}
		assert.Len(t, index.Points(vector.CollectionName()), len(chunks))

		meta := index.Points(vector.MetaCollectionName())
		require.Len(t, meta, 1)
		assert.Equal(t, PointID(file.ID), meta[0].ID)
		assert.Equal(t, "42", meta[0].Payload["subject_id"])
		assert.Equal(t, sp.Parts, meta[0].Payload["parts"])

		membership, err := store.GetVectorVFile(ctx, vector.ID, file.ID)
		require.NoError(t, err)
		assert.Equal(t, sp.ID, membership.SplitID)
	})
	t.Run("Should skip files already attached unless reindexing", func(t *testing.T) {
		manager, _, index, file := newManagerFixture(t)
		ctx := context.Background()
		vector, err := manager.GetOrCreateVector(ctx, file.Key(), "content")
		require.NoError(t, err)
		require.NoError(t, manager.AddFilesToVector(ctx, vector, []core.ID{file.ID}, testSplitConfig(), false))
		before := len(index.Points(vector.CollectionName()))

		require.NoError(t, manager.AddFilesToVector(ctx, vector, []core.ID{file.ID}, testSplitConfig(), false))
		assert.Len(t, index.Points(vector.CollectionName()), before)

		require.NoError(t, manager.AddFilesToVector(ctx, vector, []core.ID{file.ID}, testSplitConfig(), true))
		assert.Len(t, index.Points(vector.CollectionName()), before)
	})
	t.Run("Should surface the meta summary when a machine variant exists", func(t *testing.T) {
		manager, store, index, file := newManagerFixture(t)
		ctx := context.Background()
		_, err := store.CreateSummaryIfAbsent(ctx, &vfile.Summary{
			VFileID:     file.ID,
			VariantName: "machine",
			Title:       "Manifest storage",
			SummaryText: "Manifests are versioned and drained nightly.",
		})
		require.NoError(t, err)
		vector, err := manager.GetOrCreateVector(ctx, file.Key(), "content")
		require.NoError(t, err)
		require.NoError(t, manager.AddFilesToVector(ctx, vector, []core.ID{file.ID}, testSplitConfig(), false))
		meta := index.Points(vector.MetaCollectionName())
		require.Len(t, meta, 1)
		assert.Equal(t, "Manifest storage", meta[0].Payload["title"])
	})
	t.Run("Should report a missing file but keep indexing the rest", func(t *testing.T) {
		manager, store, index, file := newManagerFixture(t)
		ctx := context.Background()
		vector, err := manager.GetOrCreateVector(ctx, file.Key(), "content")
		require.NoError(t, err)
		ghost := core.MustNewID()
		err = manager.AddFilesToVector(ctx, vector, []core.ID{ghost, file.ID}, testSplitConfig(), false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 files failed")
		assert.NotEmpty(t, index.Points(vector.CollectionName()))
		_, err = store.GetVectorVFile(ctx, vector.ID, file.ID)
		assert.NoError(t, err)
	})
}

func TestPointID(t *testing.T) {
	t.Run("Should be deterministic per id", func(t *testing.T) {
		id := core.MustNewID()
		assert.Equal(t, PointID(id), PointID(id))
		assert.NotEqual(t, PointID(id), PointID(core.MustNewID()))
	})
}
