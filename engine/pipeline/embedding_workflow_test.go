package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/embedder"
	"github.com/docbed/docbed/engine/embedding"
	"github.com/docbed/docbed/engine/split"
	"github.com/docbed/docbed/engine/summarizer"
	"github.com/docbed/docbed/engine/vectordb"
	"github.com/docbed/docbed/engine/vfile"
)

type pipelineFixture struct {
	store      *vfile.MemStore
	index      *vectordb.Memory
	summarizer *summarizer.Static
	activities *Activities
	file       *vfile.VFile
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	store := vfile.NewMemStore()
	service := embedding.NewService(store, embedder.NewStatic(8))
	index := vectordb.NewMemory(0)
	static := summarizer.NewStatic()
	acts := NewActivities(store, service, vectordb.NewManager(store, service, index), static)
	file, err := store.GetOrCreateFile(context.Background(), &vfile.VFile{
		SubjectID:   "42",
		SubjectType: "doc",
		Pages: []string{
			"The scheduler assigns partitions to consumers at startup.",
			"Rebalancing only happens when a member leaves the group.",
		},
	})
	require.NoError(t, err)
	return &pipelineFixture{
		store:      store,
		index:      index,
		summarizer: static,
		activities: acts,
		file:       file,
	}
}

func (f *pipelineFixture) register(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterWorkflow(EmbeddingWorkflow)
	env.RegisterActivity(f.activities.RegisterFile)
	env.RegisterActivity(f.activities.ResolveFile)
	env.RegisterActivity(f.activities.GetOrCreateSplit)
	env.RegisterActivity(f.activities.EmbedChunk)
	env.RegisterActivity(f.activities.AttachCollection)
	env.RegisterActivity(f.activities.AttachVector)
	env.RegisterActivity(f.activities.Summarize)
	env.RegisterActivity(f.activities.PersistSummaries)
}

func embeddingTestConfig() *split.Config {
	return &split.Config{
		ChunkSize:           45,
		ChunkOverlapPercent: 0,
		Algorithm:           split.AlgorithmFixed,
		Model:               "text-embedding-3-large",
	}
}

func TestEmbeddingWorkflow(t *testing.T) {
	t.Run("Should split the file and embed every chunk", func(t *testing.T) {
		fixture := newPipelineFixture(t)
		env := (&testsuite.WorkflowTestSuite{}).NewTestWorkflowEnvironment()
		fixture.register(env)
		env.ExecuteWorkflow(EmbeddingWorkflow, EmbeddingRequest{
			SubjectID:   "42",
			SubjectType: "doc",
			Config:      embeddingTestConfig(),
		})
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		var state EmbeddingState
		require.NoError(t, env.GetWorkflowResult(&state))
		assert.Equal(t, fixture.file.ID, state.VFileID)
		assert.True(t, state.Ready)
		assert.Positive(t, state.Parts)
		assert.Len(t, state.Chunks, state.Parts)
		assert.Zero(t, state.Failed())
		chunks, err := fixture.store.ListChunks(context.Background(), state.SplitID)
		require.NoError(t, err)
		for _, chunk := range chunks {
			assert.Equal(t, vfile.ChunkStatusComplete, chunk.Status)
			assert.NotEmpty(t, chunk.Vector)
		}
	})
	t.Run("Should reuse the split on a second run without re-embedding", func(t *testing.T) {
		fixture := newPipelineFixture(t)
		first := (&testsuite.WorkflowTestSuite{}).NewTestWorkflowEnvironment()
		fixture.register(first)
		first.ExecuteWorkflow(EmbeddingWorkflow, EmbeddingRequest{
			VFileID: fixture.file.ID,
			Config:  embeddingTestConfig(),
		})
		require.NoError(t, first.GetWorkflowError())
		var firstState EmbeddingState
		require.NoError(t, first.GetWorkflowResult(&firstState))

		second := (&testsuite.WorkflowTestSuite{}).NewTestWorkflowEnvironment()
		fixture.register(second)
		second.ExecuteWorkflow(EmbeddingWorkflow, EmbeddingRequest{
			VFileID: fixture.file.ID,
			Config:  embeddingTestConfig(),
		})
		require.NoError(t, second.GetWorkflowError())
		var secondState EmbeddingState
		require.NoError(t, second.GetWorkflowResult(&secondState))
		assert.Equal(t, firstState.SplitID, secondState.SplitID)
		assert.Len(t, secondState.Chunks, secondState.Parts)
		assert.Zero(t, secondState.Failed())
	})
	t.Run("Should only create the split when embedding is skipped", func(t *testing.T) {
		fixture := newPipelineFixture(t)
		env := (&testsuite.WorkflowTestSuite{}).NewTestWorkflowEnvironment()
		fixture.register(env)
		env.ExecuteWorkflow(EmbeddingWorkflow, EmbeddingRequest{
			VFileID: fixture.file.ID,
			Config:  embeddingTestConfig(),
			Skip:    true,
		})
		require.NoError(t, env.GetWorkflowError())
		var state EmbeddingState
		require.NoError(t, env.GetWorkflowResult(&state))
		assert.True(t, state.Ready)
		assert.Empty(t, state.Chunks)
		chunks, err := fixture.store.ListChunks(context.Background(), state.SplitID)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		for _, chunk := range chunks {
			assert.Equal(t, vfile.ChunkStatusSkip, chunk.Status)
		}
	})
	t.Run("Should keep embedding siblings when one chunk keeps failing", func(t *testing.T) {
		fixture := newPipelineFixture(t)
		env := (&testsuite.WorkflowTestSuite{}).NewTestWorkflowEnvironment()
		fixture.register(env)
		env.OnActivity(fixture.activities.EmbedChunk, mock.Anything, mock.Anything).Return(
			func(ctx context.Context, chunkID core.ID) (*ChunkResult, error) {
				chunk, err := fixture.store.GetChunk(ctx, chunkID)
				if err != nil {
					return nil, err
				}
				if chunk.PartNumber == 0 {
					return nil, temporal.NewNonRetryableApplicationError(
						"provider rejected the input", "EMBED_FAILED", nil)
				}
				return fixture.activities.EmbedChunk(ctx, chunkID)
			})
		env.ExecuteWorkflow(EmbeddingWorkflow, EmbeddingRequest{
			VFileID: fixture.file.ID,
			Config:  embeddingTestConfig(),
		})
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		var state EmbeddingState
		require.NoError(t, env.GetWorkflowResult(&state))
		assert.True(t, state.Ready)
		assert.Equal(t, 1, state.Failed())
		assert.Len(t, state.Chunks, state.Parts)
		completed := 0
		for _, chunk := range state.Chunks {
			if chunk.Status == vfile.ChunkStatusComplete {
				completed++
			} else {
				assert.NotEmpty(t, chunk.Err)
			}
		}
		assert.Equal(t, state.Parts-1, completed)
	})
	t.Run("Should complete a chunk after transient provider failures", func(t *testing.T) {
		fixture := newPipelineFixture(t)
		env := (&testsuite.WorkflowTestSuite{}).NewTestWorkflowEnvironment()
		fixture.register(env)
		var attempts atomic.Int32
		env.OnActivity(fixture.activities.EmbedChunk, mock.Anything, mock.Anything).Return(
			func(ctx context.Context, chunkID core.ID) (*ChunkResult, error) {
				chunk, err := fixture.store.GetChunk(ctx, chunkID)
				if err != nil {
					return nil, err
				}
				if chunk.PartNumber == 0 && attempts.Add(1) <= 2 {
					return nil, errors.New("provider unavailable")
				}
				return fixture.activities.EmbedChunk(ctx, chunkID)
			})
		env.ExecuteWorkflow(EmbeddingWorkflow, EmbeddingRequest{
			VFileID: fixture.file.ID,
			Config:  embeddingTestConfig(),
		})
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		var state EmbeddingState
		require.NoError(t, env.GetWorkflowResult(&state))
		assert.True(t, state.Ready)
		assert.Zero(t, state.Failed())
		assert.Equal(t, int32(3), attempts.Load())
		chunks, err := fixture.store.ListChunks(context.Background(), state.SplitID)
		require.NoError(t, err)
		for _, chunk := range chunks {
			assert.Equal(t, vfile.ChunkStatusComplete, chunk.Status)
			assert.NotEmpty(t, chunk.Vector)
		}
	})
	t.Run("Should fail the run when the subject key is unknown", func(t *testing.T) {
		fixture := newPipelineFixture(t)
		env := (&testsuite.WorkflowTestSuite{}).NewTestWorkflowEnvironment()
		fixture.register(env)
		env.ExecuteWorkflow(EmbeddingWorkflow, EmbeddingRequest{
			SubjectID:   "missing",
			SubjectType: "doc",
			Config:      embeddingTestConfig(),
		})
		require.True(t, env.IsWorkflowCompleted())
		assert.Error(t, env.GetWorkflowError())
	})
}
