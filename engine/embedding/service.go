package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/embedder"
	"github.com/docbed/docbed/engine/split"
	"github.com/docbed/docbed/engine/vfile"
	"github.com/docbed/docbed/pkg/logger"
)

// Service turns files into persisted splits and embedded chunks. Every
// operation is safe to replay: splits deduplicate by fingerprint and a
// chunk is embedded at most once.
type Service struct {
	store  vfile.Store
	client embedder.Client
}

func NewService(store vfile.Store, client embedder.Client) *Service {
	return &Service{store: store, client: client}
}

// PrepareSplit returns the persisted split for (file, cfg), creating it
// together with its chunk rows when no split with the same fingerprint
// exists yet. When skipEmbedding is set, freshly created chunks start in
// the skip state so the fan-out leaves them alone; an existing split is
// returned untouched either way.
func (s *Service) PrepareSplit(
	ctx context.Context,
	file *vfile.VFile,
	cfg split.Config,
	skipEmbedding bool,
) (*vfile.Split, []*vfile.Chunk, error) {
	cfg = cfg.Normalized()
	splitter, err := split.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	fragments, err := splitter.Split(file.Content())
	if err != nil {
		return nil, nil, fmt.Errorf("splitting file %s: %w", file.ID, err)
	}
	status := vfile.ChunkStatusNew
	if skipEmbedding {
		status = vfile.ChunkStatusSkip
	}
	candidate := &vfile.Split{
		ID:           core.MustNewID(),
		VFileID:      file.ID,
		ConfigHash:   cfg.Fingerprint(),
		Mode:         string(cfg.Algorithm),
		Name:         cfg.Name(),
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.Overlap(),
		Model:        cfg.Model,
		Parts:        len(fragments),
	}
	chunks := make([]*vfile.Chunk, len(fragments))
	for i, frag := range fragments {
		chunks[i] = &vfile.Chunk{
			ID:         core.MustNewID(),
			VFileID:    file.ID,
			SplitID:    candidate.ID,
			PartNumber: i,
			CharStart:  frag.Start,
			CharEnd:    frag.Stop,
			Content:    frag.Content,
			Status:     status,
			Model:      cfg.Model,
		}
	}
	return s.store.GetOrCreateSplit(ctx, file, candidate, chunks)
}

// EmbedChunk computes and persists a chunk's vector. Chunks already in
// the complete state are returned unchanged, which makes retries and
// concurrent duplicate work harmless.
func (s *Service) EmbedChunk(ctx context.Context, chunkID core.ID) (*vfile.Chunk, error) {
	chunk, err := s.store.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if chunk.Status == vfile.ChunkStatusComplete {
		return chunk, nil
	}
	vectors, err := s.client.Embed(ctx, []string{chunk.Content}, chunk.Model)
	if err != nil {
		if statusErr := s.store.SetChunkStatus(ctx, chunkID, vfile.ChunkStatusError); statusErr != nil {
			logger.FromContext(ctx).Error("failed to mark chunk errored",
				"chunk_id", chunkID, "error", statusErr)
		}
		return nil, fmt.Errorf("embedding chunk %s: %w", chunkID, err)
	}
	updated, err := s.store.SetChunkVector(ctx, chunkID, vectors[0])
	if err != nil {
		return nil, err
	}
	if !updated {
		// Another worker finished first. Its vector stands.
		return s.store.GetChunk(ctx, chunkID)
	}
	chunk.Vector = vectors[0]
	chunk.Status = vfile.ChunkStatusComplete
	return chunk, nil
}

// EmbedPending embeds every chunk of the split that is not complete yet,
// sequentially, collecting per-chunk failures instead of stopping at the
// first one.
func (s *Service) EmbedPending(ctx context.Context, splitID core.ID) ([]*vfile.Chunk, error) {
	chunks, err := s.store.ListChunks(ctx, splitID)
	if err != nil {
		return nil, err
	}
	var failures []error
	embedded := make([]*vfile.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		current, embedErr := s.EmbedChunk(ctx, chunk.ID)
		if embedErr != nil {
			failures = append(failures, embedErr)
			continue
		}
		embedded = append(embedded, current)
	}
	if len(failures) > 0 {
		return embedded, fmt.Errorf("split %s: %d of %d chunks failed: %w",
			splitID, len(failures), len(chunks), errors.Join(failures...))
	}
	return embedded, nil
}
