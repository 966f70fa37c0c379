package vectordb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/embedding"
	"github.com/docbed/docbed/engine/split"
	"github.com/docbed/docbed/engine/vfile"
	"github.com/docbed/docbed/pkg/logger"
)

// pointNamespace seeds deterministic point ids so replayed upserts
// overwrite instead of duplicating.
var pointNamespace = uuid.MustParse("8d6a21c6-6c5f-4a45-9e17-3f0b4a5d9b42")

// metaCollectionDim is the dimension of the companion meta collection,
// which carries payloads rather than meaningful vectors.
const metaCollectionDim = 1

// Manager materializes vector handles and pushes file embeddings into the
// external index.
type Manager struct {
	store   vfile.Store
	service *embedding.Service
	index   Index
}

func NewManager(store vfile.Store, service *embedding.Service, index Index) *Manager {
	return &Manager{store: store, service: service, index: index}
}

// GetOrCreateVector resolves the handle for (key, vectorType) on the
// configured provider, registering it on first use.
func (m *Manager) GetOrCreateVector(
	ctx context.Context,
	key vfile.SubjectKey,
	vectorType string,
) (*vfile.Vector, error) {
	candidate := &vfile.Vector{
		ID:               core.MustNewID(),
		SubjectID:        key.SubjectID,
		SubjectType:      key.SubjectType,
		VectorType:       vectorType,
		ExternalProvider: string(m.index.Provider()),
	}
	candidate.ExternalID = candidate.CollectionName()
	return m.store.GetOrCreateVector(ctx, candidate)
}

// AddFilesToVector indexes each file's chunks into the vector's external
// collection plus one descriptive point into the meta collection. Files
// already attached are skipped unless reindex is set; per-file failures
// are collected so one bad file does not block the rest.
func (m *Manager) AddFilesToVector(
	ctx context.Context,
	vector *vfile.Vector,
	fileIDs []core.ID,
	cfg split.Config,
	reindex bool,
) error {
	log := logger.FromContext(ctx)
	var failures []error
	for _, fileID := range fileIDs {
		if err := m.addFile(ctx, vector, fileID, cfg, reindex); err != nil {
			log.Error("failed to index file into vector",
				"vector_id", vector.ID, "vfile_id", fileID, "error", err)
			failures = append(failures, fmt.Errorf("file %s: %w", fileID, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("vector %s: %d of %d files failed: %w",
			vector.ID, len(failures), len(fileIDs), errors.Join(failures...))
	}
	return nil
}

func (m *Manager) addFile(
	ctx context.Context,
	vector *vfile.Vector,
	fileID core.ID,
	cfg split.Config,
	reindex bool,
) error {
	membership, err := m.store.GetVectorVFile(ctx, vector.ID, fileID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	if membership != nil && !reindex {
		return nil
	}
	file, err := m.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	sp, _, err := m.service.PrepareSplit(ctx, file, cfg, false)
	if err != nil {
		return err
	}
	chunks, err := m.service.EmbedPending(ctx, sp.ID)
	if err != nil {
		return err
	}
	if err := m.upsertFile(ctx, vector, file, sp, chunks); err != nil {
		return err
	}
	if membership != nil {
		return nil
	}
	return m.store.CreateVectorVFile(ctx, &vfile.VectorVFile{
		ID:               core.MustNewID(),
		VectorID:         vector.ID,
		VFileID:          file.ID,
		SplitID:          sp.ID,
		ExternalID:       vector.CollectionName(),
		ExternalProvider: string(m.index.Provider()),
	}, reindex)
}

func (m *Manager) upsertFile(
	ctx context.Context,
	vector *vfile.Vector,
	file *vfile.VFile,
	sp *vfile.Split,
	chunks []*vfile.Chunk,
) error {
	points := make([]Point, 0, len(chunks))
	dim := 0
	for _, chunk := range chunks {
		if len(chunk.Vector) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(chunk.Vector)
		}
		points = append(points, Point{
			ID:     PointID(chunk.ID),
			Vector: chunk.Vector,
			Payload: map[string]any{
				"vfile_id":     file.ID.String(),
				"split_id":     sp.ID.String(),
				"subject_id":   file.SubjectID,
				"subject_type": file.SubjectType,
				"part_number":  chunk.PartNumber,
				"char_start":   chunk.CharStart,
				"char_end":     chunk.CharEnd,
				"text":         chunk.Content,
			},
		})
	}
	if len(points) == 0 {
		return fmt.Errorf("file %s has no embedded chunks to index", file.ID)
	}
	collection := vector.CollectionName()
	if err := m.index.EnsureCollection(ctx, collection, dim); err != nil {
		return err
	}
	if err := m.index.UpsertPoints(ctx, collection, points); err != nil {
		return err
	}
	meta := vector.MetaCollectionName()
	if err := m.index.EnsureCollection(ctx, meta, metaCollectionDim); err != nil {
		return err
	}
	return m.index.UpsertPoints(ctx, meta, []Point{m.metaPoint(ctx, file, sp)})
}

// metaPoint builds the single descriptive point per file. The vector is a
// placeholder; retrieval reads the payload only.
func (m *Manager) metaPoint(ctx context.Context, file *vfile.VFile, sp *vfile.Split) Point {
	payload := map[string]any{
		"vfile_id":        file.ID.String(),
		"subject_id":      file.SubjectID,
		"subject_type":    file.SubjectType,
		"source_filename": file.SourceFilename,
		"tokens":          file.Tokens,
		"parts":           sp.Parts,
		"split_id":        sp.ID.String(),
	}
	summaries, err := m.store.ListSummaries(ctx, file.ID)
	if err != nil {
		logger.FromContext(ctx).Warn("could not load summaries for meta point",
			"vfile_id", file.ID, "error", err)
	}
	for _, summary := range summaries {
		if summary.VariantName != "machine" {
			continue
		}
		payload["title"] = summary.Title
		payload["description"] = summary.Description
		payload["summary"] = summary.SummaryText
		break
	}
	return Point{
		ID:      PointID(file.ID),
		Vector:  make([]float32, metaCollectionDim),
		Payload: payload,
	}
}

// PointID maps an internal id to the UUID form external indexes require.
// The mapping is deterministic so re-upserting the same chunk always hits
// the same point.
func PointID(id core.ID) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}
