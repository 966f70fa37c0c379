package vfile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/docbed/docbed/engine/core"
)

// MemStore is an in-memory Store used by tests and local runs without
// Postgres. It honors the same uniqueness and get-or-create rules as the
// database-backed store.
type MemStore struct {
	mu           sync.Mutex
	files        map[core.ID]*VFile
	filesByKey   map[SubjectKey]core.ID
	splits       map[core.ID]*Split
	chunks       map[core.ID]*Chunk
	summaries    map[core.ID]*Summary
	collections  map[core.ID]*Collection
	vectors      map[core.ID]*Vector
	memberships  map[core.ID]*VectorVFile
	fileInColl   map[[2]core.ID]bool
	summaryByKey map[summaryKey]core.ID
}

type summaryKey struct {
	fileID  core.ID
	variant string
}

func NewMemStore() *MemStore {
	return &MemStore{
		files:        make(map[core.ID]*VFile),
		filesByKey:   make(map[SubjectKey]core.ID),
		splits:       make(map[core.ID]*Split),
		chunks:       make(map[core.ID]*Chunk),
		summaries:    make(map[core.ID]*Summary),
		collections:  make(map[core.ID]*Collection),
		vectors:      make(map[core.ID]*Vector),
		memberships:  make(map[core.ID]*VectorVFile),
		fileInColl:   make(map[[2]core.ID]bool),
		summaryByKey: make(map[summaryKey]core.ID),
	}
}

func (m *MemStore) GetOrCreateFile(_ context.Context, candidate *VFile) (*VFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.filesByKey[candidate.Key()]; ok {
		existing := m.files[id]
		if merged, changed := MergeInfo(existing.Info, candidate.Info); changed {
			existing.Info = merged
			existing.UpdatedAt = time.Now().UTC()
		}
		clone := *existing
		return &clone, nil
	}
	stored := *candidate
	if stored.ID.IsZero() {
		stored.ID = core.MustNewID()
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.files[stored.ID] = &stored
	m.filesByKey[stored.Key()] = stored.ID
	clone := stored
	return &clone, nil
}

func (m *MemStore) GetFile(_ context.Context, id core.ID) (*VFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *file
	return &clone, nil
}

func (m *MemStore) GetFileByKey(_ context.Context, key SubjectKey) (*VFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.filesByKey[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *m.files[id]
	return &clone, nil
}

func (m *MemStore) DeleteFile(_ context.Context, id core.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[id]
	if !ok {
		return core.ErrNotFound
	}
	delete(m.filesByKey, file.Key())
	delete(m.files, id)
	for splitID, sp := range m.splits {
		if sp.VFileID == id {
			delete(m.splits, splitID)
		}
	}
	for chunkID, chunk := range m.chunks {
		if chunk.VFileID == id {
			delete(m.chunks, chunkID)
		}
	}
	for summaryID, summary := range m.summaries {
		if summary.VFileID == id {
			delete(m.summaryByKey, summaryKey{fileID: id, variant: summary.VariantName})
			delete(m.summaries, summaryID)
		}
	}
	return nil
}

func (m *MemStore) GetOrCreateSplit(
	_ context.Context,
	file *VFile,
	split *Split,
	chunks []*Chunk,
) (*Split, []*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.splits {
		if existing.VFileID == file.ID && existing.ConfigHash == split.ConfigHash {
			clone := *existing
			return &clone, m.chunksOf(existing.ID), nil
		}
	}
	stored := *split
	stored.VFileID = file.ID
	stored.CreatedAt = time.Now().UTC()
	m.splits[stored.ID] = &stored
	for _, chunk := range chunks {
		c := *chunk
		c.SplitID = stored.ID
		m.chunks[c.ID] = &c
	}
	clone := stored
	return &clone, m.chunksOf(stored.ID), nil
}

func (m *MemStore) chunksOf(splitID core.ID) []*Chunk {
	out := make([]*Chunk, 0)
	for _, chunk := range m.chunks {
		if chunk.SplitID == splitID {
			clone := *chunk
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartNumber < out[j].PartNumber })
	return out
}

func (m *MemStore) GetSplit(_ context.Context, id core.ID) (*Split, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.splits[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *sp
	return &clone, nil
}

func (m *MemStore) FindSplitByHash(_ context.Context, fileID core.ID, configHash string) (*Split, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sp := range m.splits {
		if sp.VFileID == fileID && sp.ConfigHash == configHash {
			clone := *sp
			return &clone, nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *MemStore) LatestSplit(_ context.Context, fileID core.ID) (*Split, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Split
	for _, sp := range m.splits {
		if sp.VFileID != fileID {
			continue
		}
		if latest == nil || sp.CreatedAt.After(latest.CreatedAt) {
			latest = sp
		}
	}
	if latest == nil {
		return nil, core.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (m *MemStore) ListChunks(_ context.Context, splitID core.ID) ([]*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.splits[splitID]; !ok {
		return nil, core.ErrNotFound
	}
	return m.chunksOf(splitID), nil
}

func (m *MemStore) GetChunk(_ context.Context, id core.ID) (*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk, ok := m.chunks[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *chunk
	return &clone, nil
}

func (m *MemStore) SetChunkVector(_ context.Context, id core.ID, vector []float32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk, ok := m.chunks[id]
	if !ok {
		return false, core.ErrNotFound
	}
	if chunk.Status == ChunkStatusComplete {
		return false, nil
	}
	chunk.Vector = append([]float32(nil), vector...)
	chunk.Status = ChunkStatusComplete
	return true, nil
}

func (m *MemStore) SetChunkStatus(_ context.Context, id core.ID, status ChunkStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk, ok := m.chunks[id]
	if !ok {
		return core.ErrNotFound
	}
	if chunk.Status == ChunkStatusComplete {
		return nil
	}
	chunk.Status = status
	return nil
}

func (m *MemStore) CreateSummaryIfAbsent(_ context.Context, summary *Summary) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := summaryKey{fileID: summary.VFileID, variant: summary.VariantName}
	if _, ok := m.summaryByKey[key]; ok {
		return false, nil
	}
	stored := *summary
	if stored.ID.IsZero() {
		stored.ID = core.MustNewID()
	}
	stored.CreatedAt = time.Now().UTC()
	m.summaries[stored.ID] = &stored
	m.summaryByKey[key] = stored.ID
	return true, nil
}

func (m *MemStore) ReplaceSummary(_ context.Context, summary *Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := summaryKey{fileID: summary.VFileID, variant: summary.VariantName}
	if id, ok := m.summaryByKey[key]; ok {
		delete(m.summaries, id)
	}
	stored := *summary
	if stored.ID.IsZero() {
		stored.ID = core.MustNewID()
	}
	stored.CreatedAt = time.Now().UTC()
	m.summaries[stored.ID] = &stored
	m.summaryByKey[key] = stored.ID
	return nil
}

func (m *MemStore) ListSummaries(_ context.Context, fileID core.ID) ([]*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Summary, 0)
	for _, summary := range m.summaries {
		if summary.VFileID == fileID {
			clone := *summary
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantName < out[j].VariantName })
	return out, nil
}

func (m *MemStore) GetSummary(_ context.Context, fileID core.ID, variant string) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.summaryByKey[summaryKey{fileID: fileID, variant: variant}]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *m.summaries[id]
	return &clone, nil
}

func (m *MemStore) GetOrCreateCollection(_ context.Context, name string) (*Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, coll := range m.collections {
		if coll.Name == name {
			clone := *coll
			return &clone, nil
		}
	}
	stored := Collection{
		ID:        core.MustNewID(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	m.collections[stored.ID] = &stored
	clone := stored
	return &clone, nil
}

func (m *MemStore) GetCollection(_ context.Context, id core.ID) (*Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *coll
	return &clone, nil
}

func (m *MemStore) AddFileToCollection(_ context.Context, fileID, collectionID core.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[fileID]; !ok {
		return core.ErrNotFound
	}
	if _, ok := m.collections[collectionID]; !ok {
		return core.ErrNotFound
	}
	m.fileInColl[[2]core.ID{fileID, collectionID}] = true
	return nil
}

// FileInCollection reports membership, used by tests.
func (m *MemStore) FileInCollection(fileID, collectionID core.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fileInColl[[2]core.ID{fileID, collectionID}]
}

func (m *MemStore) GetOrCreateVector(_ context.Context, candidate *Vector) (*Vector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vec := range m.vectors {
		if vec.SubjectID == candidate.SubjectID &&
			vec.SubjectType == candidate.SubjectType &&
			vec.VectorType == candidate.VectorType &&
			vec.ExternalProvider == candidate.ExternalProvider {
			clone := *vec
			return &clone, nil
		}
	}
	stored := *candidate
	if stored.ID.IsZero() {
		stored.ID = core.MustNewID()
	}
	stored.CreatedAt = time.Now().UTC()
	m.vectors[stored.ID] = &stored
	clone := stored
	return &clone, nil
}

func (m *MemStore) FindVector(_ context.Context, key SubjectKey, vectorType, provider string) (*Vector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vec := range m.vectors {
		if vec.SubjectID == key.SubjectID &&
			vec.SubjectType == key.SubjectType &&
			vec.VectorType == vectorType &&
			vec.ExternalProvider == provider {
			clone := *vec
			return &clone, nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *MemStore) GetVectorVFile(_ context.Context, vectorID, fileID core.ID) (*VectorVFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, membership := range m.memberships {
		if membership.VectorID == vectorID && membership.VFileID == fileID {
			clone := *membership
			return &clone, nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *MemStore) CreateVectorVFile(_ context.Context, membership *VectorVFile, tolerateConflict bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.memberships {
		if existing.VectorID == membership.VectorID && existing.VFileID == membership.VFileID {
			if tolerateConflict {
				return nil
			}
			return core.ErrConflict
		}
	}
	stored := *membership
	if stored.ID.IsZero() {
		stored.ID = core.MustNewID()
	}
	stored.CreatedAt = time.Now().UTC()
	m.memberships[stored.ID] = &stored
	return nil
}
