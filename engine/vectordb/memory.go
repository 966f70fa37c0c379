package vectordb

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps points in process memory. It backs tests and local runs
// where no qdrant instance is available.
type Memory struct {
	mu          sync.RWMutex
	dimension   int
	collections map[string]map[string]Point
	dims        map[string]int
}

func NewMemory(dimension int) *Memory {
	return &Memory{
		dimension:   dimension,
		collections: make(map[string]map[string]Point),
		dims:        make(map[string]int),
	}
}

func (m *Memory) Provider() Provider {
	return ProviderMemory
}

func (m *Memory) EnsureCollection(_ context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("vectordb: collection %q needs a positive dimension", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.dims[name]; ok {
		if existing != dim {
			return fmt.Errorf("vectordb: collection %q already exists with dimension %d", name, existing)
		}
		return nil
	}
	m.dims[name] = dim
	m.collections[name] = make(map[string]Point)
	return nil
}

func (m *Memory) UpsertPoints(_ context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dim, ok := m.dims[collection]
	if !ok {
		return fmt.Errorf("vectordb: collection %q does not exist", collection)
	}
	for i := range points {
		pt := points[i]
		if len(pt.Vector) != dim {
			return fmt.Errorf("vectordb: point %q dimension mismatch: got %d, want %d", pt.ID, len(pt.Vector), dim)
		}
		m.collections[collection][pt.ID] = pt
	}
	return nil
}

// Points returns a snapshot of a collection, used by tests to assert on
// what was indexed.
func (m *Memory) Points(collection string) []Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.collections[collection]
	points := make([]Point, 0, len(stored))
	for _, pt := range stored {
		points = append(points, pt)
	}
	return points
}

// Collections lists the collection names that were created.
func (m *Memory) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.dims))
	for name := range m.dims {
		names = append(names, name)
	}
	return names
}
