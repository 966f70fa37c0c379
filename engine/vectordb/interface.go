package vectordb

import (
	"context"
)

// Provider enumerates supported vector index backends.
type Provider string

const (
	ProviderQdrant Provider = "qdrant"
	ProviderMemory Provider = "memory"
	ProviderNone   Provider = "none"
)

// Point is one indexed vector plus its payload. Upserting a point with an
// existing id overwrites it, so writes are idempotent per id.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Index exposes the minimal contract the pipeline needs from a vector
// store.
type Index interface {
	Provider() Provider
	EnsureCollection(ctx context.Context, name string, dim int) error
	UpsertPoints(ctx context.Context, collection string, points []Point) error
}

// Config captures connection details for a vector index backend.
type Config struct {
	Provider  Provider `koanf:"provider"`
	URL       string   `koanf:"url"`
	APIKey    string   `koanf:"api_key"`
	Dimension int      `koanf:"dimension"`
	Metric    string   `koanf:"metric"`
}

// New builds an index for the configured provider.
func New(cfg *Config) (Index, error) {
	if cfg == nil || cfg.Provider == "" || cfg.Provider == ProviderNone {
		return NewNoop(), nil
	}
	switch cfg.Provider {
	case ProviderQdrant:
		return newQdrantIndex(cfg)
	case ProviderMemory:
		return NewMemory(cfg.Dimension), nil
	default:
		return nil, errUnknownProvider(cfg.Provider)
	}
}
