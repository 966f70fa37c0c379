package split

import (
	"fmt"
	"strings"

	"github.com/docbed/docbed/engine/core"
)

// Algorithm selects the splitting strategy.
type Algorithm string

const (
	AlgorithmRecursive  Algorithm = "recursive"
	AlgorithmFixed      Algorithm = "fixed"
	AlgorithmSemantic   Algorithm = "semantic"
	AlgorithmLinguistic Algorithm = "linguistic"
)

const (
	DefaultChunkSize      = 800
	DefaultOverlapPercent = 50
	DefaultModel          = "text-embedding-3-large"
)

// Config describes one deterministic chunking of a document. Two configs
// with equal field values fingerprint identically, which is what makes
// split deduplication safe.
type Config struct {
	ChunkSize           int       `json:"chunk_size"            koanf:"chunk_size"`
	ChunkOverlapPercent int       `json:"chunk_overlap_perc"    koanf:"chunk_overlap_perc"`
	TokenSplitter       bool      `json:"token_splitter"        koanf:"token_splitter"`
	Algorithm           Algorithm `json:"splitter_type"         koanf:"splitter_type"`
	Model               string    `json:"model"                 koanf:"model"`
}

// DefaultConfig returns the splitting configuration used when a caller
// supplies none.
func DefaultConfig() Config {
	return Config{
		ChunkSize:           DefaultChunkSize,
		ChunkOverlapPercent: DefaultOverlapPercent,
		Algorithm:           AlgorithmRecursive,
		Model:               DefaultModel,
	}
}

// Normalized fills zero-valued fields with defaults.
func (c Config) Normalized() Config {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmRecursive
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	return c
}

// Overlap returns the number of characters shared between consecutive
// chunks: floor(chunk_size * overlap_percent / 100).
func (c Config) Overlap() int {
	return c.ChunkSize * c.ChunkOverlapPercent / 100
}

// Fingerprint derives a stable content-addressed identifier for the config,
// hashing its canonical sorted-key serialization.
func (c Config) Fingerprint() string {
	return core.HashPayload(map[string]any{
		"chunk_size":         c.ChunkSize,
		"chunk_overlap_perc": c.ChunkOverlapPercent,
		"token_splitter":     c.TokenSplitter,
		"splitter_type":      string(c.Algorithm),
		"model":              c.Model,
	})
}

// Name returns a human-readable tag for the configuration.
func (c Config) Name() string {
	return strings.ToLower(fmt.Sprintf(
		"%s_%s_c%d_o%d_t%t", c.Algorithm, c.Model, c.ChunkSize, c.Overlap(), c.TokenSplitter,
	))
}

// Validate rejects configurations that can never produce a valid split.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be greater than zero", core.ErrInvalidConfig)
	}
	if c.ChunkOverlapPercent < 0 || c.ChunkOverlapPercent > 100 {
		return fmt.Errorf("%w: chunk overlap percent %d outside [0,100]", core.ErrInvalidConfig, c.ChunkOverlapPercent)
	}
	if c.Overlap() >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", core.ErrInvalidConfig, c.Overlap(), c.ChunkSize)
	}
	switch c.Algorithm {
	case AlgorithmRecursive, AlgorithmFixed:
	case AlgorithmSemantic, AlgorithmLinguistic:
		return fmt.Errorf("%w: splitter algorithm %q is not available in this build", core.ErrInvalidConfig, c.Algorithm)
	default:
		return fmt.Errorf("%w: unknown splitter algorithm %q", core.ErrInvalidConfig, c.Algorithm)
	}
	return nil
}
