package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Static is a deterministic, provider-free client for tests and local
// development. Each text maps to the same vector on every call.
type Static struct {
	Dimension int
}

func NewStatic(dimension int) *Static {
	if dimension <= 0 {
		dimension = 8
	}
	return &Static{Dimension: dimension}
}

func (s *Static) Embed(_ context.Context, texts []string, model string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = s.vectorFor(text, model)
	}
	return out, nil
}

func (s *Static) vectorFor(text, model string) []float32 {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	vec := make([]float32, s.Dimension)
	var norm float64
	for i := range vec {
		bits := binary.BigEndian.Uint32(sum[(i*4)%len(sum):][:4])
		v := float64(bits%1000)/500.0 - 1.0
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
