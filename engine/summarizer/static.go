package summarizer

import (
	"context"
	"strings"

	"github.com/docbed/docbed/engine/vfile"
)

// Static is a provider-free summarizer for tests and local development.
// Variants are derived from the text itself so calls stay deterministic.
type Static struct {
	// Err, when set, is returned from every call.
	Err error
}

func NewStatic() *Static {
	return &Static{}
}

func (s *Static) Summarize(_ context.Context, text string) (map[string]vfile.SummaryResult, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	head := firstWords(text, 12)
	return map[string]vfile.SummaryResult{
		VariantMachine: {
			ShortVersion: head,
			Description:  firstWords(text, 24),
			Title:        firstWords(text, 6),
			Tags:         []string{"document"},
			Language:     "en",
		},
		VariantPretty: {
			ShortVersion: "In short: " + head,
			Description:  firstWords(text, 24),
			Title:        firstWords(text, 6),
			Tags:         []string{"document"},
			Language:     "en",
		},
	}, nil
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
