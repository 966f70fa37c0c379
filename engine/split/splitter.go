package split

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/docbed/docbed/engine/core"
)

// Fragment is one chunk of a document: its literal content plus the
// [Start, Stop) character offsets into the original text. Offsets count
// runes, not bytes, so they stay valid for multi-byte content.
type Fragment struct {
	Start   int    `json:"start"`
	Stop    int    `json:"stop"`
	Content string `json:"content"`
}

// Splitter deterministically partitions text into overlapping fragments.
// Identical (text, config) pairs always yield identical fragments; the
// split-dedupe scheme depends on it.
type Splitter struct {
	config Config
}

// New validates the configuration and builds a splitter. Token-based
// splitting requires the model to resolve to a tiktoken encoding; an
// unknown model is a configuration error, not a silent fallback.
func New(cfg Config) (*Splitter, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TokenSplitter {
		if _, err := tiktoken.EncodingForModel(cfg.Model); err != nil {
			return nil, fmt.Errorf("%w: no tokenizer for model %q: %v", core.ErrInvalidConfig, cfg.Model, err)
		}
	}
	return &Splitter{config: cfg}, nil
}

// Config returns the normalized configuration the splitter was built with.
func (s *Splitter) Config() Config {
	return s.config
}

// Split partitions text into ordered fragments carrying their offsets.
func (s *Splitter) Split(text string) ([]Fragment, error) {
	if text == "" {
		return nil, nil
	}
	if s.config.Algorithm == AlgorithmFixed && !s.config.TokenSplitter {
		return s.splitFixed(text), nil
	}
	segments, err := s.splitText(text)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	return locateFragments(text, segments)
}

func (s *Splitter) splitText(text string) ([]string, error) {
	size := s.config.ChunkSize
	overlap := s.config.Overlap()
	if s.config.TokenSplitter {
		sp := textsplitter.NewTokenSplitter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithModelName(s.config.Model),
		)
		return sp.SplitText(text)
	}
	sp := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)
	return sp.SplitText(text)
}

// splitFixed slices the text into fixed-width windows advancing by
// chunk_size - overlap, so each window repeats the trailing overlap of
// its predecessor.
func (s *Splitter) splitFixed(text string) []Fragment {
	runes := []rune(text)
	size := s.config.ChunkSize
	step := size - s.config.Overlap()
	frags := make([]Fragment, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		stop := start + size
		if stop > len(runes) {
			stop = len(runes)
		}
		frags = append(frags, Fragment{Start: start, Stop: stop, Content: string(runes[start:stop])})
		if stop == len(runes) {
			break
		}
	}
	return frags
}

// locateFragments recovers offsets for segments produced by splitters that
// return bare strings. Each segment is searched from one past the previous
// fragment's start, so overlapping chunks resolve to monotonically
// increasing positions. Reported offsets count runes.
func locateFragments(text string, segments []string) ([]Fragment, error) {
	frags := make([]Fragment, 0, len(segments))
	from := 0
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		start := strings.Index(text[from:], seg)
		if start >= 0 {
			start += from
		} else {
			// Overlapping segments can begin before the search cursor.
			// Take the nearest occurrence at or before it, never the
			// first in the text: repeated sentences would resolve to
			// the wrong position otherwise.
			bound := from + len(seg)
			if bound > len(text) {
				bound = len(text)
			}
			start = strings.LastIndex(text[:bound], seg)
			if start < 0 {
				return nil, fmt.Errorf("segment not found in source text at offset %d", from)
			}
		}
		charStart := utf8.RuneCountInString(text[:start])
		frags = append(frags, Fragment{
			Start:   charStart,
			Stop:    charStart + utf8.RuneCountInString(seg),
			Content: seg,
		})
		from = start + 1
	}
	return frags, nil
}
