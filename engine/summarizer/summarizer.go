package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/docbed/docbed/engine/vfile"
)

// Variant names produced by every summarizer.
const (
	VariantMachine = "machine"
	VariantPretty  = "pretty"
)

// Summarizer condenses a document into its named variants. Implementations
// must return every variant they advertise or fail as a whole; a partial
// map would leave the file half-summarized across retries.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (map[string]vfile.SummaryResult, error)
}

// Config holds provider settings for the chat-completion summarizer.
type Config struct {
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	Temperature float64 `koanf:"temperature"`
}

const (
	defaultModel = "gpt-4o-mini"
	// maxInputRunes bounds what we send to the provider; anything longer
	// is truncated rather than rejected.
	maxInputRunes = 48000
)

const systemPrompt = `You summarize documents. Respond with a JSON object holding two keys,
"machine" and "pretty". Each value has the fields "short_version",
"description", "title", "tags" (array of strings) and "language"
(ISO 639-1 code of the document).
The "machine" variant is terse and factual, written for retrieval systems.
The "pretty" variant is fluent prose written for human readers.
Write summaries in the document's own language.`

// OpenAI produces both summary variants with a single JSON-mode chat
// completion.
type OpenAI struct {
	llm         *openai.LLM
	temperature float64
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("summarizer: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("summarizer: init client: %w", err)
	}
	return &OpenAI{llm: llm, temperature: cfg.Temperature}, nil
}

func (s *OpenAI) Summarize(ctx context.Context, text string) (map[string]vfile.SummaryResult, error) {
	text = truncateRunes(text, maxInputRunes)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}
	options := []llms.CallOption{llms.WithJSONMode()}
	if s.temperature > 0 {
		options = append(options, llms.WithTemperature(s.temperature))
	}
	resp, err := s.llm.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, fmt.Errorf("summarizer: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("summarizer: provider returned no choices")
	}
	return parseVariants(resp.Choices[0].Content)
}

func parseVariants(raw string) (map[string]vfile.SummaryResult, error) {
	var payload struct {
		Machine vfile.SummaryResult `json:"machine"`
		Pretty  vfile.SummaryResult `json:"pretty"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("summarizer: malformed response: %w", err)
	}
	if payload.Machine.ShortVersion == "" || payload.Pretty.ShortVersion == "" {
		return nil, fmt.Errorf("summarizer: response is missing a variant")
	}
	return map[string]vfile.SummaryResult{
		VariantMachine: payload.Machine,
		VariantPretty:  payload.Pretty,
	}, nil
}

func truncateRunes(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit])
}
