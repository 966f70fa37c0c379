package embedder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms/openai"
)

// Client converts text to vectors. Implementations must be order- and
// length-preserving: vectors[i] always corresponds to texts[i].
type Client interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Config carries provider credentials.
type Config struct {
	APIKey       string `koanf:"api_key"`
	BaseURL      string `koanf:"base_url"`
	Organization string `koanf:"organization"`
}

// OpenAI is a langchaingo-backed embedding client. The underlying LLM
// handle is bound to one embedding model, so handles are built lazily per
// model and reused.
type OpenAI struct {
	cfg  Config
	mu   sync.Mutex
	llms map[string]*openai.LLM
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embedder: api key is required")
	}
	return &OpenAI{cfg: cfg, llms: make(map[string]*openai.LLM)}, nil
}

func (c *OpenAI) llmFor(model string) (*openai.LLM, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if llm, ok := c.llms[model]; ok {
		return llm, nil
	}
	opts := []openai.Option{
		openai.WithToken(c.cfg.APIKey),
		openai.WithEmbeddingModel(model),
	}
	if c.cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(c.cfg.BaseURL))
	}
	if c.cfg.Organization != "" {
		opts = append(opts, openai.WithOrganization(c.cfg.Organization))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("embedder: init client for model %q: %w", model, err)
	}
	c.llms[model] = llm
	return llm, nil
}

// Embed converts texts to vectors using the given model.
func (c *OpenAI) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if model == "" {
		return nil, errors.New("embedder: model is required")
	}
	llm, err := c.llmFor(model)
	if err != nil {
		return nil, err
	}
	vectors, err := llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedder: embed %d texts with %s: %w", len(texts), model, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder: provider returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
