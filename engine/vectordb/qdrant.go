package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	qdrantDefaultTimeout = 10 * time.Second
	qdrantMaxRetries     = 3
	qdrantRetryBackoff   = 200 * time.Millisecond
)

type qdrantIndex struct {
	client  *http.Client
	baseURL string
	metric  string
	apiKey  string
}

func newQdrantIndex(cfg *Config) (Index, error) {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		return nil, fmt.Errorf("vectordb: qdrant url is required")
	}
	return &qdrantIndex{
		client:  &http.Client{Timeout: qdrantDefaultTimeout},
		baseURL: base,
		metric:  chooseMetric(cfg.Metric),
		apiKey:  cfg.APIKey,
	}, nil
}

func chooseMetric(metric string) string {
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "euclid", "euclidean", "l2":
		return "Euclid"
	case "dot", "dotproduct":
		return "Dot"
	default:
		return "Cosine"
	}
}

func (q *qdrantIndex) Provider() Provider {
	return ProviderQdrant
}

func (q *qdrantIndex) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("vectordb: collection %q needs a positive dimension", name)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": q.metric,
		},
	}
	// PUT on an existing collection is a no-op on the qdrant side, so the
	// call stays safe to retry from resumed workflow runs.
	return q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", name), body, nil)
}

func (q *qdrantIndex) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	path := fmt.Sprintf("/collections/%s/points", collection)
	return q.doRequest(ctx, http.MethodPut, path, body, nil)
}

func (q *qdrantIndex) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: marshal request: %w", err)
		}
		payload = encoded
	}
	backoff := retry.WithMaxRetries(qdrantMaxRetries, retry.NewExponential(qdrantRetryBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		return q.send(ctx, method, path, payload, out)
	})
}

func (q *qdrantIndex) send(ctx context.Context, method, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("qdrant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("qdrant: request failed: %w", err))
	}
	defer resp.Body.Close()
	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return retry.RetryableError(fmt.Errorf("qdrant: read response: %w", readErr))
	}
	if resp.StatusCode >= 500 {
		return retry.RetryableError(fmt.Errorf("qdrant: %s %s: status %d: %s", method, path, resp.StatusCode, snippet(raw)))
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Status struct {
				Error string `json:"error"`
			} `json:"status"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Status.Error != "" {
			return fmt.Errorf("qdrant: %s %s: %s", method, path, apiErr.Status.Error)
		}
		return fmt.Errorf("qdrant: %s %s: status %d: %s", method, path, resp.StatusCode, snippet(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}

func snippet(raw []byte) string {
	const max = 256
	text := strings.TrimSpace(string(raw))
	if len(text) > max {
		return text[:max]
	}
	return text
}

func errUnknownProvider(provider Provider) error {
	return fmt.Errorf("vectordb: unknown provider %q", provider)
}
