package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
)

// LlamaCppConfig configures a llama.cpp server started with --embedding
type LlamaCppConfig struct {
	URL           string
	Timeout       time.Duration
	RetryAttempts uint
	// ModelName labels stored vectors; the server itself serves a single model
	ModelName string
	Logger    *log.Logger
}

func NewLlamaCppConfig() LlamaCppConfig {
	return LlamaCppConfig{
		URL:           "http://localhost:8080",
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
	}
}

func (c LlamaCppConfig) WithURL(url string) LlamaCppConfig {
	c.URL = url
	return c
}
func (c LlamaCppConfig) WithTimeout(timeout time.Duration) LlamaCppConfig {
	c.Timeout = timeout
	return c
}
func (c LlamaCppConfig) WithRetryAttempts(attempts uint) LlamaCppConfig {
	c.RetryAttempts = attempts
	return c
}
func (c LlamaCppConfig) WithModelName(modelName string) LlamaCppConfig {
	c.ModelName = modelName
	return c
}
func (c LlamaCppConfig) WithLogger(logger *log.Logger) LlamaCppConfig {
	c.Logger = logger
	return c
}

func (c LlamaCppConfig) Validate() error {
	switch {
	case c.URL == "":
		return fmt.Errorf("llama.cpp server URL is required")
	case c.ModelName == "":
		return fmt.Errorf("model name is required")
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be greater than 0")
	case c.RetryAttempts == 0:
		return fmt.Errorf("retry attempts must be greater than 0")
	case c.Logger == nil:
		return fmt.Errorf("logger is required")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid llama.cpp server URL: %w", err)
	}
	return nil
}

// LlamaCppEmbeddingProvider calls the /embedding endpoint of a llama.cpp server
type LlamaCppEmbeddingProvider struct {
	config   LlamaCppConfig
	endpoint string
	client   *http.Client
	logger   *log.Logger
}

// errNoEmbedding marks a well-formed response that carried no vector
var errNoEmbedding = errors.New("no embeddings returned from server")

// llamaCppResult is one entry of the /embedding response. Pooled models return a single
// row; models served with --pooling none return one row per token.
type llamaCppResult struct {
	Index     int         `json:"index"`
	Embedding [][]float32 `json:"embedding"`
}

func NewLlamaCppEmbeddingProvider(config LlamaCppConfig) (*LlamaCppEmbeddingProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	base, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &LlamaCppEmbeddingProvider{
		config:   config,
		endpoint: base.JoinPath("embedding").String(),
		client:   &http.Client{Timeout: config.Timeout},
		logger:   config.Logger,
	}, nil
}

func (p *LlamaCppEmbeddingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	var rows [][]float32
	err = withRetry(ctx, "llamacpp", p.config.RetryAttempts, p.logger, func() error {
		rows, err = p.post(ctx, body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get llama.cpp embedding: %w", err)
	}

	embedding := meanPool(rows)
	p.logger.Debug("Generated llama.cpp embedding",
		"text_length", len(text),
		"rows", len(rows),
		"embedding_length", len(embedding),
		"duration", time.Since(start))
	return embedding, nil
}

// post sends one request. Each attempt builds a fresh request since the body reader is
// consumed by the previous one.
func (p *LlamaCppEmbeddingProvider) post(ctx context.Context, body []byte) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llama.cpp returned status %d: %s", resp.StatusCode, raw)
	}

	var results []llamaCppResult
	if err := json.Unmarshal(raw, &results); err != nil {
		p.logger.Debug("Unexpected llama.cpp response", "body", string(raw), "error", err)
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(results) == 0 || len(results[0].Embedding) == 0 || len(results[0].Embedding[0]) == 0 {
		return nil, errNoEmbedding
	}
	return results[0].Embedding, nil
}

func (p *LlamaCppEmbeddingProvider) GetEmbeddingModelName() string {
	return p.config.ModelName
}

// meanPool averages per-token rows into one vector. A single row is returned as is.
func meanPool(rows [][]float32) []float32 {
	if len(rows) == 1 {
		return rows[0]
	}
	out := make([]float32, len(rows[0]))
	for _, row := range rows {
		for i := range out {
			if i < len(row) {
				out[i] += row[i]
			}
		}
	}
	for i := range out {
		out[i] /= float32(len(rows))
	}
	return out
}
