package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
)

// openAIMaxBatch is the input array limit of the embeddings endpoint
const openAIMaxBatch = 2048

// OpenAIConfig configures an OpenAI-compatible embeddings API. Ollama and LMStudio
// expose the same API on a local endpoint and ignore the key.
type OpenAIConfig struct {
	APIKey     string
	Endpoint   string
	ModelName  string
	Dimensions int // 0 keeps the model's native size
	// Timeout bounds each request attempt
	Timeout       time.Duration
	RetryAttempts uint
	Logger        *log.Logger
}

func NewOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Endpoint:      "https://api.openai.com/v1",
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
	}
}

func (c OpenAIConfig) WithAPIKey(apiKey string) OpenAIConfig {
	c.APIKey = apiKey
	return c
}
func (c OpenAIConfig) WithEndpoint(endpoint string) OpenAIConfig {
	c.Endpoint = endpoint
	return c
}
func (c OpenAIConfig) WithModelName(modelName string) OpenAIConfig {
	c.ModelName = modelName
	return c
}
func (c OpenAIConfig) WithDimensions(dimensions int) OpenAIConfig {
	c.Dimensions = dimensions
	return c
}
func (c OpenAIConfig) WithTimeout(timeout time.Duration) OpenAIConfig {
	c.Timeout = timeout
	return c
}
func (c OpenAIConfig) WithRetryAttempts(attempts uint) OpenAIConfig {
	c.RetryAttempts = attempts
	return c
}
func (c OpenAIConfig) WithLogger(logger *log.Logger) OpenAIConfig {
	c.Logger = logger
	return c
}

func (c OpenAIConfig) Validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("openai api key is required")
	case c.Endpoint == "":
		return fmt.Errorf("endpoint is required")
	case c.ModelName == "":
		return fmt.Errorf("model name is required")
	case c.Dimensions < 0:
		return fmt.Errorf("dimensions must not be negative")
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be greater than 0")
	case c.RetryAttempts == 0:
		return fmt.Errorf("retry attempts must be greater than 0")
	case c.Logger == nil:
		return fmt.Errorf("logger is required")
	}
	return nil
}

// OpenAIEmbeddingProvider embeds text through an OpenAI-compatible API
type OpenAIEmbeddingProvider struct {
	config OpenAIConfig
	client *openai.Client
	logger *log.Logger
}

var _ BatchEmbeddingProvider = (*OpenAIEmbeddingProvider)(nil)

func NewOpenAIEmbeddingProvider(config OpenAIConfig) (*OpenAIEmbeddingProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.Endpoint
	return &OpenAIEmbeddingProvider{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
		logger: config.Logger,
	}, nil
}

func (p *OpenAIEmbeddingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateEmbeddings embeds up to MaxBatchSize texts in one request
func (p *OpenAIEmbeddingProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) > openAIMaxBatch {
		return nil, fmt.Errorf("batch of %d exceeds the limit of %d", len(texts), openAIMaxBatch)
	}

	start := time.Now()
	var vectors [][]float32
	err := withRetry(ctx, "openai", p.config.RetryAttempts, p.logger, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
		resp, err := p.client.CreateEmbeddings(attemptCtx, openai.EmbeddingRequest{
			Model:      openai.EmbeddingModel(p.config.ModelName),
			Input:      texts,
			Dimensions: p.config.Dimensions,
		})
		if err != nil {
			return fmt.Errorf("failed to create embeddings: %w", err)
		}
		vectors, err = orderByIndex(resp.Data, len(texts))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get OpenAI embeddings: %w", err)
	}

	p.logger.Debug("Generated OpenAI embeddings",
		"texts", len(texts),
		"model", p.config.ModelName,
		"duration", time.Since(start))
	return vectors, nil
}

func (p *OpenAIEmbeddingProvider) MaxBatchSize() int {
	return openAIMaxBatch
}

func (p *OpenAIEmbeddingProvider) GetEmbeddingModelName() string {
	return p.config.ModelName
}

// orderByIndex places each returned embedding at its input position. Servers are not
// required to return data in request order.
func orderByIndex(data []openai.Embedding, n int) ([][]float32, error) {
	if len(data) != n {
		return nil, fmt.Errorf("expected %d embeddings, got %d", n, len(data))
	}
	out := make([][]float32, n)
	for _, d := range data {
		if d.Index < 0 || d.Index >= n || out[d.Index] != nil {
			return nil, fmt.Errorf("unexpected embedding index %d", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
