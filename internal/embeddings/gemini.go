package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiMaxBatch is the request limit of batchEmbedContents
const geminiMaxBatch = 100

// GeminiConfig configures the Gemini embedding API
type GeminiConfig struct {
	APIKey    string
	ModelName string
	// TaskType tunes the vectors for their use; queries and stored transactions are
	// both embedded for retrieval
	TaskType      genai.TaskType
	RetryAttempts uint
	Logger        *log.Logger
}

func NewGeminiConfig() GeminiConfig {
	return GeminiConfig{
		ModelName:     "text-embedding-004",
		TaskType:      genai.TaskTypeRetrievalQuery,
		RetryAttempts: 3,
	}
}

func (c GeminiConfig) WithAPIKey(apiKey string) GeminiConfig {
	c.APIKey = apiKey
	return c
}
func (c GeminiConfig) WithModelName(modelName string) GeminiConfig {
	c.ModelName = modelName
	return c
}
func (c GeminiConfig) WithTaskType(taskType genai.TaskType) GeminiConfig {
	c.TaskType = taskType
	return c
}
func (c GeminiConfig) WithRetryAttempts(attempts uint) GeminiConfig {
	c.RetryAttempts = attempts
	return c
}
func (c GeminiConfig) WithLogger(logger *log.Logger) GeminiConfig {
	c.Logger = logger
	return c
}

func (c GeminiConfig) Validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("gemini api key is required")
	case c.ModelName == "":
		return fmt.Errorf("model name is required")
	case c.RetryAttempts == 0:
		return fmt.Errorf("retry attempts must be greater than 0")
	case c.Logger == nil:
		return fmt.Errorf("logger is required")
	}
	return nil
}

// GeminiEmbeddingProvider embeds text with a Gemini embedding model
type GeminiEmbeddingProvider struct {
	config GeminiConfig
	client *genai.Client
	model  *genai.EmbeddingModel
	logger *log.Logger
}

var _ BatchEmbeddingProvider = (*GeminiEmbeddingProvider)(nil)

func NewGeminiEmbeddingProvider(ctx context.Context, config GeminiConfig) (*GeminiEmbeddingProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := client.EmbeddingModel(config.ModelName)
	model.TaskType = config.TaskType
	return &GeminiEmbeddingProvider{
		config: config,
		client: client,
		model:  model,
		logger: config.Logger,
	}, nil
}

func (p *GeminiEmbeddingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	err := withRetry(ctx, "gemini", p.config.RetryAttempts, p.logger, func() error {
		result, err := p.model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return fmt.Errorf("failed to generate embedding: %w", err)
		}
		if result == nil || result.Embedding == nil || len(result.Embedding.Values) == 0 {
			return fmt.Errorf("no embedding returned from Gemini API")
		}
		embedding = result.Embedding.Values
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get Gemini embedding: %w", err)
	}
	return embedding, nil
}

// GenerateEmbeddings embeds up to MaxBatchSize texts in one batchEmbedContents call
func (p *GeminiEmbeddingProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) > geminiMaxBatch {
		return nil, fmt.Errorf("batch of %d exceeds the limit of %d", len(texts), geminiMaxBatch)
	}

	start := time.Now()
	var vectors [][]float32
	err := withRetry(ctx, "gemini", p.config.RetryAttempts, p.logger, func() error {
		batch := p.model.NewBatch()
		for _, text := range texts {
			batch.AddContent(genai.Text(text))
		}
		result, err := p.model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(result.Embeddings) != len(texts) {
			return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
		}
		vectors = make([][]float32, len(texts))
		for i, e := range result.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return fmt.Errorf("empty embedding at index %d", i)
			}
			vectors[i] = e.Values
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get Gemini embeddings: %w", err)
	}

	p.logger.Debug("Generated Gemini embeddings",
		"texts", len(texts),
		"model", p.config.ModelName,
		"duration", time.Since(start))
	return vectors, nil
}

func (p *GeminiEmbeddingProvider) MaxBatchSize() int {
	return geminiMaxBatch
}

func (p *GeminiEmbeddingProvider) GetEmbeddingModelName() string {
	return p.config.ModelName
}

// Close releases the underlying client
func (p *GeminiEmbeddingProvider) Close() error {
	return p.client.Close()
}
