package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/transaction-search/internal/embeddings"
)

// NewModelLoader returns a loader that constructs the configured embedding provider the
// first time an embedding is needed
func NewModelLoader(config EmbeddingConfig, logger *log.Logger) embeddings.ModelLoader {
	return func(ctx context.Context) (embeddings.EmbeddingProvider, error) {
		return SetupEmbeddingProvider(ctx, config, logger)
	}
}

// SetupEmbeddingProvider initializes and returns an embedding provider based on the config
func SetupEmbeddingProvider(ctx context.Context, config EmbeddingConfig, logger *log.Logger) (embeddings.EmbeddingProvider, error) {
	switch config.Provider {
	case "hashing":
		provider, err := embeddings.NewHashingEmbeddingProvider(config.Dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to create hashing embedding provider: %w", err)
		}
		logger.Info("Using feature hashing for embeddings", "model", provider.GetEmbeddingModelName())
		return provider, nil

	case "gemini":
		if config.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini api key is required when using Gemini embeddings")
		}
		geminiConfig := embeddings.NewGeminiConfig().
			WithAPIKey(config.GeminiAPIKey).
			WithLogger(logger)
		if config.GeminiModel != "" {
			geminiConfig = geminiConfig.WithModelName(config.GeminiModel)
		}
		provider, err := embeddings.NewGeminiEmbeddingProvider(ctx, geminiConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini embedding provider: %w", err)
		}
		logger.Info("Using Gemini API for embeddings", "model", geminiConfig.ModelName)
		return provider, nil

	case "llamacpp":
		if config.LlamaCppModel == "" {
			return nil, fmt.Errorf("llamacpp model name is required when using LlamaCpp embeddings")
		}
		llamaCppConfig := embeddings.NewLlamaCppConfig().
			WithLogger(logger).
			WithModelName(config.LlamaCppModel)
		if config.LlamaCppURL != "" {
			llamaCppConfig = llamaCppConfig.WithURL(config.LlamaCppURL)
		}
		provider, err := embeddings.NewLlamaCppEmbeddingProvider(llamaCppConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create LlamaCpp embedding provider: %w", err)
		}
		logger.Info("Using LlamaCpp for embeddings", "model", llamaCppConfig.ModelName, "url", llamaCppConfig.URL)
		return provider, nil

	case "lmstudio", "ollama":
		// both expose an OpenAI-compatible API that ignores the key
		model, endpoint := config.LMStudioModel, config.LMStudioEndpoint
		if config.Provider == "ollama" {
			model, endpoint = config.OllamaModel, config.OllamaEndpoint
		}
		if model == "" {
			return nil, fmt.Errorf("%s model name is required", config.Provider)
		}
		provider, err := embeddings.NewOpenAIEmbeddingProvider(embeddings.NewOpenAIConfig().
			WithAPIKey("dummy").
			WithModelName(model).
			WithDimensions(config.Dimension).
			WithLogger(logger).
			WithEndpoint(endpoint))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s embedding provider: %w", config.Provider, err)
		}
		logger.Info("Using OpenAI-compatible local server for embeddings", "provider", config.Provider, "model", model, "endpoint", endpoint)
		return provider, nil

	case "openai":
		if config.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai api key is required when using OpenAI embeddings")
		}
		openaiConfig := embeddings.NewOpenAIConfig().
			WithAPIKey(config.OpenAIAPIKey).
			WithModelName(config.OpenAIModel).
			WithDimensions(config.Dimension).
			WithLogger(logger)
		if config.OpenAIEndpoint != "" {
			openaiConfig = openaiConfig.WithEndpoint(config.OpenAIEndpoint)
		}
		provider, err := embeddings.NewOpenAIEmbeddingProvider(openaiConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI embedding provider: %w", err)
		}
		logger.Info("Using OpenAI-compatible API for embeddings", "model", openaiConfig.ModelName, "endpoint", openaiConfig.Endpoint)
		return provider, nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", config.Provider)
	}
}

// SetupGenerator creates a Generator that loads the configured provider lazily
func SetupGenerator(config EmbeddingConfig, logger *log.Logger) (*embeddings.Generator, error) {
	cfg := embeddings.NewGeneratorConfig().
		WithLoader(NewModelLoader(config, logger)).
		WithDimension(config.Dimension).
		WithLogger(logger)
	if config.Concurrency > 0 {
		cfg = cfg.WithConcurrency(config.Concurrency)
	}
	generator, err := embeddings.NewGenerator(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding generator: %w", err)
	}
	return generator, nil
}
