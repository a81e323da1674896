package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/transaction-search/internal/search"
)

// EmbeddingConfig contains common flag definitions for embedding configuration
type EmbeddingConfig struct {
	// Provider is the embedding provider to use
	Provider string `help:"Embedding provider to use" default:"hashing" enum:"hashing,llamacpp,gemini,openai,ollama,lmstudio" env:"EMBEDDING_PROVIDER"`
	// Dimension is the expected embedding size; 0 accepts whatever the model produces
	Dimension   int `help:"Expected embedding dimension (0 to detect from the model)" default:"0" env:"EMBEDDING_DIMENSION"`
	Concurrency int `help:"Parallel embedding requests for batch operations" default:"4" env:"EMBEDDING_CONCURRENCY"`

	LlamaCppURL   string `help:"LLaMA.cpp server URL" default:"http://localhost:8080" env:"LLAMACPP_URL"`
	LlamaCppModel string `help:"Specific LLaMA.cpp embedding model name" env:"LLAMACPP_EMBEDDING_MODEL"`

	GeminiAPIKey string `help:"Google Gemini API key" env:"GEMINI_API_KEY"`
	GeminiModel  string `help:"Gemini embedding model name" default:"text-embedding-004" env:"GEMINI_EMBEDDING_MODEL"`

	OpenAIAPIKey   string `help:"OpenAI API key" env:"OPENAI_API_KEY"`
	OpenAIModel    string `help:"OpenAI embedding model name" default:"text-embedding-3-small" env:"OPENAI_EMBEDDING_MODEL"`
	OpenAIEndpoint string `help:"OpenAI-compatible API endpoint" default:"https://api.openai.com/v1" env:"OPENAI_ENDPOINT"`

	OllamaModel    string `help:"Ollama embedding model name" default:"nomic-embed-text" env:"OLLAMA_EMBEDDING_MODEL"`
	OllamaEndpoint string `help:"Ollama OpenAI-compatible endpoint" default:"http://localhost:11434/v1" env:"OLLAMA_ENDPOINT"`

	LMStudioModel    string `help:"LMStudio embedding model name" env:"LMSTUDIO_EMBEDDING_MODEL"`
	LMStudioEndpoint string `help:"LMStudio OpenAI-compatible endpoint" default:"http://localhost:1234/v1" env:"LMSTUDIO_ENDPOINT"`
}

// CommonConfig contains configuration common to all commands
type CommonConfig struct {
	// DataDir is the path to the data directory
	DataDir string `help:"Path to data directory" default:"./data" env:"DATA_DIR"`
	// LogLevel is the logging level to use
	LogLevel string `help:"Log level (debug, info, warn, error)" default:"warn" enum:"debug,info,warn,error" env:"LOG_LEVEL"`
}

// SearchConfig contains the tuning flags of a hybrid search
type SearchConfig struct {
	Limit        int           `help:"Maximum number of results to return" default:"20"`
	VectorWeight float64       `help:"Weight of semantic similarity in the hybrid score" default:"0.4"`
	TextWeight   float64       `help:"Weight of keyword relevance in the hybrid score" default:"0.6"`
	Timeout      time.Duration `help:"Per-branch retrieval timeout (0 disables)" default:"0s"`
}

// Options converts the flags into search options
func (c SearchConfig) Options() []search.SearchOption {
	return []search.SearchOption{
		search.WithLimit(c.Limit),
		search.WithVectorWeight(c.VectorWeight),
		search.WithTextWeight(c.TextWeight),
		search.WithTimeout(c.Timeout),
	}
}

// NewLogger creates a logger writing to w at the configured level
func (c CommonConfig) NewLogger(w io.Writer) (*log.Logger, error) {
	logger := log.New(w)
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	logger.SetLevel(level)
	return logger, nil
}
