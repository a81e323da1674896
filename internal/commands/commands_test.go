package commands

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/transaction-search/internal/embeddings"
	"github.com/lox/transaction-search/internal/types"
)

func TestSetupEmbeddingProvider(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard)

	tests := []struct {
		name    string
		config  EmbeddingConfig
		wantErr string
	}{
		{name: "hashing", config: EmbeddingConfig{Provider: "hashing", Dimension: 32}},
		{name: "gemini without key", config: EmbeddingConfig{Provider: "gemini"}, wantErr: "gemini api key is required"},
		{name: "openai without key", config: EmbeddingConfig{Provider: "openai", OpenAIModel: "m"}, wantErr: "openai api key is required"},
		{name: "llamacpp without model", config: EmbeddingConfig{Provider: "llamacpp"}, wantErr: "llamacpp model name is required"},
		{name: "lmstudio without model", config: EmbeddingConfig{Provider: "lmstudio", LMStudioEndpoint: "http://localhost:1234/v1"}, wantErr: "lmstudio model name is required"},
		{name: "ollama", config: EmbeddingConfig{Provider: "ollama", OllamaModel: "nomic-embed-text", OllamaEndpoint: "http://localhost:11434/v1"}},
		{name: "llamacpp", config: EmbeddingConfig{Provider: "llamacpp", LlamaCppModel: "bge", LlamaCppURL: "http://localhost:8080"}},
		{name: "unknown", config: EmbeddingConfig{Provider: "word2vec"}, wantErr: "unknown embedding provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := SetupEmbeddingProvider(ctx, tt.config, logger)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, provider.GetEmbeddingModelName())
		})
	}
}

func TestSetupGeneratorIsLazy(t *testing.T) {
	// a misconfigured provider only surfaces once an embedding is needed
	g, err := SetupGenerator(EmbeddingConfig{Provider: "openai"}, log.New(io.Discard))
	require.NoError(t, err)
	assert.False(t, g.Initialized())

	_, err = g.Embed(context.Background(), "cement")
	assert.ErrorIs(t, err, embeddings.ErrModelUnavailable)
}

func TestNewLogger(t *testing.T) {
	logger, err := CommonConfig{LogLevel: "debug"}.NewLogger(io.Discard)
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, logger.GetLevel())

	_, err = CommonConfig{LogLevel: "verbose"}.NewLogger(io.Discard)
	assert.Error(t, err)
}

func TestSetupSearchEngine(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard)
	common := CommonConfig{DataDir: t.TempDir(), LogLevel: "warn"}
	embedding := EmbeddingConfig{Provider: "hashing", Dimension: 64, Concurrency: 2}

	stack, err := SetupSearchEngine(common, embedding, logger)
	require.NoError(t, err)
	defer stack.Close()

	require.NoError(t, stack.DB.Store(ctx, types.Transaction{
		ID:           "tx-1",
		Date:         time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
		Type:         types.TransactionTypeExpense,
		Amount:       decimal.RequireFromString("120.50"),
		Description:  "Timber framing",
		ProjectName:  "North Site",
		CategoryName: "Materials",
	}))

	config := SearchConfig{Limit: 5, VectorWeight: 0.4, TextWeight: 0.6}
	results, err := stack.Engine.HybridSearch(ctx, "timber", types.Filters{}, config.Options()...)
	require.NoError(t, err)
	require.Len(t, results.Results, 1)
	assert.Equal(t, "tx-1", results.Results[0].ID)
	// nothing has been embedded yet, so only the lexical branch contributes
	assert.Zero(t, results.Results[0].VectorScore)
	assert.Equal(t, 0, results.Metadata.VectorResultCount)
	assert.True(t, stack.Generator.Initialized())
}

func TestSearchConfigRejectsInvalidWeights(t *testing.T) {
	stack, err := SetupSearchEngine(CommonConfig{DataDir: t.TempDir()}, EmbeddingConfig{Provider: "hashing"}, log.New(io.Discard))
	require.NoError(t, err)
	defer stack.Close()

	config := SearchConfig{Limit: 5, VectorWeight: -1, TextWeight: 0.6}
	_, err = stack.Engine.HybridSearch(context.Background(), "timber", types.Filters{}, config.Options()...)
	assert.Error(t, err)
}
