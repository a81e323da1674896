package embeddings

import "context"

// EmbeddingProvider is the contract of an embedding model backend
type EmbeddingProvider interface {
	// GenerateEmbedding returns the dense vector for text
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	// GetEmbeddingModelName identifies the model, so stored vectors can be matched to it
	GetEmbeddingModelName() string
}

// ModelLoader constructs an embedding provider. It is called at most once per Generator
// on success, the first time an embedding is needed.
type ModelLoader func(ctx context.Context) (EmbeddingProvider, error)

// StaticLoader returns a loader for an already constructed provider
func StaticLoader(provider EmbeddingProvider) ModelLoader {
	return func(ctx context.Context) (EmbeddingProvider, error) {
		return provider, nil
	}
}

// CloseProvider closes the provider if it holds resources
func CloseProvider(provider EmbeddingProvider) error {
	if closer, ok := provider.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
