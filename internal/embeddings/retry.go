package embeddings

import (
	"context"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
)

// BatchEmbeddingProvider is implemented by providers whose API embeds many texts per request
type BatchEmbeddingProvider interface {
	EmbeddingProvider
	// GenerateEmbeddings returns one vector per text, in input order
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	// MaxBatchSize is the largest number of texts accepted by one call
	MaxBatchSize() int
}

// withRetry runs fn with exponential back-off, logging each retry against the backend name
func withRetry(ctx context.Context, backend string, attempts uint, logger *log.Logger, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retrying embedding request",
				"backend", backend,
				"attempt", n+1,
				"max_attempts", attempts,
				"error", err)
		}),
	)
}
