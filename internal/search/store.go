package search

import (
	"context"

	"github.com/lox/transaction-search/internal/types"
)

// Candidate is a transaction returned by one retrieval path with that path's score
type Candidate struct {
	Transaction types.Transaction
	Score       float64
}

// VectorIndex finds the transactions whose stored embeddings are nearest to a query vector.
// Score is the cosine similarity.
type VectorIndex interface {
	VectorSearch(ctx context.Context, embedding []float32, filters types.Filters, limit int) ([]Candidate, error)
}

// TextIndex runs full-text queries. Score is a non-negative relevance, higher is better,
// with no upper bound.
type TextIndex interface {
	TextSearch(ctx context.Context, query string, filters types.Filters, limit int) ([]Candidate, error)
}

// FuzzyIndex runs case-insensitive substring queries over the free-text fields
type FuzzyIndex interface {
	FuzzySearch(ctx context.Context, query string, filters types.Filters, limit int) ([]Candidate, error)
}

// Store is the transaction store searched by the Engine. All three paths share one ID space.
type Store interface {
	VectorIndex
	TextIndex
	FuzzyIndex
}
