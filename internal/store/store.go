// Package store joins the SQLite transaction database and the chromem vector index
// into the single store searched by the hybrid engine.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lox/transaction-search/internal/db"
	"github.com/lox/transaction-search/internal/embeddings"
	"github.com/lox/transaction-search/internal/search"
	"github.com/lox/transaction-search/internal/types"
)

// Store implements search.Store. Vector hits are hydrated from the database, which
// also applies the filters the vector index cannot express.
type Store struct {
	db      *db.DB
	vectors embeddings.VectorStorage
	logger  *log.Logger
}

var _ search.Store = (*Store)(nil)

func New(database *db.DB, vectors embeddings.VectorStorage, logger *log.Logger) *Store {
	return &Store{db: database, vectors: vectors, logger: logger}
}

// VectorSearch returns up to limit transactions nearest to embedding that satisfy filters
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, filters types.Filters, limit int) ([]search.Candidate, error) {
	start := time.Now()

	// the index only filters on exact metadata, so date-bounded queries scan every
	// vector and leave the date range to the database
	n := limit
	if filters.HasDateRange() {
		n = s.vectors.Count()
	}
	hits, err := s.vectors.Query(ctx, embedding, whereClause(filters), n)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []search.Candidate{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	found, err := s.db.GetTransactionsByIDs(ctx, ids, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to load vector candidates: %w", err)
	}

	candidates := make([]search.Candidate, 0, min(limit, len(hits)))
	var orphans int
	for _, h := range hits {
		t, ok := found[h.ID]
		if !ok {
			orphans++
			continue
		}
		candidates = append(candidates, search.Candidate{Transaction: t, Score: float64(h.Similarity)})
		if len(candidates) == limit {
			break
		}
	}

	s.logger.Debug("Vector search completed",
		"hits", len(hits),
		"candidates", len(candidates),
		"filtered_or_missing", orphans,
		"duration", time.Since(start))
	return candidates, nil
}

// TextSearch runs a full-text query against the database
func (s *Store) TextSearch(ctx context.Context, query string, filters types.Filters, limit int) ([]search.Candidate, error) {
	matches, err := s.db.SearchText(ctx, query, filters, limit)
	if err != nil {
		return nil, err
	}
	return toCandidates(matches), nil
}

// FuzzySearch runs a substring query against the database
func (s *Store) FuzzySearch(ctx context.Context, query string, filters types.Filters, limit int) ([]search.Candidate, error) {
	matches, err := s.db.SearchSubstring(ctx, query, filters, limit)
	if err != nil {
		return nil, err
	}
	return toCandidates(matches), nil
}

func toCandidates(matches []db.Match) []search.Candidate {
	out := make([]search.Candidate, len(matches))
	for i, m := range matches {
		out[i] = search.Candidate{Transaction: m.Transaction, Score: m.Score}
	}
	return out
}

func whereClause(f types.Filters) map[string]string {
	return map[string]string{
		embeddings.MetadataType:       string(f.Type),
		embeddings.MetadataProjectID:  f.ProjectID,
		embeddings.MetadataCategoryID: f.CategoryID,
	}
}
