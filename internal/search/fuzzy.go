package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/slices"

	"github.com/lox/transaction-search/internal/types"
)

// Fuzzy is the substring fallback used when lexical search is unavailable.
// Matches are binary, so every candidate has a Score of 0.
type Fuzzy struct {
	index  FuzzyIndex
	logger *log.Logger
}

func NewFuzzy(index FuzzyIndex, logger *log.Logger) *Fuzzy {
	return &Fuzzy{index: index, logger: logger}
}

// Search returns up to limit transactions where any free-text field contains query,
// ignoring case, most recent first
func (f *Fuzzy) Search(ctx context.Context, query string, filters types.Filters, limit int) ([]Candidate, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1", ErrInvalidQuery)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []Candidate{}, nil
	}

	raw, err := f.index.FuzzySearch(ctx, query, filters, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: fuzzy search: %w", ErrIndexUnavailable, err)
	}

	candidates := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		if !filters.Match(c.Transaction) {
			continue
		}
		candidates = append(candidates, Candidate{Transaction: c.Transaction})
	}
	slices.SortStableFunc(candidates, byRecency)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	f.logger.Debug("Fuzzy search completed", "query", query, "results", len(candidates))
	return candidates, nil
}
