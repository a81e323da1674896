package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/slices"

	"github.com/lox/transaction-search/internal/types"
)

// Lexical performs keyword retrieval with graded relevance
type Lexical struct {
	index  TextIndex
	logger *log.Logger
}

func NewLexical(index TextIndex, logger *log.Logger) *Lexical {
	return &Lexical{index: index, logger: logger}
}

// Search returns up to limit candidates whose Score is the normalized text score in [0, 1).
// Candidates are ordered by score, then most recent date, then ID.
// A backend failure is returned as ErrIndexUnavailable, never as an empty result.
func (l *Lexical) Search(ctx context.Context, query string, filters types.Filters, limit int) ([]Candidate, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1", ErrInvalidQuery)
	}
	if strings.TrimSpace(query) == "" {
		return []Candidate{}, nil
	}

	start := time.Now()
	raw, err := l.index.TextSearch(ctx, query, filters, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: lexical search: %w", ErrIndexUnavailable, err)
	}

	candidates := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		if !filters.Match(c.Transaction) {
			continue
		}
		c.Score = normalizeTextScore(c.Score)
		candidates = append(candidates, c)
	}
	slices.SortStableFunc(candidates, byScoreThenRecency)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	l.logger.Debug("Lexical search completed",
		"query", query,
		"results", len(candidates),
		"duration", time.Since(start))
	return candidates, nil
}

// normalizeTextScore maps an unbounded relevance s >= 0 onto [0, 1) as s/(1+s)
func normalizeTextScore(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return s / (1 + s)
}

func byScoreThenRecency(a, b Candidate) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	return byRecency(a, b)
}

// byRecency orders by date, most recent first, then by ascending ID
func byRecency(a, b Candidate) int {
	if c := b.Transaction.Date.Compare(a.Transaction.Date); c != 0 {
		return c
	}
	return strings.Compare(a.Transaction.ID, b.Transaction.ID)
}
