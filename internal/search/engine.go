package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/lox/transaction-search/internal/embeddings"
	"github.com/lox/transaction-search/internal/types"
)

const (
	branchVector = "vector"
	branchText   = "text"

	textFallbackFuzzy = "fuzzy"
)

var errEmptyQuery = errors.New("query is empty")

// Embedder turns query text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine fuses vector and lexical retrieval into one ranking
type Engine struct {
	embedder Embedder
	vectors  VectorIndex
	lexical  *Lexical
	fuzzy    *Fuzzy
	logger   *log.Logger
}

// NewEngine creates an Engine over store, embedding queries with embedder
func NewEngine(embedder Embedder, store Store, logger *log.Logger) *Engine {
	return &Engine{
		embedder: embedder,
		vectors:  store,
		lexical:  NewLexical(store, logger),
		fuzzy:    NewFuzzy(store, logger),
		logger:   logger,
	}
}

// branchResult is the outcome of one retrieval branch. A branch that timed out has no
// candidates and counts as failed.
type branchResult struct {
	candidates []Candidate
	err        error
	timedOut   bool
}

func timedOutResult(branch string, timeout time.Duration) branchResult {
	return branchResult{
		err:      fmt.Errorf("%s branch exceeded %s: %w", branch, timeout, context.DeadlineExceeded),
		timedOut: true,
	}
}

func (b branchResult) failed() bool {
	return b.err != nil
}

// HybridSearch ranks transactions matching query by a weighted sum of vector similarity
// and lexical relevance.
//
// Either branch may fail without failing the call: a failed, skipped or timed out vector
// branch switches to lexical-only weights and sets Metadata.Fallback, and a failed lexical
// branch is replaced by fuzzy substring matches. Timed out branches are also listed in
// Metadata.TimedOut. The call fails with ErrNoSearchSignal only when both branches fail
// or time out. Dimension mismatches always fail the call.
func (e *Engine) HybridSearch(ctx context.Context, query string, filters types.Filters, opts ...SearchOption) (types.SearchResults, error) {
	options, err := applyOptions(opts)
	if err != nil {
		return types.SearchResults{}, err
	}

	e.logger.Info("Performing hybrid search",
		"query", query,
		"limit", options.limit,
		"vector_weight", options.vectorWeight,
		"text_weight", options.textWeight)
	start := time.Now()

	var vector, text branchResult
	var textFallback string

	// neither branch's failure may cancel the other, so no shared context
	var eg errgroup.Group
	eg.Go(func() error {
		vector = e.vectorBranch(ctx, query, filters, options)
		if embeddings.IsDimensionMismatch(vector.err) {
			return vector.err
		}
		return nil
	})
	eg.Go(func() error {
		text, textFallback = e.textBranch(ctx, query, filters, options)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return types.SearchResults{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.SearchResults{}, fmt.Errorf("hybrid search: %w", err)
	}

	if vector.failed() && text.failed() {
		e.logger.Error("Hybrid search has no usable branch",
			"query", query,
			"vector_error", vector.err,
			"text_error", text.err)
		return types.SearchResults{}, fmt.Errorf("%w: %w", ErrNoSearchSignal, errors.Join(vector.err, text.err))
	}

	weights := types.Weights{VectorWeight: options.vectorWeight, TextWeight: options.textWeight}
	fallback := vector.failed()
	if fallback {
		weights = types.Weights{VectorWeight: 0, TextWeight: 1}
	}

	results := merge(vector.candidates, text.candidates, weights)
	slices.SortStableFunc(results, byHybridScore)
	if len(results) > options.limit {
		results = results[:options.limit]
	}

	metadata := types.SearchMetadata{
		TotalResults:      len(results),
		VectorResultCount: len(vector.candidates),
		Weights:           weights,
		Fallback:          fallback,
		TextFallback:      textFallback,
	}
	if textFallback == textFallbackFuzzy {
		metadata.FuzzyResultCount = len(text.candidates)
	} else {
		metadata.TextResultCount = len(text.candidates)
	}
	if vector.timedOut {
		metadata.TimedOut = append(metadata.TimedOut, branchVector)
	}
	if text.timedOut {
		metadata.TimedOut = append(metadata.TimedOut, branchText)
	}

	e.logger.Info("Hybrid search completed",
		"query", query,
		"results", len(results),
		"vector_results", metadata.VectorResultCount,
		"text_results", metadata.TextResultCount,
		"fuzzy_results", metadata.FuzzyResultCount,
		"fallback", fallback,
		"timed_out", metadata.TimedOut,
		"duration", time.Since(start))

	return types.SearchResults{Results: results, Metadata: metadata}, nil
}

// vectorBranch embeds the query and fetches a 2×limit candidate pool
func (e *Engine) vectorBranch(ctx context.Context, query string, filters types.Filters, options searchOptions) branchResult {
	if strings.TrimSpace(query) == "" {
		return branchResult{err: errEmptyQuery}
	}

	branchCtx, cancel := withBranchTimeout(ctx, options.timeout)
	defer cancel()

	embedding, err := e.embedder.Embed(branchCtx, query)
	if err != nil {
		if timedOut(ctx, branchCtx) {
			e.logger.Warn("Query embedding timed out, falling back to lexical search", "timeout", options.timeout)
			return timedOutResult(branchVector, options.timeout)
		}
		if !embeddings.IsDimensionMismatch(err) {
			e.logger.Warn("Query embedding failed, falling back to lexical search", "error", err)
		}
		return branchResult{err: fmt.Errorf("embed query: %w", err)}
	}

	candidates, err := e.vectors.VectorSearch(branchCtx, embedding, filters, vectorPoolFactor*options.limit)
	if err != nil {
		if timedOut(ctx, branchCtx) {
			e.logger.Warn("Vector search timed out, falling back to lexical search", "timeout", options.timeout)
			return timedOutResult(branchVector, options.timeout)
		}
		if !embeddings.IsDimensionMismatch(err) {
			e.logger.Warn("Vector search failed, falling back to lexical search", "error", err)
		}
		return branchResult{err: fmt.Errorf("vector search: %w", err)}
	}

	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if filters.Match(c.Transaction) {
			kept = append(kept, c)
		}
	}
	return branchResult{candidates: kept}
}

// textBranch runs lexical search, falling back to fuzzy substring search when the
// lexical backend fails. It reports which fallback, if any, supplied the candidates.
func (e *Engine) textBranch(ctx context.Context, query string, filters types.Filters, options searchOptions) (branchResult, string) {
	branchCtx, cancel := withBranchTimeout(ctx, options.timeout)
	defer cancel()

	candidates, lexErr := e.lexical.Search(branchCtx, query, filters, options.limit)
	if lexErr == nil {
		return branchResult{candidates: candidates}, ""
	}
	if timedOut(ctx, branchCtx) {
		e.logger.Warn("Lexical search timed out", "timeout", options.timeout)
		return timedOutResult(branchText, options.timeout), ""
	}
	e.logger.Warn("Lexical search failed, trying fuzzy fallback", "error", lexErr)

	candidates, fuzzyErr := e.fuzzy.Search(branchCtx, query, filters, options.limit)
	if fuzzyErr == nil {
		return branchResult{candidates: candidates}, textFallbackFuzzy
	}
	if timedOut(ctx, branchCtx) {
		e.logger.Warn("Fuzzy search timed out", "timeout", options.timeout)
		return timedOutResult(branchText, options.timeout), textFallbackFuzzy
	}
	e.logger.Warn("Fuzzy fallback failed", "error", fuzzyErr)
	return branchResult{err: errors.Join(lexErr, fuzzyErr)}, ""
}

// merge combines candidate sets by transaction ID. Vector candidates seed the map and
// text candidates either complete an existing entry or add a text-only one.
func merge(vector, text []Candidate, weights types.Weights) []types.SearchResult {
	byID := make(map[string]*types.SearchResult, len(vector)+len(text))
	order := make([]string, 0, len(vector)+len(text))

	for _, c := range vector {
		if _, ok := byID[c.Transaction.ID]; ok {
			continue
		}
		byID[c.Transaction.ID] = &types.SearchResult{
			ID:          c.Transaction.ID,
			VectorScore: c.Score,
			HybridScore: c.Score * weights.VectorWeight,
			Transaction: c.Transaction,
		}
		order = append(order, c.Transaction.ID)
	}

	for _, c := range text {
		if r, ok := byID[c.Transaction.ID]; ok {
			r.TextScore = c.Score
			r.HybridScore = r.VectorScore*weights.VectorWeight + r.TextScore*weights.TextWeight
			continue
		}
		byID[c.Transaction.ID] = &types.SearchResult{
			ID:          c.Transaction.ID,
			TextScore:   c.Score,
			HybridScore: c.Score * weights.TextWeight,
			Transaction: c.Transaction,
		}
		order = append(order, c.Transaction.ID)
	}

	results := make([]types.SearchResult, 0, len(order))
	for _, id := range order {
		results = append(results, *byID[id])
	}
	return results
}

// byHybridScore ranks by hybrid score, then most recent date, then ascending ID
func byHybridScore(a, b types.SearchResult) int {
	switch {
	case a.HybridScore > b.HybridScore:
		return -1
	case a.HybridScore < b.HybridScore:
		return 1
	}
	if c := b.Transaction.Date.Compare(a.Transaction.Date); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func withBranchTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// timedOut reports whether branchCtx hit its own deadline while the parent is still live
func timedOut(parent, branchCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(branchCtx.Err(), context.DeadlineExceeded)
}
