package types

// Weights are the fusion weights active for a single search call
type Weights struct {
	VectorWeight float64 `json:"vector_weight"`
	TextWeight   float64 `json:"text_weight"`
}

// SearchResult represents a transaction with its fused search relevance scores
type SearchResult struct {
	ID          string      `json:"id"`
	VectorScore float64     `json:"vector_score"`
	TextScore   float64     `json:"text_score"`
	HybridScore float64     `json:"hybrid_score"`
	Transaction Transaction `json:"transaction"`
}

// SearchMetadata describes how a result set was produced
type SearchMetadata struct {
	TotalResults      int     `json:"total_results"`
	VectorResultCount int     `json:"vector_result_count"`
	TextResultCount   int     `json:"text_result_count"`
	FuzzyResultCount  int     `json:"fuzzy_result_count,omitempty"`
	Weights           Weights `json:"weights"`
	// Fallback is set when the vector branch was skipped or failed
	Fallback bool `json:"fallback,omitempty"`
	// TextFallback names the source used in place of lexical search, if any
	TextFallback string `json:"text_fallback,omitempty"`
	// TimedOut lists branches that hit the per-branch timeout
	TimedOut []string `json:"timed_out,omitempty"`
}

// SearchResults holds a ranked result list and its metadata
type SearchResults struct {
	Results  []SearchResult `json:"results"`
	Metadata SearchMetadata `json:"metadata"`
}

// QueryContext is the interpreted form of a free-text query
type QueryContext struct {
	Original string  `json:"original"`
	Residual string  `json:"residual"`
	Filters  Filters `json:"filters"`
	// Matched lists the phrases and keywords recognised in the query, in rule order
	Matched []string `json:"matched,omitempty"`
}

// SmartSearchResults bundles fused results with the query interpretation that produced them
type SmartSearchResults struct {
	SearchResults
	Query QueryContext `json:"query"`
}
