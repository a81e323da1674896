package search

import (
	"fmt"
	"time"
)

const (
	DefaultVectorWeight = 0.4
	DefaultTextWeight   = 0.6
	DefaultLimit        = 20

	// vectorPoolFactor over-fetches vector candidates before fusion
	vectorPoolFactor = 2
)

type searchOptions struct {
	vectorWeight float64
	textWeight   float64
	limit        int
	timeout      time.Duration
	now          func() time.Time
}

// SearchOption is a function that modifies search options
type SearchOption func(*searchOptions)

func defaultOptions() searchOptions {
	return searchOptions{
		vectorWeight: DefaultVectorWeight,
		textWeight:   DefaultTextWeight,
		limit:        DefaultLimit,
		now:          time.Now,
	}
}

func applyOptions(opts []SearchOption) (searchOptions, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.now == nil {
		options.now = time.Now
	}
	if err := options.validate(); err != nil {
		return searchOptions{}, err
	}
	return options, nil
}

func (o searchOptions) validate() error {
	if o.vectorWeight < 0 || o.textWeight < 0 {
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidQuery)
	}
	if o.vectorWeight == 0 && o.textWeight == 0 {
		return fmt.Errorf("%w: at least one weight must be positive", ErrInvalidQuery)
	}
	if o.limit < 1 {
		return fmt.Errorf("%w: limit must be at least 1", ErrInvalidQuery)
	}
	if o.timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidQuery)
	}
	return nil
}

// WithVectorWeight sets the weight of the vector similarity in the hybrid score
func WithVectorWeight(weight float64) SearchOption {
	return func(opts *searchOptions) {
		opts.vectorWeight = weight
	}
}

// WithTextWeight sets the weight of the lexical relevance in the hybrid score
func WithTextWeight(weight float64) SearchOption {
	return func(opts *searchOptions) {
		opts.textWeight = weight
	}
}

// WithLimit sets the maximum number of results
func WithLimit(limit int) SearchOption {
	return func(opts *searchOptions) {
		opts.limit = limit
	}
}

// WithTimeout bounds each retrieval branch. A branch that runs out of time contributes
// no candidates. Zero means no bound.
func WithTimeout(timeout time.Duration) SearchOption {
	return func(opts *searchOptions) {
		opts.timeout = timeout
	}
}

// WithClock sets the clock relative dates in smart search are resolved against
func WithClock(now func() time.Time) SearchOption {
	return func(opts *searchOptions) {
		opts.now = now
	}
}
