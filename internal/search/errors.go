package search

import "errors"

var (
	// ErrIndexUnavailable is returned when a lexical or fuzzy search backend fails
	ErrIndexUnavailable = errors.New("search index unavailable")

	// ErrInvalidQuery is returned for search options that cannot produce a ranking
	ErrInvalidQuery = errors.New("invalid search query")

	// ErrNoSearchSignal is returned when neither the vector nor the lexical branch
	// produced a usable candidate set
	ErrNoSearchSignal = errors.New("no search signal: vector and lexical search both failed")
)
