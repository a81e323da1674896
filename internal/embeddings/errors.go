package embeddings

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when blank text is passed to Embed
	ErrEmptyInput = errors.New("embedding input is empty")

	// ErrModelUnavailable is returned when the embedding model failed to load or run
	ErrModelUnavailable = errors.New("embedding model unavailable")
)

// DimensionMismatchError reports two vectors that were expected to share a dimension but do not.
// It signals a broken internal contract and is never treated as a recoverable search failure.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// IsDimensionMismatch reports whether err wraps a *DimensionMismatchError
func IsDimensionMismatch(err error) bool {
	var dimErr *DimensionMismatchError
	return errors.As(err, &dimErr)
}
