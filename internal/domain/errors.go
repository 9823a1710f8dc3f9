package domain

import "errors"

// Failure taxonomy shared by every layer. Implementations wrap a cause with
// fmt.Errorf("%w: ...", ErrX, ...) so callers can test with errors.Is.
var (
	ErrUnreadableDocument   = errors.New("unreadable document")
	ErrEmptyDocument        = errors.New("empty document")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrGenerationFailed     = errors.New("generation failed")

	ErrEmptyQuestion     = errors.New("question is empty")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
