package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest signals malformed input rejected before any I/O.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidThreshold signals a relevance or similarity threshold outside [0,1].
	ErrInvalidThreshold = errors.New("threshold out of range")
	// ErrUnknownCategory signals an entity category outside the closed set.
	ErrUnknownCategory = errors.New("unknown entity category")
	// ErrLowSignal signals a query without recognizable entities.
	ErrLowSignal = errors.New("low-signal query")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrTextTooShort signals source text below the minimum aggregation length.
	ErrTextTooShort = errors.New("text too short")
	// ErrNoTextExtracted signals that OCR produced no text for the input.
	ErrNoTextExtracted = errors.New("no text extracted")
	// ErrUnsupportedFile signals a file type the OCR collaborator cannot read.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrCommitFailed signals that a document/statistics commit was not applied.
	ErrCommitFailed = errors.New("commit failed")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLLMProviderError signals a chat-completion provider failure.
	ErrLLMProviderError = errors.New("llm provider error")
	// ErrNERFailed signals an entity extraction failure.
	ErrNERFailed = errors.New("entity extraction failed")
)

// CommitError wraps ErrCommitFailed for a single document.
// The commit is all-or-nothing, so a CommitError never leaves partial state behind.
type CommitError struct {
	URL       string
	Err       error
	retryable bool
}

// NewCommitError creates a commit error. retryable marks transient storage failures.
func NewCommitError(url string, err error, retryable bool) error {
	return &CommitError{URL: url, Err: err, retryable: retryable}
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("%s for %q: %v", ErrCommitFailed.Error(), e.URL, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *CommitError) Unwrap() []error { return []error{ErrCommitFailed, e.Err} }

// Retryable reports whether the whole operation may be retried as-is.
func (e *CommitError) Retryable() bool { return e.retryable }

// IsRetryable reports whether err carries a retryable commit failure.
func IsRetryable(err error) bool {
	var ce *CommitError
	return errors.As(err, &ce) && ce.Retryable()
}
