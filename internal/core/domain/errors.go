package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	// Never retried; surfaced immediately to the caller.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedFileType indicates an upload format the extractor
	// cannot handle.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrBookNotReady indicates a chat request against a book whose
	// ingestion has not completed.
	ErrBookNotReady = errors.New("book is still processing")

	// ErrProcessingConflict indicates an ingestion was requested for a
	// book that is already being processed. The processing state is the
	// mutual-exclusion marker; concurrent runs are rejected, not queued.
	ErrProcessingConflict = errors.New("ingestion already in progress")

	// ErrSessionBookMismatch indicates a message addressed to a session
	// bound to a different book.
	ErrSessionBookMismatch = errors.New("session is bound to a different book")

	// ErrGeneratorUnavailable indicates no response generator is
	// configured or every provider in the chain failed.
	ErrGeneratorUnavailable = errors.New("response generator unavailable")

	// ErrEmbedderUnavailable indicates the embedding service is not
	// configured.
	ErrEmbedderUnavailable = errors.New("embedding service unavailable")
)

// ExtractionError indicates a corrupt or unreadable upload. It is
// terminal for the ingestion attempt; the book moves to failed.
type ExtractionError struct {
	// FileType is the format that failed to extract.
	FileType FileType

	// Reason describes the failure for the book's error detail.
	Reason string

	// Err is the underlying cause, when any.
	Err error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.FileType, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.FileType, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingError indicates an embedding batch failed after its retry
// budget. The orchestrator counts these against the failure threshold.
type EmbeddingError struct {
	// Batch is the index of the failed batch within the run.
	Batch int

	// Attempts is how many times the batch was tried.
	Attempts int

	// Err is the last provider error.
	Err error
}

// Error implements the error interface.
func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed batch %d after %d attempts: %v", e.Batch, e.Attempts, e.Err)
}

// Unwrap returns the last provider error.
func (e *EmbeddingError) Unwrap() error { return e.Err }

// GenerationError indicates a language-model call failed. Retryable
// errors (timeouts, rate limits, transient 5xx) may be attempted once
// more or passed to the next provider in a chain; fatal errors (auth,
// invalid request) skip straight to the next provider.
type GenerationError struct {
	// Provider names the model service that failed.
	Provider string

	// StatusCode is the HTTP status when the failure came from an API
	// response. Zero for transport-level failures.
	StatusCode int

	// Retryable reports whether another attempt could succeed.
	Retryable bool

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("generate via %s (%s): %v", e.Provider, kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *GenerationError) Unwrap() error { return e.Err }

// BudgetExceededError indicates the user's token budget cannot cover
// the request. Raised before any model spend.
type BudgetExceededError struct {
	// UserID is the budget owner.
	UserID string

	// Remaining is the unconsumed allowance.
	Remaining int

	// Required is the estimated cost that did not fit.
	Required int
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("token budget exceeded: %d remaining, %d required", e.Remaining, e.Required)
}

// IsRetryableGeneration reports whether err is a GenerationError marked
// retryable.
func IsRetryableGeneration(err error) bool {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Retryable
	}
	return false
}
