package driving

import (
	"context"
	"time"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
)

// IngestionService coordinates turning an uploaded book into a
// searchable, embedded knowledge base. Ingestion is asynchronous:
// Enqueue returns as soon as the run is queued, and workers do the
// extract/chunk/embed/index work in the background.
type IngestionService interface {
	// Enqueue schedules an ingestion run for the book. Idempotent
	// trigger semantics: a book already queued or mid-run returns
	// domain.ErrProcessingConflict rather than running twice.
	Enqueue(ctx context.Context, bookID string) error

	// Reprocess resets a failed (or completed) book to pending and
	// enqueues a fresh run. The old collection is dropped before
	// re-indexing so no stale segments survive.
	Reprocess(ctx context.Context, bookID string) error

	// Status reports the book's current ingestion state.
	Status(ctx context.Context, bookID string) (*IngestStatus, error)

	// Start launches the background workers. Blocks until the context
	// is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop drains the queue and waits for in-flight runs to finish.
	Stop() error
}

// IngestStatus is a point-in-time view of a book's ingestion.
type IngestStatus struct {
	// BookID is the book being reported on.
	BookID string

	// State is the current processing state.
	State domain.ProcessingState

	// Error is the failure detail when State is failed.
	Error string

	// TotalChunks is the segment count once completed.
	TotalChunks int

	// ProcessedAt is when ingestion last completed.
	ProcessedAt time.Time
}
