package driven

import (
	"context"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
)

// BookStore persists books and their segments.
// Backed by SQLite for metadata storage.
type BookStore interface {
	// SaveBook stores or updates a book.
	SaveBook(ctx context.Context, book *domain.Book) error

	// GetBook retrieves a book by ID.
	GetBook(ctx context.Context, id string) (*domain.Book, error)

	// FindByContentHash returns the owner's book with the given raw
	// file hash, for upload dedup. ErrNotFound when none exists.
	FindByContentHash(ctx context.Context, ownerID, hash string) (*domain.Book, error)

	// ListBooks returns all books for an owner.
	ListBooks(ctx context.Context, ownerID string) ([]domain.Book, error)

	// ListBooksInState returns all books currently in the given state,
	// oldest first. Used by the ingestion reconciler.
	ListBooksInState(ctx context.Context, state domain.ProcessingState) ([]domain.Book, error)

	// TransitionState moves a book from one processing state to
	// another in a single atomic compare-and-set. Returns
	// ErrProcessingConflict when the book is no longer in the expected
	// state, which serves as the per-book mutual-exclusion marker.
	TransitionState(ctx context.Context, id string, from, to domain.ProcessingState) error

	// ReplaceSegments atomically deletes a book's existing segments
	// and stores the new set. A reprocess therefore never leaves
	// stale segments behind.
	ReplaceSegments(ctx context.Context, bookID string, segments []domain.Segment) error

	// GetSegments retrieves all segments for a book ordered by index.
	GetSegments(ctx context.Context, bookID string) ([]domain.Segment, error)

	// CountSegments returns the number of stored segments for a book.
	CountSegments(ctx context.Context, bookID string) (int, error)

	// DeleteBook removes a book and its segments.
	DeleteBook(ctx context.Context, id string) error
}
