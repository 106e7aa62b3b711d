package driving

import (
	"context"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
)

// LibraryService manages a user's uploaded books.
type LibraryService interface {
	// Upload stores the raw file, creates the book record and queues
	// ingestion. Re-uploading identical bytes returns the existing
	// book instead of creating a duplicate.
	Upload(ctx context.Context, req UploadRequest) (*domain.Book, error)

	// Get returns one of the owner's books.
	Get(ctx context.Context, ownerID, bookID string) (*domain.Book, error)

	// List returns the owner's books.
	List(ctx context.Context, ownerID string) ([]domain.Book, error)

	// Delete removes a book: vector collection, segments, blob and
	// record. Rejected while the book is mid-ingestion.
	Delete(ctx context.Context, ownerID, bookID string) error

	// DownloadURL returns a presigned URL for the original file.
	DownloadURL(ctx context.Context, ownerID, bookID string) (string, error)
}

// UploadRequest carries one book upload.
type UploadRequest struct {
	// OwnerID is the uploading user.
	OwnerID string

	// Filename is the original filename; its extension determines the
	// file type.
	Filename string

	// Title is the book title. Defaults to the filename stem.
	Title string

	// Author is the book author, when provided.
	Author string

	// Language is an optional ISO 639-1 hint.
	Language string

	// Data is the raw file content.
	Data []byte
}
