package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driving"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// Ensure LibraryService implements the interface.
var _ driving.LibraryService = (*LibraryService)(nil)

// DefaultDownloadTTL is how long a presigned download link stays valid.
const DefaultDownloadTTL = 15 * time.Minute

// LibraryService manages uploaded books: raw file storage, the book
// record, deduplication and deletion.
type LibraryService struct {
	books  driven.BookStore
	blobs  driven.BlobStore
	index  driven.VectorIndex
	ingest driving.IngestionService
}

// NewLibraryService creates the library service. The ingestion service
// may be nil, in which case uploads stay pending until triggered
// explicitly.
func NewLibraryService(
	books driven.BookStore,
	blobs driven.BlobStore,
	index driven.VectorIndex,
	ingest driving.IngestionService,
) *LibraryService {
	return &LibraryService{
		books:  books,
		blobs:  blobs,
		index:  index,
		ingest: ingest,
	}
}

// Upload stores the file and creates the book record. Identical bytes
// from the same owner return the existing book untouched.
func (s *LibraryService) Upload(ctx context.Context, req driving.UploadRequest) (*domain.Book, error) {
	// 1. VALIDATE
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrInvalidInput)
	}
	if req.Filename == "" {
		return nil, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", domain.ErrInvalidInput)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(req.Filename), "."))
	fileType, err := domain.ParseFileType(ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, ext)
	}

	// 2. DEDUP BY CONTENT HASH
	sum := sha256.Sum256(req.Data)
	hash := hex.EncodeToString(sum[:])
	if existing, err := s.books.FindByContentHash(ctx, req.OwnerID, hash); err == nil {
		logger.Info("duplicate upload", "book", existing.ID, "hash", hash[:12])
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}

	// 3. STORE THE RAW FILE
	key, err := s.blobs.Put(ctx, req.Data, req.Filename)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	// 4. CREATE THE RECORD
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(req.Filename, filepath.Ext(req.Filename))
	}
	now := time.Now().UTC()
	book := &domain.Book{
		ID:               uuid.New().String(),
		OwnerID:          req.OwnerID,
		Title:            title,
		Author:           strings.TrimSpace(req.Author),
		Language:         strings.TrimSpace(req.Language),
		OriginalFilename: req.Filename,
		FileType:         fileType,
		FileSize:         int64(len(req.Data)),
		StorageKey:       key,
		ContentHash:      hash,
		State:            domain.ProcessingPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.books.SaveBook(ctx, book); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			logger.Warn("orphaned blob after failed save", "key", key, "error", derr)
		}
		return nil, fmt.Errorf("save book: %w", err)
	}
	logger.Info("book uploaded",
		"book", book.ID, "owner", book.OwnerID, "type", book.FileType, "bytes", book.FileSize)

	// 5. QUEUE INGESTION
	// Best effort: a book left pending is rescued by the reconciler or
	// an explicit ingest call.
	if s.ingest != nil {
		if err := s.ingest.Enqueue(ctx, book.ID); err != nil {
			logger.Warn("queue ingestion after upload", "book", book.ID, "error", err)
		}
	}

	return book, nil
}

// Get returns one of the owner's books. Books of other owners are
// reported as not found.
func (s *LibraryService) Get(ctx context.Context, ownerID, bookID string) (*domain.Book, error) {
	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book.OwnerID != ownerID {
		return nil, fmt.Errorf("get book: %w", domain.ErrNotFound)
	}
	return book, nil
}

// List returns the owner's books.
func (s *LibraryService) List(ctx context.Context, ownerID string) ([]domain.Book, error) {
	books, err := s.books.ListBooks(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// Delete removes the book's vector collection, blob and record. The
// record delete cascades to segments, sessions and exchanges. Rejected
// while ingestion is running.
func (s *LibraryService) Delete(ctx context.Context, ownerID, bookID string) error {
	book, err := s.Get(ctx, ownerID, bookID)
	if err != nil {
		return err
	}
	if book.State == domain.ProcessingInProgress {
		return fmt.Errorf("%w: cannot delete while ingesting", domain.ErrProcessingConflict)
	}

	if err := s.index.DropCollection(ctx, book.ID); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	if err := s.blobs.Delete(ctx, book.StorageKey); err != nil {
		logger.Warn("delete blob", "book", book.ID, "key", book.StorageKey, "error", err)
	}
	if err := s.books.DeleteBook(ctx, book.ID); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	logger.Info("book deleted", "book", book.ID, "owner", ownerID)
	return nil
}

// DownloadURL returns a time-limited link to the original file.
func (s *LibraryService) DownloadURL(ctx context.Context, ownerID, bookID string) (string, error) {
	book, err := s.Get(ctx, ownerID, bookID)
	if err != nil {
		return "", err
	}

	url, err := s.blobs.URL(ctx, book.StorageKey, DefaultDownloadTTL)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}
