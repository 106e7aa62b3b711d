package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// bookStore implements driven.BookStore.
type bookStore struct {
	store *Store
}

var _ driven.BookStore = (*bookStore)(nil)

// bookColumns is the select list shared by all book queries.
const bookColumns = `id, owner_id, title, author, language, original_filename,
	file_type, file_size, storage_key, content_hash, state, processing_error,
	total_chunks, total_words, estimated_pages, embedding_model, collection_id,
	created_at, updated_at, processed_at`

// SaveBook stores or updates a book.
func (s *bookStore) SaveBook(ctx context.Context, book *domain.Book) error {
	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO books (id, owner_id, title, author, language, original_filename,
			file_type, file_size, storage_key, content_hash, state, processing_error,
			total_chunks, total_words, estimated_pages, embedding_model, collection_id,
			created_at, updated_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			title = excluded.title,
			author = excluded.author,
			language = excluded.language,
			original_filename = excluded.original_filename,
			file_type = excluded.file_type,
			file_size = excluded.file_size,
			storage_key = excluded.storage_key,
			content_hash = excluded.content_hash,
			state = excluded.state,
			processing_error = excluded.processing_error,
			total_chunks = excluded.total_chunks,
			total_words = excluded.total_words,
			estimated_pages = excluded.estimated_pages,
			embedding_model = excluded.embedding_model,
			collection_id = excluded.collection_id,
			updated_at = excluded.updated_at,
			processed_at = excluded.processed_at
	`, book.ID, book.OwnerID, book.Title, book.Author, book.Language, book.OriginalFilename,
		string(book.FileType), book.FileSize, book.StorageKey, book.ContentHash,
		string(book.State), book.ProcessingError, book.TotalChunks, book.TotalWords,
		book.EstimatedPages, book.EmbeddingModel, book.CollectionID,
		book.CreatedAt, book.UpdatedAt, nullTime(book.ProcessedAt))

	if err != nil {
		return fmt.Errorf("saving book: %w", err)
	}
	return nil
}

// GetBook retrieves a book by ID.
func (s *bookStore) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+bookColumns+" FROM books WHERE id = ?", id)
	return scanBook(row)
}

// FindByContentHash returns the owner's book with the given raw file hash.
func (s *bookStore) FindByContentHash(ctx context.Context, ownerID, hash string) (*domain.Book, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+bookColumns+" FROM books WHERE owner_id = ? AND content_hash = ?",
		ownerID, hash)
	return scanBook(row)
}

// ListBooks returns all books for an owner, newest first.
func (s *bookStore) ListBooks(ctx context.Context, ownerID string) ([]domain.Book, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+bookColumns+" FROM books WHERE owner_id = ? ORDER BY created_at DESC",
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying books: %w", err)
	}
	defer rows.Close()

	return scanBooks(rows)
}

// ListBooksInState returns all books in the given state, oldest first.
func (s *bookStore) ListBooksInState(ctx context.Context, state domain.ProcessingState) ([]domain.Book, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+bookColumns+" FROM books WHERE state = ? ORDER BY updated_at ASC",
		string(state))
	if err != nil {
		return nil, fmt.Errorf("querying books by state: %w", err)
	}
	defer rows.Close()

	return scanBooks(rows)
}

// TransitionState moves a book between processing states with an atomic
// compare-and-set on the state column.
func (s *bookStore) TransitionState(ctx context.Context, id string, from, to domain.ProcessingState) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE books SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`, string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("transitioning book state: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking transition result: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Distinguish a missing book from a lost state race.
	var count int
	if err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM books WHERE id = ?", id).Scan(&count); err != nil {
		return fmt.Errorf("checking book existence: %w", err)
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return fmt.Errorf("book %s is not %s: %w", id, from, domain.ErrProcessingConflict)
}

// ReplaceSegments atomically deletes a book's segments and stores the new set.
func (s *bookStore) ReplaceSegments(ctx context.Context, bookID string, segments []domain.Segment) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM segments WHERE book_id = ?", bookID); err != nil {
		return fmt.Errorf("deleting old segments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (id, book_id, position, content, page, chapter, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, seg := range segments {
		embeddingBlob := float32SliceToBytes(seg.Embedding)
		if _, err := stmt.ExecContext(ctx, seg.ID, bookID, seg.Index,
			seg.Text, seg.Page, seg.Chapter, embeddingBlob); err != nil {
			return fmt.Errorf("saving segment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetSegments retrieves all segments for a book ordered by index.
func (s *bookStore) GetSegments(ctx context.Context, bookID string) ([]domain.Segment, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, book_id, position, content, page, chapter, embedding
		FROM segments WHERE book_id = ?
		ORDER BY position
	`, bookID)
	if err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}
	defer rows.Close()

	var segments []domain.Segment //nolint:prealloc // size unknown from query
	for rows.Next() {
		var seg domain.Segment
		var embeddingBlob []byte
		if err := rows.Scan(&seg.ID, &seg.BookID, &seg.Index,
			&seg.Text, &seg.Page, &seg.Chapter, &embeddingBlob); err != nil {
			return nil, fmt.Errorf("scanning segment: %w", err)
		}
		seg.Embedding = bytesToFloat32Slice(embeddingBlob)
		segments = append(segments, seg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating segments: %w", err)
	}
	return segments, nil
}

// CountSegments returns the number of stored segments for a book.
func (s *bookStore) CountSegments(ctx context.Context, bookID string) (int, error) {
	var count int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM segments WHERE book_id = ?", bookID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting segments: %w", err)
	}
	return count, nil
}

// DeleteBook removes a book; segments, sessions and exchanges cascade.
func (s *bookStore) DeleteBook(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	return nil
}

// scanBook scans a single book row.
func scanBook(row *sql.Row) (*domain.Book, error) {
	var book domain.Book
	var fileType, state string
	var processedAt sql.NullTime

	if err := row.Scan(&book.ID, &book.OwnerID, &book.Title, &book.Author, &book.Language,
		&book.OriginalFilename, &fileType, &book.FileSize, &book.StorageKey, &book.ContentHash,
		&state, &book.ProcessingError, &book.TotalChunks, &book.TotalWords,
		&book.EstimatedPages, &book.EmbeddingModel, &book.CollectionID,
		&book.CreatedAt, &book.UpdatedAt, &processedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning book: %w", err)
	}

	book.FileType = domain.FileType(fileType)
	book.State = domain.ProcessingState(state)
	if processedAt.Valid {
		book.ProcessedAt = processedAt.Time
	}
	return &book, nil
}

// scanBooks scans multiple book rows.
func scanBooks(rows *sql.Rows) ([]domain.Book, error) {
	var books []domain.Book //nolint:prealloc // size unknown from query
	for rows.Next() {
		var book domain.Book
		var fileType, state string
		var processedAt sql.NullTime

		if err := rows.Scan(&book.ID, &book.OwnerID, &book.Title, &book.Author, &book.Language,
			&book.OriginalFilename, &fileType, &book.FileSize, &book.StorageKey, &book.ContentHash,
			&state, &book.ProcessingError, &book.TotalChunks, &book.TotalWords,
			&book.EstimatedPages, &book.EmbeddingModel, &book.CollectionID,
			&book.CreatedAt, &book.UpdatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}

		book.FileType = domain.FileType(fileType)
		book.State = domain.ProcessingState(state)
		if processedAt.Valid {
			book.ProcessedAt = processedAt.Time
		}
		books = append(books, book)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating books: %w", err)
	}
	return books, nil
}
