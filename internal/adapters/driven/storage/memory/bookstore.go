// Package memory provides in-memory store implementations, used in
// tests and for ephemeral single-process runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// Ensure BookStore implements the interface.
var _ driven.BookStore = (*BookStore)(nil)

// BookStore is an in-memory implementation of driven.BookStore.
type BookStore struct {
	mu       sync.RWMutex
	books    map[string]domain.Book
	segments map[string][]domain.Segment
}

// NewBookStore creates a new in-memory book store.
func NewBookStore() *BookStore {
	return &BookStore{
		books:    make(map[string]domain.Book),
		segments: make(map[string][]domain.Segment),
	}
}

// SaveBook stores or updates a book.
func (s *BookStore) SaveBook(_ context.Context, book *domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book.UpdatedAt = time.Now().UTC()
	s.books[book.ID] = *book
	return nil
}

// GetBook retrieves a book by ID.
func (s *BookStore) GetBook(_ context.Context, id string) (*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	book, ok := s.books[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &book, nil
}

// FindByContentHash returns the owner's book with the given file hash.
func (s *BookStore) FindByContentHash(_ context.Context, ownerID, hash string) (*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.books {
		book := s.books[id]
		if book.OwnerID == ownerID && book.ContentHash == hash {
			return &book, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ListBooks returns all books for an owner, newest first.
func (s *BookStore) ListBooks(_ context.Context, ownerID string) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Book
	for id := range s.books {
		book := s.books[id]
		if book.OwnerID == ownerID {
			result = append(result, book)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ListBooksInState returns all books in the given state, oldest first.
func (s *BookStore) ListBooksInState(_ context.Context, state domain.ProcessingState) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Book
	for id := range s.books {
		book := s.books[id]
		if book.State == state {
			result = append(result, book)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result, nil
}

// TransitionState moves a book between processing states atomically.
func (s *BookStore) TransitionState(_ context.Context, id string, from, to domain.ProcessingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[id]
	if !ok {
		return domain.ErrNotFound
	}
	if book.State != from {
		return domain.ErrProcessingConflict
	}
	book.State = to
	book.UpdatedAt = time.Now().UTC()
	s.books[id] = book
	return nil
}

// ReplaceSegments swaps a book's segment set atomically.
func (s *BookStore) ReplaceSegments(_ context.Context, bookID string, segments []domain.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	replacement := make([]domain.Segment, len(segments))
	copy(replacement, segments)
	sort.Slice(replacement, func(i, j int) bool {
		return replacement[i].Index < replacement[j].Index
	})
	s.segments[bookID] = replacement
	return nil
}

// GetSegments retrieves all segments for a book ordered by index.
func (s *BookStore) GetSegments(_ context.Context, bookID string) ([]domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.segments[bookID]
	if !ok {
		return nil, nil
	}
	result := make([]domain.Segment, len(stored))
	copy(result, stored)
	return result, nil
}

// CountSegments returns the number of stored segments for a book.
func (s *BookStore) CountSegments(_ context.Context, bookID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments[bookID]), nil
}

// DeleteBook removes a book and its segments.
func (s *BookStore) DeleteBook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
	delete(s.segments, id)
	return nil
}
