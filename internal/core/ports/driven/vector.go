package driven

import "context"

// VectorIndex provides per-book vector storage and similarity search.
// Each book gets its own collection so deleting a book is a single
// collection drop and searches never cross books.
//
// Implementations may include:
//   - Qdrant (REST API)
//   - Postgres with pgvector
//   - In-memory exact scan (tests, development)
type VectorIndex interface {
	// EnsureCollection creates the book's collection if it does not
	// exist. Idempotent: an existing collection is not an error.
	EnsureCollection(ctx context.Context, bookID string, dimensions int) error

	// Upsert inserts or replaces points in the book's collection.
	Upsert(ctx context.Context, bookID string, points []VectorPoint) error

	// Search finds the k nearest neighbours to the query vector,
	// ordered by cosine similarity descending. A missing collection
	// yields an empty result, not an error.
	Search(ctx context.Context, bookID string, query []float32, k int) ([]VectorHit, error)

	// DropCollection removes the book's collection and all points.
	// Dropping a missing collection is not an error.
	DropCollection(ctx context.Context, bookID string) error

	// Close releases resources.
	Close() error
}

// VectorPoint is one stored vector with its retrieval payload.
type VectorPoint struct {
	// SegmentID identifies the segment this vector represents.
	SegmentID string

	// Vector is the embedding.
	Vector []float32

	// Payload carries the data returned verbatim on search hits.
	Payload VectorPayload
}

// VectorPayload is the metadata stored alongside each vector.
type VectorPayload struct {
	// Index is the segment's ordinal position in the book.
	Index int `json:"index"`

	// Text is the segment text.
	Text string `json:"text"`

	// Page is the estimated page hint. Zero when unknown.
	Page int `json:"page,omitempty"`

	// Chapter is the chapter hint, when available.
	Chapter string `json:"chapter,omitempty"`
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// SegmentID is the matched segment.
	SegmentID string

	// Score is the cosine similarity (0-1).
	Score float64

	// Payload is the metadata stored at upsert time.
	Payload VectorPayload
}
