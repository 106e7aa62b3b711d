package domain

// Segment is a bounded span of a book's text, the atomic unit for
// embedding and retrieval. Segments are created in bulk during
// ingestion and are immutable afterwards; a reprocess replaces the
// whole set.
type Segment struct {
	// ID is the unique identifier for the segment.
	ID string

	// BookID links to the owning Book.
	BookID string

	// Index is the ordinal position within the book.
	// Indices are contiguous from 0.
	Index int

	// Text is the raw segment text.
	Text string

	// Page is an estimated page hint for citations. Zero when unknown.
	Page int

	// Chapter is an optional chapter hint for citations.
	Chapter string

	// Embedding is the vector representation for similarity search.
	Embedding []float32
}

// RetrievedSegment is a segment paired with its similarity score
// from a vector search.
type RetrievedSegment struct {
	Segment

	// Score is the cosine similarity to the query (0-1).
	Score float64
}

// CharsPerPage is the heuristic used to derive page hints from
// character offsets during ingestion.
const CharsPerPage = 1800

// PageForOffset estimates the 1-based page a character offset lands on.
func PageForOffset(offset int) int {
	if offset < 0 {
		return 1
	}
	return offset/CharsPerPage + 1
}
