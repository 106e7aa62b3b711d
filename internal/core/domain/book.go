package domain

import "time"

// ProcessingState tracks where a book is in the ingestion pipeline.
type ProcessingState string

// Processing states. Transitions move forward only
// (pending -> processing -> completed|failed), except failed -> pending
// on an explicit reprocess request.
const (
	ProcessingPending    ProcessingState = "pending"
	ProcessingInProgress ProcessingState = "processing"
	ProcessingCompleted  ProcessingState = "completed"
	ProcessingFailed     ProcessingState = "failed"
)

// FileType identifies the original upload format.
type FileType string

// Supported upload formats.
const (
	FileTypePDF   FileType = "pdf"
	FileTypeEPUB  FileType = "epub"
	FileTypePlain FileType = "txt"
)

// ParseFileType maps a file extension (without dot) to a FileType.
// Returns ErrUnsupportedFileType for anything else.
func ParseFileType(ext string) (FileType, error) {
	switch FileType(ext) {
	case FileTypePDF, FileTypeEPUB, FileTypePlain:
		return FileType(ext), nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// Book represents an uploaded book and its ingestion state.
// It is the canonical record the chat pipeline answers against.
type Book struct {
	// ID is the unique identifier for the book.
	ID string

	// OwnerID is the user who uploaded the book. A book is owned
	// exclusively by its uploader.
	OwnerID string

	// Title is the human-readable title.
	Title string

	// Author is the book's author, when known.
	Author string

	// Language is an ISO 639-1 hint used for prompt framing.
	Language string

	// OriginalFilename is the name of the uploaded file.
	OriginalFilename string

	// FileType is the upload format (pdf, epub, txt).
	FileType FileType

	// FileSize is the upload size in bytes.
	FileSize int64

	// StorageKey is the blob store handle for the raw file.
	StorageKey string

	// ContentHash is the SHA-256 of the raw file, used for
	// per-owner duplicate detection.
	ContentHash string

	// State is the current processing state.
	State ProcessingState

	// ProcessingError holds the failure detail when State is failed.
	ProcessingError string

	// TotalChunks is the number of segments produced by ingestion.
	// Zero until ingestion completes.
	TotalChunks int

	// TotalWords is the word count of the extracted text.
	TotalWords int

	// EstimatedPages is derived from TotalWords (roughly 250 words/page).
	EstimatedPages int

	// EmbeddingModel records which model produced the stored vectors.
	// Changing models requires re-ingestion; the mismatch is detectable
	// through this field.
	EmbeddingModel string

	// CollectionID is the vector index collection holding the
	// book's segments.
	CollectionID string

	// CreatedAt is when the book record was created.
	CreatedAt time.Time

	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time

	// ProcessedAt is when ingestion last completed. Zero until then.
	ProcessedAt time.Time
}

// IsProcessed reports whether the book is ready for chat.
func (b *Book) IsProcessed() bool {
	return b.State == ProcessingCompleted
}

// CanTransitionTo reports whether moving to the target state is a legal
// forward transition from the current one.
func (b *Book) CanTransitionTo(target ProcessingState) bool {
	switch b.State {
	case ProcessingPending:
		return target == ProcessingInProgress
	case ProcessingInProgress:
		return target == ProcessingCompleted || target == ProcessingFailed
	case ProcessingFailed:
		// Manual reprocess resets the book to pending.
		return target == ProcessingPending
	case ProcessingCompleted:
		// Completed books may be re-ingested (model change, re-upload).
		return target == ProcessingPending
	default:
		return false
	}
}

// ResetForReprocess clears error detail and chunk counters ahead of a
// fresh ingestion run.
func (b *Book) ResetForReprocess() {
	b.State = ProcessingPending
	b.ProcessingError = ""
	b.TotalChunks = 0
	b.ProcessedAt = time.Time{}
}

// WordsPerPage is the heuristic used to estimate page counts from
// extracted text.
const WordsPerPage = 250

// EstimatePages converts a word count into an approximate page count.
func EstimatePages(words int) int {
	if words <= 0 {
		return 0
	}
	pages := words / WordsPerPage
	if words%WordsPerPage != 0 {
		pages++
	}
	return pages
}
