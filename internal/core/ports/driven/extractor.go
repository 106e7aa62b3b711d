package driven

import (
	"context"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
)

// TextExtractor produces plain text from raw file bytes.
// A corrupt or unreadable file surfaces as *domain.ExtractionError,
// which is terminal for the ingestion attempt.
type TextExtractor interface {
	// Extract returns the plain text content of the file.
	Extract(ctx context.Context, data []byte, fileType domain.FileType) (string, error)

	// Supports reports whether the extractor handles the file type.
	Supports(fileType domain.FileType) bool
}

// ContentValidator screens extracted text before chunking. It is a
// pluggable hook at the extractor boundary; the default implementation
// only enforces a minimum length. Returning an error fails the
// ingestion with that reason.
type ContentValidator func(text string) error
