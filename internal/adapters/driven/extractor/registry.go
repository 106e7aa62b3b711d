package extractor

import (
	"context"

	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/extractor/epub"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/extractor/pdf"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/extractor/plaintext"
	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.TextExtractor = (*Registry)(nil)

// Registry dispatches extraction to the first registered extractor
// that supports the file type.
type Registry struct {
	extractors []driven.TextExtractor
}

// NewRegistry creates a registry over the given extractors.
func NewRegistry(extractors ...driven.TextExtractor) *Registry {
	return &Registry{extractors: extractors}
}

// Default returns a registry covering all supported upload formats.
func Default() *Registry {
	return NewRegistry(plaintext.New(), pdf.New(), epub.New())
}

// Extract routes the file to the extractor for its type.
func (r *Registry) Extract(ctx context.Context, data []byte, fileType domain.FileType) (string, error) {
	for _, e := range r.extractors {
		if e.Supports(fileType) {
			return e.Extract(ctx, data, fileType)
		}
	}
	return "", &domain.ExtractionError{
		FileType: fileType,
		Reason:   "no extractor registered",
		Err:      domain.ErrUnsupportedFileType,
	}
}

// Supports reports whether any registered extractor handles the type.
func (r *Registry) Supports(fileType domain.FileType) bool {
	for _, e := range r.extractors {
		if e.Supports(fileType) {
			return true
		}
	}
	return false
}
