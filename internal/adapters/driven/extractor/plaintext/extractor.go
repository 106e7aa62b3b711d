// Package plaintext extracts text from plain .txt uploads.
package plaintext

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles plain text files.
type Extractor struct{}

// New creates a plain text extractor.
func New() *Extractor {
	return &Extractor{}
}

// Supports reports whether the extractor handles the file type.
func (e *Extractor) Supports(fileType domain.FileType) bool {
	return fileType == domain.FileTypePlain
}

// Extract returns the file content with line endings normalised.
// Binary data disguised as .txt is rejected.
func (e *Extractor) Extract(_ context.Context, data []byte, _ domain.FileType) (string, error) {
	if bytes.IndexByte(data, 0) >= 0 {
		return "", &domain.ExtractionError{
			FileType: domain.FileTypePlain,
			Reason:   "file contains binary data",
		}
	}

	// Strip a UTF-8 BOM if present.
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	text := string(data)
	if !utf8.Valid(data) {
		// Legacy single-byte uploads are read as Latin-1.
		runes := make([]rune, 0, len(data))
		for _, b := range data {
			runes = append(runes, rune(b))
		}
		text = string(runes)
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	return strings.TrimSpace(text), nil
}
