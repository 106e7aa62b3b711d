package pdf

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
)

// minimalPDF assembles a one-page PDF with an uncompressed content
// stream. Xref offsets are computed, not hardcoded, so the fixture
// stays valid when the content changes.
func minimalPDF(content string) []byte {
	var buf bytes.Buffer
	var offsets []int

	object := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")
	object("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	object("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	object("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
		"/Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>\nendobj\n")
	object(fmt.Sprintf("4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(content), content))
	object("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 6\n")
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	buf.WriteString("trailer\n<< /Size 6 /Root 1 0 R >>\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	return buf.Bytes()
}

func TestSupports(t *testing.T) {
	e := New()

	assert.True(t, e.Supports(domain.FileTypePDF))
	assert.False(t, e.Supports(domain.FileTypePlain))
	assert.False(t, e.Supports(domain.FileTypeEPUB))
}

func TestExtract_MinimalDocument(t *testing.T) {
	e := New()
	data := minimalPDF("BT /F1 12 Tf 72 720 Td (Call me Ishmael.) Tj ET")

	text, err := e.Extract(context.Background(), data, domain.FileTypePDF)

	require.NoError(t, err)
	assert.Equal(t, "Call me Ishmael.", text)
}

func TestExtract_LineBreaksSurvive(t *testing.T) {
	e := New()
	data := minimalPDF("BT /F1 12 Tf 72 720 Td (Call me Ishmael.) Tj 0 -14 Td (Some years ago.) Tj ET")

	text, err := e.Extract(context.Background(), data, domain.FileTypePDF)

	require.NoError(t, err)
	assert.Equal(t, "Call me Ishmael.\nSome years ago.", text)
}

func TestExtract_GarbageFails(t *testing.T) {
	e := New()

	_, err := e.Extract(context.Background(), []byte("definitely not a pdf"), domain.FileTypePDF)

	require.Error(t, err)
	var extractErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, domain.FileTypePDF, extractErr.FileType)
}

func TestExtract_NoTextFails(t *testing.T) {
	e := New()
	// Graphics only, nothing drawn as text.
	data := minimalPDF("0 0 100 100 re f")

	_, err := e.Extract(context.Background(), data, domain.FileTypePDF)

	require.Error(t, err)
	var extractErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Contains(t, extractErr.Reason, "no extractable text")
}

func TestExtract_CanceledContext(t *testing.T) {
	e := New()
	data := minimalPDF("BT (x) Tj ET")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, data, domain.FileTypePDF)

	require.ErrorIs(t, err, context.Canceled)
}

// ==================== Content Stream Scanner Tests ====================

func TestContentText(t *testing.T) {
	tests := []struct {
		name     string
		stream   string
		expected string
	}{
		{
			name:     "adjacent strings share a line",
			stream:   "BT (Hello ) Tj (world) Tj ET",
			expected: "Hello world",
		},
		{
			name:     "TJ word gaps become spaces",
			stream:   "BT [(Call) -250 (me) -250 (Ishmael)] TJ ET",
			expected: "Call me Ishmael",
		},
		{
			name:     "small TJ kerns are not gaps",
			stream:   "BT [(kern) -20 (ing)] TJ ET",
			expected: "kerning",
		},
		{
			name:     "vertical Td breaks the line",
			stream:   "BT (first) Tj 0 -14 Td (second) Tj ET",
			expected: "first\nsecond",
		},
		{
			name:     "horizontal Td stays on the line",
			stream:   "BT (left) Tj 120 0 Td (right) Tj ET",
			expected: "left right",
		},
		{
			name:     "T* breaks the line",
			stream:   "BT (first) Tj T* (second) Tj ET",
			expected: "first\nsecond",
		},
		{
			name:     "names are not operators",
			stream:   "BT /Td (a) Tj (b) Tj ET",
			expected: "ab",
		},
		{
			name:     "comments are skipped",
			stream:   "% (hidden) Tj\nBT (shown) Tj ET",
			expected: "shown",
		},
		{
			name:     "hex strings decode",
			stream:   "BT <48656C6C6F> Tj ET",
			expected: "Hello",
		},
		{
			name:     "utf16 hex strings decode",
			stream:   "BT <FEFF00480069> Tj ET",
			expected: "Hi",
		},
		{
			name:     "empty stream",
			stream:   "",
			expected: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, contentText([]byte(tc.stream)))
		})
	}
}

func TestLiteralString_Escapes(t *testing.T) {
	stream := []byte(`(a\(b\)c \\ \101)`)

	text, next := literalString(stream, 0)

	assert.Equal(t, `a(b)c \ A`, text)
	assert.Equal(t, len(stream), next)
}

func TestLiteralString_NestedParens(t *testing.T) {
	stream := []byte("(outer (inner) tail) rest")

	text, next := literalString(stream, 0)

	assert.Equal(t, "outer (inner) tail", text)
	assert.Equal(t, []byte(" rest"), stream[next:])
}

func TestHexString_OddDigitsPadded(t *testing.T) {
	// "ABC" needs a trailing zero nibble: 41 42 43 -> <41424 3>.
	text, _ := hexString([]byte("<414243>"), 0)
	assert.Equal(t, "ABC", text)

	padded, _ := hexString([]byte("<41424>"), 0)
	assert.Equal(t, "AB@", padded) // 4 padded to 0x40
}

func TestDecodeString_WinAnsiTypography(t *testing.T) {
	// 0x92 is the WinAnsi right single quote, 0x85 the ellipsis.
	text := decodeString([]byte{'i', 't', 0x92, 's', 0x85})

	assert.Equal(t, "it’s…", text)
}
