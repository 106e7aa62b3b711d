package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
)

func TestSupports(t *testing.T) {
	e := New()

	assert.True(t, e.Supports(domain.FileTypePlain))
	assert.False(t, e.Supports(domain.FileTypePDF))
	assert.False(t, e.Supports(domain.FileTypeEPUB))
}

func TestExtract_NormalisesLineEndings(t *testing.T) {
	e := New()

	text, err := e.Extract(context.Background(), []byte("one\r\ntwo\rthree\nfour"), domain.FileTypePlain)

	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\nfour", text)
}

func TestExtract_StripsBOM(t *testing.T) {
	e := New()
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Chapter One")...)

	text, err := e.Extract(context.Background(), data, domain.FileTypePlain)

	require.NoError(t, err)
	assert.Equal(t, "Chapter One", text)
}

func TestExtract_TrimsSurroundingWhitespace(t *testing.T) {
	e := New()

	text, err := e.Extract(context.Background(), []byte("\n\n  body text  \n\n"), domain.FileTypePlain)

	require.NoError(t, err)
	assert.Equal(t, "body text", text)
}

func TestExtract_RejectsBinaryData(t *testing.T) {
	e := New()

	_, err := e.Extract(context.Background(), []byte{'a', 0x00, 'b'}, domain.FileTypePlain)

	require.Error(t, err)
	var extractErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, domain.FileTypePlain, extractErr.FileType)
	assert.Contains(t, extractErr.Reason, "binary")
}

func TestExtract_Latin1Fallback(t *testing.T) {
	e := New()
	// "café" encoded as Latin-1: the 0xE9 byte is not valid UTF-8.
	data := []byte{'c', 'a', 'f', 0xE9}

	text, err := e.Extract(context.Background(), data, domain.FileTypePlain)

	require.NoError(t, err)
	assert.Equal(t, "café", text)
}

func TestExtract_EmptyFile(t *testing.T) {
	e := New()

	text, err := e.Extract(context.Background(), nil, domain.FileTypePlain)

	require.NoError(t, err)
	assert.Empty(t, text)
}
