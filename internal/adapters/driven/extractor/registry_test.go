package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
)

func TestDefault_SupportsAllUploadFormats(t *testing.T) {
	r := Default()

	assert.True(t, r.Supports(domain.FileTypePlain))
	assert.True(t, r.Supports(domain.FileTypePDF))
	assert.True(t, r.Supports(domain.FileTypeEPUB))
	assert.False(t, r.Supports(domain.FileType("docx")))
}

func TestRegistry_RoutesByType(t *testing.T) {
	r := Default()

	text, err := r.Extract(context.Background(), []byte("some book text"), domain.FileTypePlain)

	require.NoError(t, err)
	assert.Equal(t, "some book text", text)
}

func TestRegistry_UnsupportedType(t *testing.T) {
	r := Default()

	_, err := r.Extract(context.Background(), []byte("data"), domain.FileType("docx"))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)

	var extractErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, domain.FileType("docx"), extractErr.FileType)
}

func TestRegistry_EmptyRegistry(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.Supports(domain.FileTypePlain))

	_, err := r.Extract(context.Background(), []byte("data"), domain.FileTypePlain)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
}
