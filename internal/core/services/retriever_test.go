package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vectormemory "github.com/inkwell-ai/inkwell-core/internal/adapters/driven/vector/memory"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// retrMockEmbedder implements driven.EmbeddingService returning a fixed
// vector, so tests control similarity through the stored points alone.
type retrMockEmbedder struct {
	vector []float32
	err    error
}

func (e *retrMockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

func (e *retrMockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = e.vector
	}
	return result, nil
}

func (e *retrMockEmbedder) Dimensions() int              { return len(e.vector) }
func (e *retrMockEmbedder) ModelName() string            { return "retr-mock" }
func (e *retrMockEmbedder) Ping(_ context.Context) error { return nil }
func (e *retrMockEmbedder) Close() error                 { return nil }

func TestNewRetriever_Defaults(t *testing.T) {
	r := NewRetriever(&retrMockEmbedder{}, vectormemory.NewIndex(), RetrieverConfig{})

	assert.Equal(t, DefaultTopK, r.topK)
	assert.InDelta(t, DefaultMinScore, r.minScore, 0.001)
}

func TestRetriever_Retrieve_EmptyQuery(t *testing.T) {
	r := NewRetriever(&retrMockEmbedder{vector: []float32{1, 0, 0}}, vectormemory.NewIndex(), RetrieverConfig{})

	segments, err := r.Retrieve(context.Background(), "book-1", "   ")

	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestRetriever_Retrieve_MissingCollection(t *testing.T) {
	// A book whose collection was never created (or was dropped) yields
	// an empty result, never an error.
	r := NewRetriever(&retrMockEmbedder{vector: []float32{1, 0, 0}}, vectormemory.NewIndex(), RetrieverConfig{})

	segments, err := r.Retrieve(context.Background(), "book-without-collection", "anything")

	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestRetriever_Retrieve_FiltersBelowMinScore(t *testing.T) {
	index := vectormemory.NewIndex()
	ctx := context.Background()
	require.NoError(t, index.EnsureCollection(ctx, "book-1", 3))
	require.NoError(t, index.Upsert(ctx, "book-1", []driven.VectorPoint{
		{SegmentID: "exact", Vector: []float32{1, 0, 0}, Payload: driven.VectorPayload{Index: 0, Text: "exact match"}},
		{SegmentID: "close", Vector: []float32{0.8, 0.6, 0}, Payload: driven.VectorPayload{Index: 1, Text: "close match"}},
		{SegmentID: "far", Vector: []float32{0, 1, 0}, Payload: driven.VectorPayload{Index: 2, Text: "unrelated"}},
	}))

	r := NewRetriever(&retrMockEmbedder{vector: []float32{1, 0, 0}}, index, RetrieverConfig{TopK: 5, MinScore: 0.5})

	segments, err := r.Retrieve(ctx, "book-1", "the query")

	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "exact", segments[0].ID)
	assert.InDelta(t, 1.0, segments[0].Score, 0.001)
	assert.Equal(t, "close", segments[1].ID)
	assert.InDelta(t, 0.8, segments[1].Score, 0.001)
}

func TestRetriever_Retrieve_TopKBound(t *testing.T) {
	index := vectormemory.NewIndex()
	ctx := context.Background()
	require.NoError(t, index.EnsureCollection(ctx, "book-1", 3))

	points := make([]driven.VectorPoint, 10)
	for i := range points {
		points[i] = driven.VectorPoint{
			SegmentID: string(rune('a' + i)),
			Vector:    []float32{1, 0, 0},
			Payload:   driven.VectorPayload{Index: i, Text: "segment"},
		}
	}
	require.NoError(t, index.Upsert(ctx, "book-1", points))

	r := NewRetriever(&retrMockEmbedder{vector: []float32{1, 0, 0}}, index, RetrieverConfig{TopK: 3, MinScore: 0.1})

	segments, err := r.Retrieve(ctx, "book-1", "the query")

	require.NoError(t, err)
	assert.Len(t, segments, 3)
}

func TestRetriever_Retrieve_PayloadCarriesSegment(t *testing.T) {
	index := vectormemory.NewIndex()
	ctx := context.Background()
	require.NoError(t, index.EnsureCollection(ctx, "book-1", 3))
	require.NoError(t, index.Upsert(ctx, "book-1", []driven.VectorPoint{
		{
			SegmentID: "seg-42",
			Vector:    []float32{1, 0, 0},
			Payload:   driven.VectorPayload{Index: 42, Text: "the bit about tides", Page: 13, Chapter: "4"},
		},
	}))

	r := NewRetriever(&retrMockEmbedder{vector: []float32{1, 0, 0}}, index, RetrieverConfig{MinScore: 0.1})

	segments, err := r.Retrieve(ctx, "book-1", "tides")

	require.NoError(t, err)
	require.Len(t, segments, 1)
	seg := segments[0]
	assert.Equal(t, "seg-42", seg.ID)
	assert.Equal(t, "book-1", seg.BookID)
	assert.Equal(t, 42, seg.Index)
	assert.Equal(t, "the bit about tides", seg.Text)
	assert.Equal(t, 13, seg.Page)
	assert.Equal(t, "4", seg.Chapter)
}

func TestRetriever_Retrieve_EmbedError(t *testing.T) {
	r := NewRetriever(&retrMockEmbedder{err: errors.New("provider down")}, vectormemory.NewIndex(), RetrieverConfig{})

	_, err := r.Retrieve(context.Background(), "book-1", "the query")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed query")
}
