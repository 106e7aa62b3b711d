package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

func TestNewIndex(t *testing.T) {
	index := NewIndex()
	require.NotNil(t, index)
	assert.NotNil(t, index.collections)
}

func TestIndex_EnsureCollection_Idempotent(t *testing.T) {
	index := NewIndex()
	ctx := context.Background()

	require.NoError(t, index.EnsureCollection(ctx, "book-1", 3))
	require.NoError(t, index.EnsureCollection(ctx, "book-1", 3))
}

func TestIndex_EnsureCollection_DimensionMismatch(t *testing.T) {
	index := NewIndex()
	ctx := context.Background()

	require.NoError(t, index.EnsureCollection(ctx, "book-1", 3))

	err := index.EnsureCollection(ctx, "book-1", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestIndex_Upsert_MissingCollection(t *testing.T) {
	index := NewIndex()

	err := index.Upsert(context.Background(), "missing", []driven.VectorPoint{
		{SegmentID: "seg-0", Vector: []float32{1, 0, 0}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestIndex_Upsert_RejectsWrongDimensions(t *testing.T) {
	index := NewIndex()
	ctx := context.Background()

	require.NoError(t, index.EnsureCollection(ctx, "book-1", 3))

	err := index.Upsert(ctx, "book-1", []driven.VectorPoint{
		{SegmentID: "seg-0", Vector: []float32{1, 0}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestIndex_Upsert_ReplacesSameSegment(t *testing.T) {
	index := NewIndex()
	ctx := context.Background()

	require.NoError(t, index.EnsureCollection(ctx, "book-1", 3))
	require.NoError(t, index.Upsert(ctx, "book-1", []driven.VectorPoint{
		{SegmentID: "seg-0", Vector: []float32{1, 0, 0}, Payload: driven.VectorPayload{Text: "old"}},
	}))
	require.NoError(t, index.Upsert(ctx, "book-1", []driven.VectorPoint{
		{SegmentID: "seg-0", Vector: []float32{1, 0, 0}, Payload: driven.VectorPayload{Text: "new"}},
	}))

	hits, err := index.Search(ctx, "book-1", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Payload.Text)
}

func TestIndex_Search_RanksByCosineSimilarity(t *testing.T) {
	index := NewIndex()
	ctx := context.Background()

	require.NoError(t, index.EnsureCollection(ctx, "book-1", 3))
	require.NoError(t, index.Upsert(ctx, "book-1", []driven.VectorPoint{
		{SegmentID: "exact", Vector: []float32{1, 0, 0}},
		{SegmentID: "close", Vector: []float32{1, 1, 0}},
		{SegmentID: "orthogonal", Vector: []float32{0, 0, 1}},
	}))

	hits, err := index.Search(ctx, "book-1", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "exact", hits[0].SegmentID)
	assert.Equal(t, "close", hits[1].SegmentID)
	assert.Equal(t, "orthogonal", hits[2].SegmentID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-9)
}

func TestIndex_Search_ScaleInvariant(t *testing.T) {
	index := NewIndex()
	ctx := context.Background()

	// Cosine similarity ignores magnitude.
	require.NoError(t, index.EnsureCollection(ctx, "book-1", 2))
	require.NoError(t, index.Upsert(ctx, "book-1", []driven.VectorPoint{
		{SegmentID: "seg-0", Vector: []float32{10, 0}},
	}))

	hits, err := index.Search(ctx, "book-1", []float32{0.1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestIndex_Search_LimitsToK(t *testing.T) {
	index := NewIndex()
	ctx := context.Background()

	require.NoError(t, index.EnsureCollection(ctx, "book-1", 2))
	points := make([]driven.VectorPoint, 10)
	for i := range points {
		points[i] = driven.VectorPoint{
			SegmentID: fmt.Sprintf("seg-%d", i),
			Vector:    []float32{1, float32(i)},
		}
	}
	require.NoError(t, index.Upsert(ctx, "book-1", points))

	hits, err := index.Search(ctx, "book-1", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestIndex_Search_MissingCollection(t *testing.T) {
	index := NewIndex()

	hits, err := index.Search(context.Background(), "missing", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_DropCollection(t *testing.T) {
	index := NewIndex()
	ctx := context.Background()

	require.NoError(t, index.EnsureCollection(ctx, "book-1", 2))
	require.NoError(t, index.Upsert(ctx, "book-1", []driven.VectorPoint{
		{SegmentID: "seg-0", Vector: []float32{1, 0}},
	}))

	require.NoError(t, index.DropCollection(ctx, "book-1"))

	hits, err := index.Search(ctx, "book-1", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Recreating after a drop starts empty, with fresh dimensions.
	require.NoError(t, index.EnsureCollection(ctx, "book-1", 4))
}

func TestIndex_DropCollection_Missing(t *testing.T) {
	index := NewIndex()

	assert.NoError(t, index.DropCollection(context.Background(), "missing"))
}

func TestIndex_Concurrency_UpsertAndSearch(t *testing.T) {
	index := NewIndex()
	ctx := context.Background()

	require.NoError(t, index.EnsureCollection(ctx, "book-1", 2))

	var wg sync.WaitGroup
	numGoroutines := 50

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			_ = index.Upsert(ctx, "book-1", []driven.VectorPoint{
				{SegmentID: fmt.Sprintf("seg-%d", id), Vector: []float32{1, float32(id)}},
			})
		}(i)
	}
	wg.Wait()

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			_, _ = index.Search(ctx, "book-1", []float32{1, 0}, 5)
		}()
	}
	wg.Wait()

	hits, err := index.Search(ctx, "book-1", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, hits, numGoroutines)
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, cosineSimilarity([]float32{1, 1}, []float32{0, 0}))
	assert.Zero(t, cosineSimilarity(nil, nil))
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
}

func TestCosineSimilarity_OppositeVectors(t *testing.T) {
	score := cosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	assert.InDelta(t, -1.0, score, 1e-9)
}
