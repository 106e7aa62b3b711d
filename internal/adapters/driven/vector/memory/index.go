// Package memory provides an in-memory vector index with exact cosine
// search, used in tests and for ephemeral single-process runs.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Index is an in-memory implementation of driven.VectorIndex. Search is
// a full scan with exact cosine similarity, fine for the collection
// sizes a single book produces.
type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	dimensions int
	points     map[string]driven.VectorPoint
}

// NewIndex creates a new in-memory vector index.
func NewIndex() *Index {
	return &Index{collections: make(map[string]*collection)}
}

// EnsureCollection creates the collection if it does not exist.
func (x *Index) EnsureCollection(_ context.Context, bookID string, dimensions int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if existing, ok := x.collections[bookID]; ok {
		if existing.dimensions != dimensions {
			return fmt.Errorf("collection %s has %d dimensions, want %d",
				bookID, existing.dimensions, dimensions)
		}
		return nil
	}
	x.collections[bookID] = &collection{
		dimensions: dimensions,
		points:     make(map[string]driven.VectorPoint),
	}
	return nil
}

// Upsert stores points, replacing any with the same segment ID.
func (x *Index) Upsert(_ context.Context, bookID string, points []driven.VectorPoint) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	coll, ok := x.collections[bookID]
	if !ok {
		return fmt.Errorf("collection %s does not exist", bookID)
	}
	for _, p := range points {
		if len(p.Vector) != coll.dimensions {
			return fmt.Errorf("point %s has %d dimensions, collection wants %d",
				p.SegmentID, len(p.Vector), coll.dimensions)
		}
		coll.points[p.SegmentID] = p
	}
	return nil
}

// Search returns the k nearest points by cosine similarity, best first.
// A missing collection yields no hits, not an error.
func (x *Index) Search(_ context.Context, bookID string, query []float32, k int) ([]driven.VectorHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	coll, ok := x.collections[bookID]
	if !ok {
		return nil, nil
	}

	hits := make([]driven.VectorHit, 0, len(coll.points))
	for _, p := range coll.points {
		hits = append(hits, driven.VectorHit{
			SegmentID: p.SegmentID,
			Score:     cosineSimilarity(query, p.Vector),
			Payload:   p.Payload,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DropCollection removes the collection and its points. Dropping a
// missing collection is not an error.
func (x *Index) DropCollection(_ context.Context, bookID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.collections, bookID)
	return nil
}

// Close releases resources. No-op for the in-memory index.
func (x *Index) Close() error { return nil }

// cosineSimilarity computes the cosine of the angle between two
// vectors. Zero vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
