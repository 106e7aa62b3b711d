package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// Retrieval defaults.
const (
	// DefaultTopK is how many segments a query retrieves.
	DefaultTopK = 5

	// DefaultMinScore drops hits below this cosine similarity. Weak
	// matches are worse than none: the dialogue policy answers "not
	// found" rather than grounding on noise.
	DefaultMinScore = 0.35
)

// RetrieverConfig tunes retrieval behaviour. Zero values take the
// defaults above.
type RetrieverConfig struct {
	// TopK is the number of nearest segments to request.
	TopK int

	// MinScore is the similarity floor for usable context.
	MinScore float64
}

// Retriever finds the book segments most relevant to a query.
// It embeds the query and searches the book's vector collection,
// returning results verbatim in similarity order; no re-ranking.
type Retriever struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	topK     int
	minScore float64
}

// NewRetriever creates a retriever over the embedding service and
// vector index.
func NewRetriever(embedder driven.EmbeddingService, index driven.VectorIndex, cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}

	return &Retriever{
		embedder: embedder,
		index:    index,
		topK:     cfg.TopK,
		minScore: cfg.MinScore,
	}
}

// Retrieve returns the top segments for the query with similarity
// scores attached. An empty result is normal, not an error: the book
// may have no collection yet, or nothing may clear the relevance
// floor. Callers handle empty context explicitly.
func (r *Retriever) Retrieve(ctx context.Context, bookID, query string) ([]domain.RetrievedSegment, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.index.Search(ctx, bookID, vector, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search collection: %w", err)
	}

	segments := make([]domain.RetrievedSegment, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < r.minScore {
			continue
		}
		segments = append(segments, domain.RetrievedSegment{
			Segment: domain.Segment{
				ID:      hit.SegmentID,
				BookID:  bookID,
				Index:   hit.Payload.Index,
				Text:    hit.Payload.Text,
				Page:    hit.Payload.Page,
				Chapter: hit.Payload.Chapter,
			},
			Score: hit.Score,
		})
	}

	logger.Debug("retrieved context", "book", bookID, "hits", len(hits), "kept", len(segments))
	return segments, nil
}
