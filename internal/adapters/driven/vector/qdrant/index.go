// Package qdrant provides a vector index adapter using the Qdrant
// REST API. Each book maps to one collection with cosine distance.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultBaseURL          = "http://localhost:6333"
	DefaultTimeout          = 30 * time.Second
	DefaultCollectionPrefix = "book_"
)

// Config holds configuration for the Qdrant index.
type Config struct {
	// BaseURL is the Qdrant REST endpoint (default: http://localhost:6333).
	BaseURL string

	// APIKey authenticates requests. Empty for unsecured instances.
	APIKey string

	// CollectionPrefix namespaces this deployment's collections
	// (default: book_).
	CollectionPrefix string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration
}

// Index stores and searches embeddings in Qdrant.
type Index struct {
	client  *http.Client
	baseURL string
	apiKey  string
	prefix  string
}

// createCollectionRequest is the PUT /collections/{name} request format.
type createCollectionRequest struct {
	Vectors vectorParams `json:"vectors"`
}

// vectorParams declares the collection's vector shape.
type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

// upsertRequest is the PUT /collections/{name}/points request format.
type upsertRequest struct {
	Points []point `json:"points"`
}

// point is the Qdrant point format. IDs are segment UUIDs.
type point struct {
	ID      string               `json:"id"`
	Vector  []float32            `json:"vector"`
	Payload driven.VectorPayload `json:"payload"`
}

// searchRequest is the POST /collections/{name}/points/search request format.
type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

// searchResponse is the points/search response format. Point IDs come
// back as strings because we only ever write UUID IDs.
type searchResponse struct {
	Result []struct {
		ID      string               `json:"id"`
		Score   float64              `json:"score"`
		Payload driven.VectorPayload `json:"payload"`
	} `json:"result"`
}

// errorResponse is Qdrant's error envelope.
type errorResponse struct {
	Status struct {
		Error string `json:"error"`
	} `json:"status"`
}

// NewIndex creates a new Qdrant-backed vector index.
func NewIndex(cfg Config) *Index {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = DefaultCollectionPrefix
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Index{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		prefix:  cfg.CollectionPrefix,
	}
}

// EnsureCollection creates the book's collection if it does not exist.
// Qdrant answers 409 when the collection is already there, which we
// treat as success.
func (x *Index) EnsureCollection(ctx context.Context, bookID string, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("qdrant: invalid dimensions %d", dimensions)
	}

	reqBody := createCollectionRequest{
		Vectors: vectorParams{
			Size:     dimensions,
			Distance: "Cosine",
		},
	}

	status, body, err := x.doJSON(ctx, http.MethodPut, "/collections/"+x.collection(bookID), reqBody)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	if status != http.StatusOK && status != http.StatusConflict {
		return fmt.Errorf("qdrant error (status %d): %s", status, qdrantErrorText(body))
	}
	return nil
}

// Upsert inserts or replaces points in the book's collection.
func (x *Index) Upsert(ctx context.Context, bookID string, points []driven.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	reqBody := upsertRequest{
		Points: make([]point, len(points)),
	}
	for i, p := range points {
		reqBody.Points[i] = point{
			ID:      p.SegmentID,
			Vector:  p.Vector,
			Payload: p.Payload,
		}
	}

	path := "/collections/" + x.collection(bookID) + "/points?wait=true"
	status, body, err := x.doJSON(ctx, http.MethodPut, path, reqBody)
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant error (status %d): %s", status, qdrantErrorText(body))
	}
	return nil
}

// Search finds the k nearest neighbours in the book's collection.
// A missing collection yields an empty result, not an error.
func (x *Index) Search(ctx context.Context, bookID string, query []float32, k int) ([]driven.VectorHit, error) {
	reqBody := searchRequest{
		Vector:      query,
		Limit:       k,
		WithPayload: true,
	}

	path := "/collections/" + x.collection(bookID) + "/points/search"
	status, body, err := x.doJSON(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qdrant error (status %d): %s", status, qdrantErrorText(body))
	}

	var searchResp searchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]driven.VectorHit, len(searchResp.Result))
	for i, r := range searchResp.Result {
		hits[i] = driven.VectorHit{
			SegmentID: r.ID,
			Score:     r.Score,
			Payload:   r.Payload,
		}
	}
	return hits, nil
}

// DropCollection removes the book's collection and all points.
// Dropping a missing collection is not an error.
func (x *Index) DropCollection(ctx context.Context, bookID string) error {
	status, body, err := x.doJSON(ctx, http.MethodDelete, "/collections/"+x.collection(bookID), nil)
	if err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return fmt.Errorf("qdrant error (status %d): %s", status, qdrantErrorText(body))
	}
	return nil
}

// Close releases resources.
func (x *Index) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// collection maps a book ID to its collection name.
func (x *Index) collection(bookID string) string {
	return x.prefix + bookID
}

// doJSON sends one request and returns the status code and raw body.
func (x *Index) doJSON(ctx context.Context, method, path string, reqBody any) (int, []byte, error) {
	var bodyReader io.Reader = http.NoBody
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// qdrantErrorText extracts the error message from Qdrant's envelope,
// falling back to the raw body.
func qdrantErrorText(body []byte) string {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Status.Error != "" {
		return errResp.Status.Error
	}
	return string(body)
}
