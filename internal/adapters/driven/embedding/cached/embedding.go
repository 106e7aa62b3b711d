// Package cached wraps an embedding service with a content-addressed
// cache. Identical text embeds once; reprocessing a book or asking a
// repeated question costs no provider calls.
package cached

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// Ensure Embedder implements the interface.
var _ driven.EmbeddingService = (*Embedder)(nil)

// DefaultCapacity bounds the cache. A few thousand entries covers the
// chunks of a large book plus recent queries.
const DefaultCapacity = 4096

// Embedder decorates an embedding service with an LRU cache keyed by
// model and text content.
type Embedder struct {
	inner    driven.EmbeddingService
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type entry struct {
	key    string
	vector []float32
}

// New wraps inner with a cache of the given capacity. A capacity of 0
// takes DefaultCapacity.
func New(inner driven.EmbeddingService, capacity int) *Embedder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Embedder{
		inner:    inner,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Embed returns the cached vector for the text or asks the inner
// service and caches the result.
func (c *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vector, ok := c.get(key); ok {
		return vector, nil
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(key, vector)
	return vector, nil
}

// EmbedBatch serves cache hits locally and sends only the misses to
// the inner service, preserving input order in the result.
func (c *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vector, ok := c.get(c.key(text)); ok {
			result[i] = vector
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return result, nil
	}

	vectors, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		result[i] = vectors[j]
		c.put(c.key(texts[i]), vectors[j])
	}
	return result, nil
}

// Dimensions returns the inner service's vector size.
func (c *Embedder) Dimensions() int { return c.inner.Dimensions() }

// ModelName returns the inner service's model name.
func (c *Embedder) ModelName() string { return c.inner.ModelName() }

// Ping delegates to the inner service.
func (c *Embedder) Ping(ctx context.Context) error { return c.inner.Ping(ctx) }

// Close releases the inner service.
func (c *Embedder) Close() error { return c.inner.Close() }

// key derives the cache key from model name and text content. Cached
// vectors from one model never answer for another.
func (c *Embedder) key(text string) string {
	h := sha256.New()
	h.Write([]byte(c.inner.ModelName()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Embedder) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).vector, true
}

func (c *Embedder) put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*entry).vector = vector
		return
	}
	c.entries[key] = c.order.PushFront(&entry{key: key, vector: vector})
	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

// Len reports the number of cached vectors.
func (c *Embedder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
