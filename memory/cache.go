package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// EmbeddingCache memoizes computed embeddings by content hash. It is
// process-local, bounded, and rebuildable from the store's persisted
// embeddings at any time, so eviction never loses data. Construct one per
// store; it is not a package-level singleton.
type EmbeddingCache struct {
	cache *ristretto.Cache
}

// NewEmbeddingCache creates a cache admitting up to maxEntries embeddings.
func NewEmbeddingCache(maxEntries int64) (*EmbeddingCache, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxEntries)
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &EmbeddingCache{cache: c}, nil
}

func contentKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached embedding for content, if present.
func (c *EmbeddingCache) Get(content string) ([]float32, bool) {
	v, ok := c.cache.Get(contentKey(content))
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

// Put stores an embedding for content. Admission waits for the cache's write
// buffer so a subsequent Get observes the entry.
func (c *EmbeddingCache) Put(content string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	c.cache.Set(contentKey(content), vec, 1)
	c.cache.Wait()
}

// Close releases the cache's internal goroutines.
func (c *EmbeddingCache) Close() { c.cache.Close() }
