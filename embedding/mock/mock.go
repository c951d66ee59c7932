// Package mock provides a deterministic EmbeddingClient for tests and
// examples. Embeddings are derived from a hash of the text, so identical
// inputs always produce identical vectors without any provider running.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
)

// Embedder generates deterministic unit vectors from a text hash. It can be
// switched into a failing mode to exercise graceful-degradation paths.
type Embedder struct {
	dimensions int
	calls      atomic.Int64

	mu   sync.Mutex
	fail bool
}

// New creates an Embedder with the given vector size (default 64).
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &Embedder{dimensions: dimensions}
}

// Embed implements core.EmbeddingClient deterministically.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	e.mu.Lock()
	fail := e.fail
	e.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("embedder unavailable")
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Calls returns how many Embed invocations have been made.
func (e *Embedder) Calls() int64 { return e.calls.Load() }

// SetFailing toggles failure mode; while set every Embed returns an error.
func (e *Embedder) SetFailing(fail bool) {
	e.mu.Lock()
	e.fail = fail
	e.mu.Unlock()
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
