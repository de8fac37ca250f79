package embedding

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Embedder converts text to a fixed-length vector. Implementations must be
// safe for concurrent use. A nil Embedder anywhere in the system means the
// provider is unavailable and every dependent component degrades to its
// keyword-only behavior.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched or zero-length inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

// Normalize converts a vector to unit length in place-safe fashion.
func Normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}
	return normalized
}

// LazyEmbedder defers a slow constructor (model load, runtime init) until
// the first Embed call. Initialization runs exactly once process-wide; a
// caller racing the first load waits on the ready channel, bounded by its
// context and by InitTimeout.
type LazyEmbedder struct {
	construct   func() (Embedder, error)
	dimensions  int
	initTimeout time.Duration

	start chan struct{} // closed (once) to kick off construction
	ready chan struct{} // closed when construction finished
	emb   Embedder
	err   error
}

// NewLazy wraps a constructor. dimensions must be known up front so the
// vector index can size itself before the model is loaded.
func NewLazy(dimensions int, initTimeout time.Duration, construct func() (Embedder, error)) *LazyEmbedder {
	l := &LazyEmbedder{
		construct:   construct,
		dimensions:  dimensions,
		initTimeout: initTimeout,
		start:       make(chan struct{}, 1),
		ready:       make(chan struct{}),
	}
	l.start <- struct{}{}
	return l
}

// Embed triggers construction on first use and forwards to the wrapped
// embedder afterwards.
func (l *LazyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-l.start:
		go func() {
			l.emb, l.err = l.construct()
			close(l.ready)
		}()
	default:
	}

	timeout := l.initTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-l.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("embedder initialization timed out after %s", timeout)
	}

	if l.err != nil {
		return nil, fmt.Errorf("embedder initialization: %w", l.err)
	}
	return l.emb.Embed(ctx, text)
}

// Dimensions returns the configured vector size.
func (l *LazyEmbedder) Dimensions() int {
	return l.dimensions
}
