package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// MockEmbedder generates deterministic embeddings from text hashes. It is
// used in tests and as an offline fallback provider. Texts sharing words
// produce correlated vectors, so similarity ordering is meaningful enough
// to exercise the retrieval path.
type MockEmbedder struct {
	dimensions int
}

// NewMock creates a mock embedder with the given vector size.
func NewMock(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed builds a unit vector as the normalized sum of per-word hash
// vectors. Deterministic: the same text always embeds identically.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dimensions)

	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		words = []string{""}
	}
	for _, w := range words {
		h := fnv.New64a()
		h.Write([]byte(w))
		seed := h.Sum64()

		for i := 0; i < m.dimensions; i++ {
			// Linear congruential generator keyed by the word hash.
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}

	return Normalize(vec), nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}
