// Package classify assigns a taxonomy category to new memory content.
// Two tiers: exact keyword containment in registration order, then
// cosine similarity against cached category-description embeddings.
package classify

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/store"
)

// SemanticThreshold is the minimum cosine similarity between content and
// a category description for the semantic tier to claim a match.
const SemanticThreshold = 0.5

// Classifier resolves content to a category id. Safe for concurrent use;
// the description-embedding cache is rebuilt lazily after Invalidate.
type Classifier struct {
	categories *store.CategoryStore
	embedder   embedding.Embedder // nil disables the semantic tier
	logger     *slog.Logger

	mu         sync.RWMutex
	descVecs   map[string][]float32 // category id -> description embedding
	cacheValid bool
}

func New(categories *store.CategoryStore, embedder embedding.Embedder, logger *slog.Logger) *Classifier {
	return &Classifier{
		categories: categories,
		embedder:   embedder,
		logger:     logger,
		descVecs:   make(map[string][]float32),
	}
}

// Classify returns the category id for text. The keyword tier wins first;
// the semantic tier runs only when requested and an embedder is present;
// everything else falls through to the default category. Classification
// never fails: embedding errors degrade silently to the default.
func (c *Classifier) Classify(ctx context.Context, text string, useSemantic bool) string {
	cats, err := c.categories.List()
	if err != nil {
		c.logger.Warn("list categories for classification", "error", err)
		return models.DefaultCategoryID
	}

	// Tier 1: case-insensitive keyword containment, first match wins.
	// Position order makes the winner deterministic and documented.
	lower := strings.ToLower(text)
	for _, cat := range cats {
		for _, kw := range cat.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				return cat.ID
			}
		}
	}

	// Tier 2: semantic match against category descriptions.
	if useSemantic && c.embedder != nil {
		if id, ok := c.semanticMatch(ctx, text, cats); ok {
			return id
		}
	}

	return models.DefaultCategoryID
}

// Invalidate discards the cached description embeddings. Call after any
// category description or keyword change.
func (c *Classifier) Invalidate() {
	c.mu.Lock()
	c.cacheValid = false
	c.descVecs = make(map[string][]float32)
	c.mu.Unlock()
}

func (c *Classifier) semanticMatch(ctx context.Context, text string, cats []models.Category) (string, bool) {
	queryVec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		c.logger.Warn("embed content for classification", "error", err)
		return "", false
	}

	vecs, err := c.descriptionVectors(ctx, cats)
	if err != nil {
		c.logger.Warn("embed category descriptions", "error", err)
		return "", false
	}

	bestID := ""
	bestSim := 0.0
	for _, cat := range cats {
		vec, ok := vecs[cat.ID]
		if !ok {
			continue
		}
		if sim := embedding.CosineSimilarity(queryVec, vec); sim > bestSim {
			bestSim = sim
			bestID = cat.ID
		}
	}

	if bestID != "" && bestSim > SemanticThreshold {
		return bestID, true
	}
	return "", false
}

// descriptionVectors returns the cached description embeddings, building
// the cache on first use after an invalidation.
func (c *Classifier) descriptionVectors(ctx context.Context, cats []models.Category) (map[string][]float32, error) {
	c.mu.RLock()
	if c.cacheValid {
		vecs := c.descVecs
		c.mu.RUnlock()
		return vecs, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cacheValid {
		return c.descVecs, nil
	}

	vecs := make(map[string][]float32, len(cats))
	for _, cat := range cats {
		if cat.Description == "" {
			continue
		}
		vec, err := c.embedder.Embed(ctx, cat.Description)
		if err != nil {
			return nil, err
		}
		vecs[cat.ID] = vec
	}
	c.descVecs = vecs
	c.cacheValid = true
	return vecs, nil
}
