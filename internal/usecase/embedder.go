package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math"

	"github.com/catalogmatch/backend/internal/domain"
)

// Embedder wraps the external embedding capability with the vector cache.
// It normalizes vectors before they are cached and degrades failures to an
// empty vector instead of surfacing them, so one bad call never aborts a
// run.
type Embedder struct {
	client domain.EmbeddingClient
	cache  domain.VectorCache
}

// NewEmbedder creates an embedder over the given client and cache.
func NewEmbedder(client domain.EmbeddingClient, cache domain.VectorCache) *Embedder {
	return &Embedder{client: client, cache: cache}
}

// EmbedField returns the embedding vector for one enriched field text, or
// nil when the text is empty or the capability failed. A nil result means
// "no signal" and scores 0 downstream.
func (e *Embedder) EmbedField(ctx context.Context, role domain.CatalogRole, field, text string) []float64 {
	if text == "" {
		return nil
	}

	key := CacheKey(role, field, text)
	vec, err := e.cache.GetOrCompute(ctx, key, text, func(ctx context.Context, text string) ([]float64, error) {
		v, err := e.client.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return normalize(v), nil
	})
	if err != nil {
		log.Printf("[EMBED] degraded %s/%s: %v", role, field, err)
		return nil
	}
	return vec
}

// CacheKey derives the durable cache key for an enriched field text. The
// key hashes the text itself, not the item identifier, so a change to an
// enrichment template makes old cache entries unreachable instead of
// serving stale vectors.
func CacheKey(role domain.CatalogRole, field, enrichedText string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", role, field, enrichedText)))
	return hex.EncodeToString(sum[:])
}

// normalize scales a vector to unit length. Zero vectors pass through.
func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
