package domain

import "context"

// ItemSource loads the two catalogs being reconciled. A load failure is
// fatal to the pipeline run.
type ItemSource interface {
	LoadPrimaryItems(ctx context.Context) ([]ItemRecord, error)
	LoadCompetitorItems(ctx context.Context) ([]ItemRecord, error)
}

// EmbeddingClient turns text into a fixed-length vector. It is the only
// non-deterministic external dependency of the engine; the pipeline must
// degrade gracefully when every call fails.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ComputeFunc produces a vector for a text; invoked by the cache on a miss.
type ComputeFunc func(ctx context.Context, text string) ([]float64, error)

// VectorCache is a durable key→vector store. GetOrCompute returns the
// cached vector for key, or invokes compute, persists the result, and
// returns it. Concurrent calls for the same key compute at most once.
type VectorCache interface {
	GetOrCompute(ctx context.Context, key string, text string, compute ComputeFunc) ([]float64, error)
	Stats() CacheStats
}

// CacheStats reports cache effectiveness for a run.
type CacheStats struct {
	Hits   int
	Misses int
}

// HitRate returns the fraction of lookups served from the store.
func (s CacheStats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// ResultSink receives the final ordered results of a run for downstream
// persistence or serialization.
type ResultSink interface {
	Write(ctx context.Context, results []MatchResult, stats *RunStats) error
}
