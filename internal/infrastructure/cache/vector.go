package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/catalogmatch/backend/internal/domain"
)

// VectorCache is a thread-safe, file-backed key→vector store. It persists
// across runs so identical (role, field, text) triples are embedded once.
// Failed or empty computations are never cached: the durable store only
// ever holds real embeddings, and a degraded field gets another chance on
// the next run.
type VectorCache struct {
	path     string
	mu       sync.Mutex
	vectors  map[string][]float64
	inflight map[string]chan struct{}
	hits     int
	misses   int
}

// NewVectorCache opens the store at path, loading any existing contents.
// A missing file starts an empty cache; a corrupt file is an error rather
// than a silent reset.
func NewVectorCache(path string) (*VectorCache, error) {
	c := &VectorCache{
		path:     path,
		vectors:  make(map[string][]float64),
		inflight: make(map[string]chan struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading vector cache %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &c.vectors); err != nil {
		return nil, fmt.Errorf("parsing vector cache %s: %w", path, err)
	}

	log.Printf("[CACHE] loaded %d vectors from %s", len(c.vectors), path)
	return c, nil
}

// GetOrCompute returns the cached vector for key, or invokes compute,
// persists the result, and returns it. Concurrent callers on the same key
// wait for the first computation instead of duplicating it; callers on
// distinct keys never block each other on the compute call itself.
func (c *VectorCache) GetOrCompute(ctx context.Context, key string, text string, compute domain.ComputeFunc) ([]float64, error) {
	for {
		c.mu.Lock()
		if vec, ok := c.vectors[key]; ok {
			c.hits++
			c.mu.Unlock()
			return vec, nil
		}
		ch, ok := c.inflight[key]
		if !ok {
			c.inflight[key] = make(chan struct{})
			c.misses++
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		// Another caller is computing this key; wait and re-check.
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	vec, err := compute(ctx, text)

	c.mu.Lock()
	ch := c.inflight[key]
	delete(c.inflight, key)
	defer close(ch)

	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if len(vec) == 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: empty vector for key %s", domain.ErrEmbeddingFailed, key)
	}

	c.vectors[key] = vec
	persistErr := c.persistLocked()
	c.mu.Unlock()

	if persistErr != nil {
		// The cache is an optimization; serve the vector anyway.
		log.Printf("[CACHE] persist failed: %v", persistErr)
	}
	return vec, nil
}

// Stats returns cumulative hit/miss counters for this cache instance.
func (c *VectorCache) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CacheStats{Hits: c.hits, Misses: c.misses}
}

// Size returns the number of stored vectors.
func (c *VectorCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.vectors)
}

// persistLocked writes the store atomically (temp file + rename) so an
// aborted run never leaves a truncated cache behind. Caller holds c.mu.
func (c *VectorCache) persistLocked() error {
	data, err := json.Marshal(c.vectors)
	if err != nil {
		return fmt.Errorf("encoding vector cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".vectorcache-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}
