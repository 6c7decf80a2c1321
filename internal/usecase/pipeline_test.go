package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/catalogmatch/backend/internal/domain"
)

// fakeSource serves fixed item slices, or fails.
type fakeSource struct {
	primary    []domain.ItemRecord
	competitor []domain.ItemRecord
	err        error
}

func (s *fakeSource) LoadPrimaryItems(ctx context.Context) ([]domain.ItemRecord, error) {
	return s.primary, s.err
}

func (s *fakeSource) LoadCompetitorItems(ctx context.Context) ([]domain.ItemRecord, error) {
	return s.competitor, s.err
}

// fakeEmbedClient returns fixture vectors keyed by the enriched text.
// Unknown texts fail, as does everything when failAll is set.
type fakeEmbedClient struct {
	mu      sync.Mutex
	vectors map[string][]float64
	calls   []string
	failAll bool
}

func (c *fakeEmbedClient) Embed(ctx context.Context, text string) ([]float64, error) {
	c.mu.Lock()
	c.calls = append(c.calls, text)
	c.mu.Unlock()

	if c.failAll {
		return nil, domain.ErrEmbeddingFailed
	}
	vec, ok := c.vectors[text]
	if !ok {
		return nil, domain.ErrEmbeddingFailed
	}
	return vec, nil
}

// fakeCache is an in-memory VectorCache with the same compute-once,
// never-cache-failures semantics as the durable one.
type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]float64
	hits   int
	misses int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]float64)}
}

func (c *fakeCache) GetOrCompute(ctx context.Context, key, text string, compute domain.ComputeFunc) ([]float64, error) {
	c.mu.Lock()
	if vec, ok := c.data[key]; ok {
		c.hits++
		c.mu.Unlock()
		return vec, nil
	}
	c.misses++
	c.mu.Unlock()

	vec, err := compute(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.data[key] = vec
	c.mu.Unlock()
	return vec, nil
}

func (c *fakeCache) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CacheStats{Hits: c.hits, Misses: c.misses}
}

// fakeSink records what it was handed.
type fakeSink struct {
	results []domain.MatchResult
	stats   *domain.RunStats
	calls   int
}

func (s *fakeSink) Write(ctx context.Context, results []domain.MatchResult, stats *domain.RunStats) error {
	s.results = results
	s.stats = stats
	s.calls++
	return nil
}

// twoFieldConfig scores name 0.8 and description 0.2 with no templates, so
// fixture vectors can be keyed by raw field text.
func twoFieldConfig(threshold float64) PipelineConfig {
	return PipelineConfig{
		Fields: map[string]FieldSpec{
			domain.FieldName:        {Weight: 0.8},
			domain.FieldDescription: {Weight: 0.2},
		},
		Threshold: threshold,
		Workers:   2,
	}
}

func item(id, name, description string) domain.ItemRecord {
	return domain.ItemRecord{
		ID: id,
		Fields: map[string]string{
			domain.FieldName:        name,
			domain.FieldDescription: description,
		},
	}
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()

	t.Run("matches similar items above threshold and ranks them", func(t *testing.T) {
		source := &fakeSource{
			primary: []domain.ItemRecord{item("1", "Red Wine 750ml", "")},
			competitor: []domain.ItemRecord{
				item("10", "Red Wine 75cl", "French red wine"),
				item("11", "Orange Juice 1L", ""),
			},
		}
		client := &fakeEmbedClient{vectors: map[string][]float64{
			"Red Wine 750ml":  {1, 0, 0},
			"Red Wine 75cl":   {0.98, 0.199, 0},
			"Orange Juice 1L": {0, 0, 1},
			"French red wine": {0.5, 0.5, 0.5},
		}}
		sink := &fakeSink{}

		p, err := NewMatchingPipeline(source, client, newFakeCache(), sink, twoFieldConfig(0.75))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		results, stats, err := p.Run(ctx)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if len(results) != 1 {
			t.Fatalf("len(results) = %d, want 1", len(results))
		}
		res := results[0]
		if res.PrimaryID != "1" {
			t.Errorf("PrimaryID = %s, want 1", res.PrimaryID)
		}
		if len(res.Candidates) != 1 {
			t.Fatalf("len(Candidates) = %d, want 1 (orange juice must be excluded)", len(res.Candidates))
		}

		best := res.Candidates[0]
		if best.CompetitorID != "10" {
			t.Errorf("CompetitorID = %s, want 10", best.CompetitorID)
		}
		// name cosine ~0.98 × 0.8, description absent on the primary side.
		if best.FinalScore < 0.75 {
			t.Errorf("FinalScore = %v, want >= 0.75", best.FinalScore)
		}
		if math.Abs(best.FinalScore-0.784) > 0.01 {
			t.Errorf("FinalScore = %v, want ~0.784", best.FinalScore)
		}
		if best.FieldScores[domain.FieldDescription] != 0 {
			t.Errorf("description score = %v, want 0 (primary has no description)", best.FieldScores[domain.FieldDescription])
		}

		if stats.PrimaryItems != 1 || stats.CompetitorItems != 2 {
			t.Errorf("stats counts = %d/%d, want 1/2", stats.PrimaryItems, stats.CompetitorItems)
		}
		if stats.MatchedPrimary != 1 || stats.Candidates != 1 {
			t.Errorf("stats matches = %d/%d, want 1/1", stats.MatchedPrimary, stats.Candidates)
		}
		if sink.calls != 1 {
			t.Errorf("sink calls = %d, want 1", sink.calls)
		}
	})

	t.Run("no candidate below threshold appears in output", func(t *testing.T) {
		source := &fakeSource{
			primary:    []domain.ItemRecord{item("1", "Red Wine 750ml", "")},
			competitor: []domain.ItemRecord{item("11", "Orange Juice 1L", "")},
		}
		client := &fakeEmbedClient{vectors: map[string][]float64{
			"Red Wine 750ml":  {1, 0, 0},
			"Orange Juice 1L": {0, 0, 1},
		}}

		p, err := NewMatchingPipeline(source, client, newFakeCache(), nil, twoFieldConfig(0.75))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		results, _, err := p.Run(ctx)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(results) != 0 {
			t.Errorf("len(results) = %d, want 0 (primary with no survivors is omitted)", len(results))
		}
	})

	t.Run("missing competitor description contributes exactly zero", func(t *testing.T) {
		source := &fakeSource{
			primary:    []domain.ItemRecord{item("1", "Red Wine 750ml", "A fine red wine")},
			competitor: []domain.ItemRecord{item("10", "Red Wine 750ml", "")},
		}
		client := &fakeEmbedClient{vectors: map[string][]float64{
			"Red Wine 750ml":  {1, 0, 0},
			"A fine red wine": {0.5, 0.5, 0.5},
		}}

		p, err := NewMatchingPipeline(source, client, newFakeCache(), nil, twoFieldConfig(0.5))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		results, _, err := p.Run(ctx)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(results) != 1 || len(results[0].Candidates) != 1 {
			t.Fatalf("want exactly one candidate, got %+v", results)
		}

		best := results[0].Candidates[0]
		if best.FieldScores[domain.FieldDescription] != 0 {
			t.Errorf("description score = %v, want exactly 0", best.FieldScores[domain.FieldDescription])
		}
		if math.Abs(best.FinalScore-0.8) > floatTolerance {
			t.Errorf("FinalScore = %v, want 0.8 (name only)", best.FinalScore)
		}
	})

	t.Run("total embedding failure degrades every field and yields no matches", func(t *testing.T) {
		source := &fakeSource{
			primary:    []domain.ItemRecord{item("1", "Red Wine 750ml", "A fine red wine")},
			competitor: []domain.ItemRecord{item("10", "Red Wine 75cl", "French red wine")},
		}
		client := &fakeEmbedClient{failAll: true}

		p, err := NewMatchingPipeline(source, client, newFakeCache(), nil, twoFieldConfig(0.75))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		results, stats, err := p.Run(ctx)
		if err != nil {
			t.Fatalf("Run() error = %v (embedding failures must never abort the run)", err)
		}
		if len(results) != 0 {
			t.Errorf("len(results) = %d, want 0", len(results))
		}
		if stats.DegradedFields != 4 {
			t.Errorf("DegradedFields = %d, want 4", stats.DegradedFields)
		}
	})

	t.Run("records without id are skipped and counted", func(t *testing.T) {
		source := &fakeSource{
			primary: []domain.ItemRecord{
				item("", "No ID Item", ""),
				item("1", "Red Wine 750ml", ""),
			},
			competitor: []domain.ItemRecord{item("10", "Red Wine 750ml", "")},
		}
		client := &fakeEmbedClient{vectors: map[string][]float64{
			"Red Wine 750ml": {1, 0, 0},
		}}

		p, err := NewMatchingPipeline(source, client, newFakeCache(), nil, twoFieldConfig(0.75))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		results, stats, err := p.Run(ctx)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.SkippedRecords != 1 {
			t.Errorf("SkippedRecords = %d, want 1", stats.SkippedRecords)
		}
		if stats.PrimaryItems != 1 {
			t.Errorf("PrimaryItems = %d, want 1", stats.PrimaryItems)
		}
		if len(results) != 1 {
			t.Errorf("len(results) = %d, want 1", len(results))
		}
	})

	t.Run("source failure is fatal", func(t *testing.T) {
		wantErr := errors.New("database gone")
		source := &fakeSource{err: wantErr}
		client := &fakeEmbedClient{}

		p, err := NewMatchingPipeline(source, client, newFakeCache(), nil, twoFieldConfig(0.75))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, _, err = p.Run(ctx)
		if !errors.Is(err, wantErr) {
			t.Errorf("Run() error = %v, want wrapped %v", err, wantErr)
		}
	})

	t.Run("blank fields never reach the embedding client", func(t *testing.T) {
		source := &fakeSource{
			primary:    []domain.ItemRecord{item("1", "Red Wine 750ml", "")},
			competitor: []domain.ItemRecord{item("10", "Red Wine 750ml", "   ")},
		}
		client := &fakeEmbedClient{vectors: map[string][]float64{
			"Red Wine 750ml": {1, 0, 0},
		}}

		p, err := NewMatchingPipeline(source, client, newFakeCache(), nil, twoFieldConfig(0.75))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, _, err := p.Run(ctx); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		for _, call := range client.calls {
			if call == "" || call == "   " {
				t.Errorf("embedding client called with blank text %q", call)
			}
		}
	})

	t.Run("identical texts are embedded once through the cache", func(t *testing.T) {
		// Both sides share the same name, so the cache key collides and
		// the second lookup is a hit.
		source := &fakeSource{
			primary:    []domain.ItemRecord{item("1", "Red Wine 750ml", "")},
			competitor: []domain.ItemRecord{item("10", "Red Wine 750ml", "")},
		}
		client := &fakeEmbedClient{vectors: map[string][]float64{
			"Red Wine 750ml": {1, 0, 0},
		}}
		cache := newFakeCache()

		p, err := NewMatchingPipeline(source, client, cache, nil, twoFieldConfig(0.75))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, stats, err := p.Run(ctx)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		// Keys include the catalog role, so primary and competitor name
		// embeddings stay separate even for identical text.
		if stats.CacheMisses != 2 {
			t.Errorf("CacheMisses = %d, want 2", stats.CacheMisses)
		}
		if len(client.calls) != 2 {
			t.Errorf("client calls = %d, want 2", len(client.calls))
		}
	})
}

func TestNewMatchingPipeline(t *testing.T) {
	t.Run("rejects invalid field table", func(t *testing.T) {
		cfg := PipelineConfig{
			Fields: map[string]FieldSpec{
				domain.FieldName: {Weight: -1},
			},
		}
		_, err := NewMatchingPipeline(&fakeSource{}, &fakeEmbedClient{}, newFakeCache(), nil, cfg)
		if !errors.Is(err, domain.ErrInvalidConfig) {
			t.Errorf("error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("empty config falls back to defaults", func(t *testing.T) {
		p, err := NewMatchingPipeline(&fakeSource{}, &fakeEmbedClient{}, newFakeCache(), nil, PipelineConfig{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.ranker.Threshold() != DefaultThreshold {
			t.Errorf("threshold = %v, want %v", p.ranker.Threshold(), DefaultThreshold)
		}
		if p.workers != 4 {
			t.Errorf("workers = %d, want 4", p.workers)
		}
	})
}

func TestEmbedderNormalization(t *testing.T) {
	client := &fakeEmbedClient{vectors: map[string][]float64{
		"Red Wine": {3, 4, 0},
	}}
	embedder := NewEmbedder(client, newFakeCache())

	vec := embedder.EmbedField(context.Background(), domain.RolePrimary, domain.FieldName, "Red Wine")
	if len(vec) != 3 {
		t.Fatalf("len(vec) = %d, want 3", len(vec))
	}

	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	if math.Abs(norm-1.0) > floatTolerance {
		t.Errorf("squared norm = %v, want 1.0", norm)
	}
}
