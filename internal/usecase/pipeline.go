package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/catalogmatch/backend/internal/domain"
)

// PipelineConfig holds configuration for the matching pipeline.
type PipelineConfig struct {
	Fields    map[string]FieldSpec
	Threshold float64
	Workers   int
}

// MatchingPipeline reconciles the primary catalog against competitor
// catalogs: enrich, embed (through the cache), score every
// primary×competitor pair, rank, and hand the results to the sink.
type MatchingPipeline struct {
	source   domain.ItemSource
	cache    domain.VectorCache
	sink     domain.ResultSink
	embedder *Embedder
	enricher *FieldEnricher
	scorer   *SimilarityScorer
	ranker   *MatchRanker
	fields   map[string]FieldSpec
	workers  int
}

// NewMatchingPipeline wires the engine together. Returns an error for an
// invalid field table; other configuration gaps fall back to defaults.
func NewMatchingPipeline(
	source domain.ItemSource,
	client domain.EmbeddingClient,
	cache domain.VectorCache,
	sink domain.ResultSink,
	config PipelineConfig,
) (*MatchingPipeline, error) {
	fields := config.Fields
	if len(fields) == 0 {
		fields = DefaultFields()
	}

	scorer, err := NewSimilarityScorer(fields)
	if err != nil {
		return nil, err
	}

	workers := config.Workers
	if workers <= 0 {
		workers = 4
	}

	return &MatchingPipeline{
		source:   source,
		cache:    cache,
		sink:     sink,
		embedder: NewEmbedder(client, cache),
		enricher: NewFieldEnricher(fields),
		scorer:   scorer,
		ranker:   NewMatchRanker(config.Threshold),
		fields:   fields,
		workers:  workers,
	}, nil
}

// Run executes one full matching pass. Item-source failures are fatal;
// embedding failures degrade the affected fields to zero similarity and
// are tallied in the returned stats.
func (p *MatchingPipeline) Run(ctx context.Context) ([]domain.MatchResult, *domain.RunStats, error) {
	start := time.Now()
	stats := &domain.RunStats{}
	cacheBefore := p.cache.Stats()

	primaries, err := p.source.LoadPrimaryItems(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading primary catalog: %w", err)
	}
	competitors, err := p.source.LoadCompetitorItems(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading competitor catalogs: %w", err)
	}

	primaries = p.dropMalformed(domain.RolePrimary, primaries, stats)
	competitors = p.dropMalformed(domain.RoleCompetitor, competitors, stats)
	stats.PrimaryItems = len(primaries)
	stats.CompetitorItems = len(competitors)

	log.Printf("[PIPELINE] matching %d primary items against %d competitor items", len(primaries), len(competitors))

	primaryBundles, err := p.embedAll(ctx, domain.RolePrimary, primaries, stats)
	if err != nil {
		return nil, nil, err
	}
	competitorBundles, err := p.embedAll(ctx, domain.RoleCompetitor, competitors, stats)
	if err != nil {
		return nil, nil, err
	}

	var results []domain.MatchResult
	for i, pb := range primaryBundles {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		log.Printf("[MATCH] %d/%d: %s", i+1, len(primaryBundles), pb.Item.Field(domain.FieldName))

		candidates := make([]domain.MatchCandidate, 0, len(competitorBundles))
		for _, cb := range competitorBundles {
			fieldScores, final := p.scorer.Score(pb, cb)
			candidates = append(candidates, newCandidate(cb.Item, fieldScores, final))
		}

		ranked := p.ranker.Rank(candidates)
		if len(ranked) == 0 {
			continue
		}
		results = append(results, newResult(pb.Item, ranked))
		stats.Candidates += len(ranked)
	}

	stats.MatchedPrimary = len(results)
	cacheAfter := p.cache.Stats()
	stats.CacheHits = cacheAfter.Hits - cacheBefore.Hits
	stats.CacheMisses = cacheAfter.Misses - cacheBefore.Misses
	stats.Duration = time.Since(start)
	stats.DurationSeconds = stats.Duration.Seconds()

	log.Printf("[PIPELINE] done: %d/%d primary items matched, %d candidates, %d degraded fields, %d skipped records (%.2fs)",
		stats.MatchedPrimary, stats.PrimaryItems, stats.Candidates, stats.DegradedFields, stats.SkippedRecords, stats.DurationSeconds)

	if p.sink != nil {
		if err := p.sink.Write(ctx, results, stats); err != nil {
			return nil, nil, fmt.Errorf("writing results: %w", err)
		}
	}

	return results, stats, nil
}

// dropMalformed filters out records without an identifier. Each skip is
// counted and logged; a bad record never aborts the run.
func (p *MatchingPipeline) dropMalformed(role domain.CatalogRole, items []domain.ItemRecord, stats *domain.RunStats) []domain.ItemRecord {
	kept := items[:0]
	for _, item := range items {
		if item.ID == "" {
			stats.SkippedRecords++
			log.Printf("[PIPELINE] skipping %s record without id (name: %q): %v", role, item.Field(domain.FieldName), domain.ErrMalformedRecord)
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// embedJob is one pending (item, field) embedding.
type embedJob struct {
	itemIdx int
	field   string
	text    string
}

// embedAll produces a FieldVectorBundle for every item, running the
// embedding calls through a bounded worker pool. Every configured field
// ends up in each bundle's vector map; absent or degraded fields map to
// nil.
func (p *MatchingPipeline) embedAll(ctx context.Context, role domain.CatalogRole, items []domain.ItemRecord, stats *domain.RunStats) ([]domain.FieldVectorBundle, error) {
	var jobs []embedJob
	for i, item := range items {
		log.Printf("[EMBED] %s %d/%d: %s", role, i+1, len(items), item.Field(domain.FieldName))
		for field := range p.fields {
			jobs = append(jobs, embedJob{
				itemIdx: i,
				field:   field,
				text:    p.enricher.EnrichedText(role, item, field),
			})
		}
	}

	// Each worker writes only its own slot; the cache handles its own
	// synchronization.
	vectors := make([][]float64, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for j := range jobs {
		j := j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			job := jobs[j]
			if job.text == "" {
				return nil
			}
			vectors[j] = p.embedder.EmbedField(gctx, role, job.field, job.text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bundles := make([]domain.FieldVectorBundle, len(items))
	for i, item := range items {
		bundles[i] = domain.FieldVectorBundle{
			Item:    item,
			Vectors: make(map[string][]float64, len(p.fields)),
		}
	}
	for j, job := range jobs {
		bundles[job.itemIdx].Vectors[job.field] = vectors[j]
		if job.text != "" {
			stats.EmbeddedFields++
			if len(vectors[j]) == 0 {
				stats.DegradedFields++
			}
		}
	}

	return bundles, nil
}

// newCandidate carries the competitor's descriptive fields through for
// presentation alongside its scores.
func newCandidate(item domain.ItemRecord, fieldScores map[string]float64, final float64) domain.MatchCandidate {
	return domain.MatchCandidate{
		CompetitorID:   item.ID,
		CompetitorName: item.Field(domain.FieldName),
		Brand:          item.Brand,
		Quantity:       item.Quantity,
		Description:    item.Field(domain.FieldDescription),
		ParentCategory: item.Field(domain.FieldParentCategory),
		SalesCategory:  item.Field(domain.FieldSalesCategory),
		Price:          item.Price,
		Provenance:     item.Provenance,
		FieldScores:    fieldScores,
		FinalScore:     final,
	}
}

func newResult(item domain.ItemRecord, candidates []domain.MatchCandidate) domain.MatchResult {
	return domain.MatchResult{
		PrimaryID:          item.ID,
		PrimaryName:        item.Field(domain.FieldName),
		PrimaryDescription: item.Field(domain.FieldDescription),
		ParentCategory:     item.Field(domain.FieldParentCategory),
		SalesCategory:      item.Field(domain.FieldSalesCategory),
		Price:              item.Price,
		Candidates:         candidates,
	}
}
