package domain

import "time"

// CatalogRole identifies which side of the comparison a record belongs to.
// The role participates in cache keys so primary and competitor embeddings
// never collide.
type CatalogRole string

const (
	RolePrimary    CatalogRole = "primary"
	RoleCompetitor CatalogRole = "competitor"
)

// Semantic field names used as independent similarity signals.
const (
	FieldName           = "name"
	FieldDescription    = "description"
	FieldParentCategory = "parent_category"
	FieldSalesCategory  = "sales_category"
)

// PriceRange holds a parsed item price. Competitor prices are single values
// (Min == Max); primary catalog prices may be ranges like "£1.50-3.00".
type PriceRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency,omitempty"`
}

// Provenance records where a competitor item came from. Carried through to
// the output untouched; never used for scoring.
type Provenance struct {
	CompetitorName string `json:"competitor_name,omitempty"`
	CatalogName    string `json:"catalog_name,omitempty"`
	CatalogStart   string `json:"catalog_start,omitempty"`
	CatalogEnd     string `json:"catalog_end,omitempty"`
	Page           int    `json:"page,omitempty"`
}

// ItemRecord is one catalog entry, primary or competitor. Records are built
// once per pipeline run by an ItemSource and are immutable afterwards.
type ItemRecord struct {
	ID         string            `json:"id"`
	Fields     map[string]string `json:"fields"`
	Brand      string            `json:"brand,omitempty"`
	Quantity   string            `json:"quantity,omitempty"`
	Price      *PriceRange       `json:"price,omitempty"`
	Provenance Provenance        `json:"provenance,omitempty"`
}

// Field returns the raw text for a named field, or "" when absent.
func (r ItemRecord) Field(name string) string {
	return r.Fields[name]
}

// FieldVectorBundle maps every configured field of one item to its embedding
// vector. A nil/empty vector means the field is absent or its embedding
// degraded; it is always present in the map, never silently missing.
type FieldVectorBundle struct {
	Item    ItemRecord
	Vectors map[string][]float64
}

// HasVector reports whether the named field produced a usable embedding.
func (b FieldVectorBundle) HasVector(field string) bool {
	return len(b.Vectors[field]) > 0
}

// MatchCandidate is one scored (primary, competitor) pair. FieldScores holds
// the per-field cosine similarities that went into FinalScore.
type MatchCandidate struct {
	CompetitorID   string             `json:"competitor_item_id"`
	CompetitorName string             `json:"competitor_item_name"`
	Brand          string             `json:"brand,omitempty"`
	Quantity       string             `json:"quantity,omitempty"`
	Description    string             `json:"competitor_description,omitempty"`
	ParentCategory string             `json:"parent_category,omitempty"`
	SalesCategory  string             `json:"sales_category,omitempty"`
	Price          *PriceRange        `json:"price,omitempty"`
	Provenance     Provenance         `json:"provenance,omitempty"`
	FieldScores    map[string]float64 `json:"field_scores"`
	FinalScore     float64            `json:"final_score"`
}

// MatchResult is one primary item with its surviving candidates ordered by
// descending final score. Primaries with no survivors are omitted from the
// run output entirely.
type MatchResult struct {
	PrimaryID          string           `json:"primary_item_id"`
	PrimaryName        string           `json:"primary_item_name"`
	PrimaryDescription string           `json:"primary_description,omitempty"`
	ParentCategory     string           `json:"parent_category,omitempty"`
	SalesCategory      string           `json:"sales_category,omitempty"`
	Price              *PriceRange      `json:"price,omitempty"`
	Candidates         []MatchCandidate `json:"matches"`
}

// RunStats accumulates per-run counters. One instance is owned by the
// pipeline for the duration of a run and handed to the sink with the
// results; nothing is kept in package-level state.
type RunStats struct {
	PrimaryItems    int           `json:"primary_items"`
	CompetitorItems int           `json:"competitor_items"`
	SkippedRecords  int           `json:"skipped_records"`
	EmbeddedFields  int           `json:"embedded_fields"`
	DegradedFields  int           `json:"degraded_fields"`
	CacheHits       int           `json:"cache_hits"`
	CacheMisses     int           `json:"cache_misses"`
	MatchedPrimary  int           `json:"matched_primary_items"`
	Candidates      int           `json:"candidates"`
	Duration        time.Duration `json:"-"`
	DurationSeconds float64       `json:"duration_seconds"`
}
