package usecase

import (
	"fmt"
	"math"

	"github.com/catalogmatch/backend/internal/domain"
)

// Absent-field policies. "zero" counts a missing field as zero similarity,
// so a pair is never rewarded just because both sides lack a description.
// "ignore" drops the field and renormalizes the remaining weights instead.
const (
	PolicyZero   = "zero"
	PolicyIgnore = "ignore"
)

// FieldSpec configures one similarity signal: its weight in the final
// score, the enrichment template applied before embedding, and how an
// absent value is treated.
type FieldSpec struct {
	Weight       float64
	Template     string
	AbsentPolicy string
}

// DefaultFields returns the calibrated field table: name carries most of
// the signal, description a fifth, categories act as tie-breakers.
func DefaultFields() map[string]FieldSpec {
	return map[string]FieldSpec{
		domain.FieldName:           {Weight: 0.70, Template: "Product Name: %s", AbsentPolicy: PolicyZero},
		domain.FieldDescription:    {Weight: 0.20, Template: "Product Description: %s", AbsentPolicy: PolicyZero},
		domain.FieldParentCategory: {Weight: 0.05, Template: "Parent Category: %s", AbsentPolicy: PolicyZero},
		domain.FieldSalesCategory:  {Weight: 0.05, Template: "Sales Category: %s", AbsentPolicy: PolicyZero},
	}
}

// SimilarityScorer combines per-field cosine similarities into one weighted
// final score per candidate pair.
type SimilarityScorer struct {
	fields      map[string]FieldSpec
	totalWeight float64
}

// NewSimilarityScorer validates the field table and creates a scorer.
// Weights must be non-negative and sum to at most 1 so the final score
// stays within [0,1] for similarities in [0,1].
func NewSimilarityScorer(fields map[string]FieldSpec) (*SimilarityScorer, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields configured", domain.ErrInvalidConfig)
	}

	total := 0.0
	for name, spec := range fields {
		if spec.Weight < 0 {
			return nil, fmt.Errorf("%w: field %q has negative weight %v", domain.ErrInvalidConfig, name, spec.Weight)
		}
		switch spec.AbsentPolicy {
		case PolicyZero, PolicyIgnore, "":
		default:
			return nil, fmt.Errorf("%w: field %q has unknown absent policy %q", domain.ErrInvalidConfig, name, spec.AbsentPolicy)
		}
		total += spec.Weight
	}

	if total > 1.0+1e-9 {
		return nil, fmt.Errorf("%w: field weights sum to %v, must be <= 1", domain.ErrInvalidConfig, total)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: field weights sum to zero", domain.ErrInvalidConfig)
	}

	return &SimilarityScorer{fields: fields, totalWeight: total}, nil
}

// Cosine returns the cosine similarity of two vectors, or 0 when either
// norm is zero (absent or degraded embeddings carry no signal). Vectors of
// different lengths indicate a bug upstream, not bad data, so this panics
// rather than guessing.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) != len(b) {
		panic(fmt.Sprintf("cosine: vector length mismatch %d vs %d", len(a), len(b)))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Score computes per-field similarities between two items and the weighted
// final score. Every configured field appears in the returned map; fields
// absent on either side score 0 under PolicyZero or are dropped with the
// remaining weights renormalized under PolicyIgnore.
func (s *SimilarityScorer) Score(primary, competitor domain.FieldVectorBundle) (map[string]float64, float64) {
	fieldScores := make(map[string]float64, len(s.fields))

	var sum, activeWeight float64
	for name, spec := range s.fields {
		if !primary.HasVector(name) || !competitor.HasVector(name) {
			fieldScores[name] = 0
			if spec.AbsentPolicy != PolicyIgnore {
				activeWeight += spec.Weight
			}
			continue
		}

		sim := Cosine(primary.Vectors[name], competitor.Vectors[name])
		if sim < 0 {
			sim = 0 // text embeddings are non-negative-ish; clamp noise
		}
		fieldScores[name] = sim
		sum += spec.Weight * sim
		activeWeight += spec.Weight
	}

	if activeWeight == 0 {
		return fieldScores, 0
	}

	// With every field on PolicyZero this reduces to the plain weighted sum.
	final := sum * (s.totalWeight / activeWeight)
	return fieldScores, final
}
