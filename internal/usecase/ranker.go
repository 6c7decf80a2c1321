package usecase

import (
	"sort"

	"github.com/catalogmatch/backend/internal/domain"
)

// DefaultThreshold is the minimum final score a candidate must reach to
// survive ranking.
const DefaultThreshold = 0.75

// MatchRanker filters candidates against the similarity threshold and
// orders survivors by descending final score.
type MatchRanker struct {
	threshold float64
}

// NewMatchRanker creates a ranker. A zero threshold falls back to
// DefaultThreshold.
func NewMatchRanker(threshold float64) *MatchRanker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &MatchRanker{threshold: threshold}
}

// Threshold returns the configured cutoff.
func (r *MatchRanker) Threshold() float64 {
	return r.threshold
}

// Rank returns the candidates with final score >= threshold, sorted by
// descending score. The sort is stable so equal scores keep their input
// order and the output stays deterministic.
func (r *MatchRanker) Rank(candidates []domain.MatchCandidate) []domain.MatchCandidate {
	survivors := make([]domain.MatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.FinalScore >= r.threshold {
			survivors = append(survivors, c)
		}
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].FinalScore > survivors[j].FinalScore
	})

	return survivors
}
