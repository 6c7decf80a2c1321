package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/catalogmatch/backend/internal/domain"
)

// JSONSink writes the run output as one indented JSON document: the
// ranked match results plus the run's counters.
type JSONSink struct {
	path string
}

// NewJSONSink creates a sink writing to path.
func NewJSONSink(path string) *JSONSink {
	return &JSONSink{path: path}
}

// runDocument is the serialized shape of one completed run.
type runDocument struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Stats       *domain.RunStats     `json:"stats"`
	Results     []domain.MatchResult `json:"results"`
}

// Write persists the results atomically (temp file + rename).
func (s *JSONSink) Write(ctx context.Context, results []domain.MatchResult, stats *domain.RunStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := runDocument{
		GeneratedAt: time.Now().UTC(),
		Stats:       stats,
		Results:     results,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".results-*")
	if err != nil {
		return fmt.Errorf("creating temp results file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing results file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing results file: %w", err)
	}

	log.Printf("[SINK] wrote %d results to %s", len(results), s.path)
	return nil
}
