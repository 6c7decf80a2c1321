package http

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/catalogmatch/backend/internal/domain"
)

// MatchRunner executes one full matching pass.
type MatchRunner interface {
	Run(ctx context.Context) ([]domain.MatchResult, *domain.RunStats, error)
}

// Handler holds dependencies for HTTP handlers. At most one matching run
// is in flight at a time; the latest completed run's output is kept in
// memory for the results endpoint.
type Handler struct {
	runner MatchRunner

	mu          sync.Mutex
	running     bool
	results     []domain.MatchResult
	stats       *domain.RunStats
	lastErr     error
	completedAt time.Time
}

// NewHandler creates a new HTTP handler.
func NewHandler(runner MatchRunner) *Handler {
	return &Handler{runner: runner}
}

// HealthCheck returns the health status of the API.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "catalogmatch-backend",
		"version": "1.0.0",
	})
}

// StartRun kicks off a matching run in the background. Returns 409 when a
// run is already in flight.
func (h *Handler) StartRun(c *gin.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": domain.ErrRunInProgress.Error()})
		return
	}
	h.running = true
	h.mu.Unlock()

	go func() {
		results, stats, err := h.runner.Run(context.Background())
		if err != nil {
			log.Printf("[HTTP] matching run failed: %v", err)
		}

		h.mu.Lock()
		h.running = false
		h.lastErr = err
		h.completedAt = time.Now()
		if err == nil {
			h.results = results
			h.stats = stats
		}
		h.mu.Unlock()
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// RunStatus reports whether a run is in flight and how the last one ended.
func (h *Handler) RunStatus(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := gin.H{"running": h.running}
	if !h.completedAt.IsZero() {
		status["last_completed_at"] = h.completedAt.UTC()
	}
	if h.lastErr != nil {
		status["last_error"] = h.lastErr.Error()
	}
	if h.stats != nil {
		status["stats"] = h.stats
	}

	c.JSON(http.StatusOK, status)
}

// Results returns the output of the most recent successful run.
func (h *Handler) Results(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.results == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrNoResults.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"generated_at": h.completedAt.UTC(),
		"stats":        h.stats,
		"results":      h.results,
	})
}
