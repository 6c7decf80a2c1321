package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/catalogmatch/backend/internal/domain"
)

// Client calls an OpenAI-compatible embeddings endpoint (including Azure
// OpenAI deployments). Outbound calls go through a rate limiter and a
// bounded retry loop with exponential backoff; after the retry budget is
// spent the caller gets ErrEmbeddingFailed and degrades the field.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	apiKey      string
	model       string
	rateLimiter *rate.Limiter
	maxRetries  int
	debug       bool
}

// Config configures the embeddings client.
type Config struct {
	Endpoint          string
	APIKey            string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int
}

// NewClient creates an embeddings client with the given configuration.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), burst),
		maxRetries:  maxRetries,
	}
}

// SetDebug enables verbose request logging.
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// embedRequest is the embeddings API request format.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the embeddings API response format.
type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	reqURL := fmt.Sprintf("%s/embeddings", c.endpoint)
	body, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("encoding embed request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		vec, retryable, err := c.doEmbed(ctx, reqURL, body)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if c.debug {
			log.Printf("[OPENAI] embed attempt %d/%d failed: %v", attempt, c.maxRetries, err)
		}
		if !retryable {
			break
		}
		if attempt < c.maxRetries {
			select {
			case <-time.After(exponentialBackoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingFailed, lastErr)
}

// doEmbed performs a single embeddings call. The second return value
// reports whether the failure is worth retrying.
func (c *Client) doEmbed(ctx context.Context, reqURL string, body []byte) ([]float64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	// Azure OpenAI deployments authenticate with this header instead.
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("calling embeddings API: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("embeddings API status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("embeddings API status %d: %s", resp.StatusCode, string(payload))
	}

	var out embedResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, false, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, false, fmt.Errorf("response contained no embedding")
	}

	return out.Data[0].Embedding, false, nil
}

// exponentialBackoff returns the wait before retry attempt+1:
// 500ms, 1s, 2s, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}
