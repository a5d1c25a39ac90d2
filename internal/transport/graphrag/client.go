// Package graphrag is the client for the orchestration backend: the upstream
// API that performs retrieval, graph enrichment, and LLM summarization in one
// call. The gateway treats it as best-effort and falls back to direct search
// when it is unreachable.
package graphrag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bioscope-cloud/bioscope/internal/domain"
	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

const statsTimeout = 10 * time.Second

// Client talks to the GraphRAG backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// Config holds connection settings for the orchestration backend.
type Config struct {
	URL string
	// Timeout bounds the search call; the backend runs graph traversal and
	// LLM generation, so this is deliberately long (default 120s).
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewClient creates a GraphRAG client.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SearchResult is the structured orchestration response.
type SearchResult struct {
	Summary  string             `json:"summary"`
	Results  []stream.Hit       `json:"results"`
	Trace    []stream.TraceStep `json:"trace"`
	Metadata map[string]any     `json:"metadata"`
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
	Mode  string `json:"mode"`
}

// Search runs the full retrieval+summarization pipeline upstream. Any
// network failure or non-2xx response maps to
// domain.ErrOrchestrationUnavailable so the caller can fall back.
func (c *Client) Search(ctx context.Context, query string, limit int, mode string) (*SearchResult, error) {
	data, err := json.Marshal(searchRequest{Query: query, Limit: limit, Mode: mode})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/search", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphrag search: %w: %w", err, domain.ErrOrchestrationUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("graphrag error response", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("graphrag search: status %d: %w", resp.StatusCode, domain.ErrOrchestrationUnavailable)
	}

	var result SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("graphrag search: decode response: %w: %w", err, domain.ErrOrchestrationUnavailable)
	}
	return &result, nil
}

// Ping checks backend reachability for health reporting.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graphrag health: %w: %w", err, domain.ErrOrchestrationUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("graphrag health: status %d: %w", resp.StatusCode, domain.ErrOrchestrationUnavailable)
	}
	return nil
}

// GraphStats returns the backend's graph database statistics document
// (node/relationship counts, entity breakdowns). Bounded by a short timeout
// since it backs a dashboard widget.
func (c *Client) GraphStats(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/neo4j/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("build stats request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphrag stats: %w: %w", err, domain.ErrOrchestrationUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("graphrag stats: status %d: %w", resp.StatusCode, domain.ErrOrchestrationUnavailable)
	}

	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("graphrag stats: decode response: %w: %w", err, domain.ErrOrchestrationUnavailable)
	}
	return stats, nil
}
