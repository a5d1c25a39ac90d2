// Package qdrant is a REST client for the subset of the Qdrant API the
// gateway consumes: similarity search, point scrolling, and collection
// metadata passthrough.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bioscope-cloud/bioscope/internal/domain"
	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

const defaultTimeout = 30 * time.Second

// Client talks to a Qdrant instance over its REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// Config holds connection settings for the vector store.
type Config struct {
	URL    string
	APIKey string
	Logger *zap.Logger
}

// NewClient creates a Qdrant REST client.
func NewClient(cfg *Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

// searchRequest is the named-vector search body.
type searchRequest struct {
	Vector      namedVector `json:"vector"`
	Limit       int         `json:"limit"`
	WithPayload bool        `json:"with_payload"`
	WithVector  bool        `json:"with_vector"`
}

type namedVector struct {
	Name   string    `json:"name"`
	Vector []float32 `json:"vector"`
}

type searchResponse struct {
	Result []stream.Hit `json:"result"`
}

// Search runs a similarity search against a collection using the given named
// vector. Results arrive ordered by descending score and truncated to limit
// by the store.
func (c *Client) Search(
	ctx context.Context, collection, vectorName string, vector []float32, limit int,
) ([]stream.Hit, error) {
	body := searchRequest{
		Vector:      namedVector{Name: vectorName, Vector: vector},
		Limit:       limit,
		WithPayload: true,
		WithVector:  false,
	}

	var resp searchResponse
	path := fmt.Sprintf("/collections/%s/points/search", collection)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// scrollRequest is the point listing body.
type scrollRequest struct {
	Limit       int  `json:"limit"`
	Offset      any  `json:"offset,omitempty"`
	WithPayload bool `json:"with_payload"`
	WithVector  bool `json:"with_vector"`
}

type scrollResponse struct {
	Result struct {
		Points         []stream.Hit `json:"points"`
		NextPageOffset any          `json:"next_page_offset"`
	} `json:"result"`
}

// Scroll fetches a bounded page of raw points. The returned offset resumes
// the listing; nil means the collection is exhausted.
func (c *Client) Scroll(
	ctx context.Context, collection string, limit int, offset any,
) ([]stream.Hit, any, error) {
	body := scrollRequest{
		Limit:       limit,
		Offset:      offset,
		WithPayload: true,
		WithVector:  false,
	}

	var resp scrollResponse
	path := fmt.Sprintf("/collections/%s/points/scroll", collection)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Result.Points, resp.Result.NextPageOffset, nil
}

// CollectionInfo returns the raw collection metadata document.
func (c *Client) CollectionInfo(ctx context.Context, collection string) (map[string]any, error) {
	var resp map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/collections/"+collection, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// BrowsePoints returns one raw scroll page for the admin passthrough
// endpoints. Unlike Scroll it keeps the store's document shape intact so the
// caller can forward it untouched.
func (c *Client) BrowsePoints(ctx context.Context, collection string, limit int, offset any) (map[string]any, error) {
	body := scrollRequest{
		Limit:       limit,
		Offset:      offset,
		WithPayload: true,
		WithVector:  false,
	}

	var resp map[string]any
	path := fmt.Sprintf("/collections/%s/points/scroll", collection)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListCollections returns the raw collection listing document.
func (c *Client) ListCollections(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// doJSON issues one request and decodes the JSON response into out.
// Non-2xx responses and malformed bodies map to domain.ErrSearchBackend.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w: %w", method, path, err, domain.ErrSearchBackend)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("qdrant error response",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("qdrant %s %s: status %d: %w", method, path, resp.StatusCode, domain.ErrSearchBackend)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("qdrant %s %s: decode response: %w: %w", method, path, err, domain.ErrSearchBackend)
	}
	return nil
}
