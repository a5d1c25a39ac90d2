package bioscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

const defaultTimeout = 30 * time.Second

// Client is the bioscope SDK entry point.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the Bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client. Streaming searches run
// for as long as the summary takes to generate, so the client should carry
// no overall timeout or a generous one.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a bioscope client for the gateway at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SearchRequest holds search parameters. Query is required; zero Limit and
// empty Mode use server defaults.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// SearchResponse is the structured result of a non-streaming search.
type SearchResponse struct {
	Summary  string             `json:"summary"`
	Results  []stream.Hit       `json:"results"`
	Trace    []stream.TraceStep `json:"trace"`
	Metadata map[string]any     `json:"metadata"`
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bioscope: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Search runs a blocking search and returns the full response.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	resp, err := c.post(ctx, "/api/search", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("bioscope: decode search response: %w", err)
	}
	return &out, nil
}

// StreamSearch starts a streaming search. The caller owns the returned
// stream and must Close it.
func (c *Client) StreamSearch(ctx context.Context, req SearchRequest) (*SearchStream, error) {
	resp, err := c.post(ctx, "/api/search/stream", req)
	if err != nil {
		return nil, err
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return &SearchStream{
		body: resp.Body,
		dec:  stream.NewDecoder(resp.Body),
	}, nil
}

// GraphStats fetches the knowledge graph statistics document.
func (c *Client) GraphStats(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/graph/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("bioscope: build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bioscope: graph stats: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("bioscope: decode graph stats: %w", err)
	}
	return stats, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("bioscope: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bioscope: build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bioscope: %s: %w", path, err)
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode, Code: "unknown"}
	_ = json.NewDecoder(resp.Body).Decode(apiErr)
	return apiErr
}

// SearchStream iterates the events of one streaming search.
type SearchStream struct {
	body io.ReadCloser
	dec  *stream.Decoder
}

// Next returns the next event. io.EOF signals a cleanly closed stream.
func (s *SearchStream) Next() (stream.Event, error) {
	return s.dec.Next()
}

// Anomalies reports how many malformed frames were skipped so far.
func (s *SearchStream) Anomalies() int {
	return s.dec.Anomalies()
}

// Close releases the underlying connection.
func (s *SearchStream) Close() error {
	return s.body.Close()
}
