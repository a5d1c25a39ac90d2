package search

import (
	"context"
	"strings"

	"github.com/bioscope-cloud/bioscope/internal/domain"
	"github.com/bioscope-cloud/bioscope/internal/domain/search/mode"
	"github.com/bioscope-cloud/bioscope/internal/transport/graphrag"
	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

// VectorStore is the vector database contract used by the direct and
// lexical-fallback paths.
type VectorStore interface {
	Search(ctx context.Context, collection, vectorName string, vector []float32, limit int) ([]stream.Hit, error)
	Scroll(ctx context.Context, collection string, limit int, offset any) ([]stream.Hit, any, error)
}

// Orchestrator is the GraphRAG backend contract.
type Orchestrator interface {
	Search(ctx context.Context, query string, limit int, mode string) (*graphrag.SearchResult, error)
}

// Summarizer generates a textual answer from retrieved hits (direct mode).
type Summarizer interface {
	Summarize(ctx context.Context, query string, hits []stream.Hit) (string, error)
}

// Embedder vectorizes text into embeddings.
type Embedder = domain.Embedder

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Request is a validated search request.
type Request struct {
	Query string
	Limit int
	Mode  mode.Mode
}

// NewRequest validates and normalizes the raw request fields. An empty query
// is rejected before any network call.
func NewRequest(query string, limit int, m string) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, domain.ErrEmptyQuery
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	searchMode := mode.Mode(m)
	if m == "" {
		searchMode = mode.GraphRAG
	}
	if !searchMode.IsValid() {
		return Request{}, domain.ErrInvalidMode
	}

	return Request{Query: query, Limit: limit, Mode: searchMode}, nil
}

// Response is the structured result of a direct (non-streaming) search.
type Response struct {
	Summary  string             `json:"summary,omitempty"`
	Results  []stream.Hit       `json:"results"`
	Trace    []stream.TraceStep `json:"trace"`
	Metadata map[string]any     `json:"metadata"`
}
