package domain

import "errors"

// Sentinel errors for the search pipeline.
var (
	// ErrEmptyQuery signals an empty or whitespace-only query.
	ErrEmptyQuery = errors.New("query is required")
	// ErrInvalidMode signals an unsupported search mode.
	ErrInvalidMode = errors.New("invalid search mode")
	// ErrEmbeddingProvider signals an embedding provider failure, including
	// malformed responses and dimensionality mismatches.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrSearchBackend signals a vector store failure on search or scroll.
	ErrSearchBackend = errors.New("search backend error")
	// ErrOrchestrationUnavailable signals that the GraphRAG backend is
	// unreachable or returned a non-2xx response. Callers fall back to
	// direct search when that path is configured.
	ErrOrchestrationUnavailable = errors.New("orchestration backend unavailable")
	// ErrSummaryProvider signals a summary generation failure.
	ErrSummaryProvider = errors.New("summary provider error")
)
