package health

import "context"

// CachePinger checks embedding cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// OrchestratorPinger checks GraphRAG backend availability.
type OrchestratorPinger interface {
	Ping(ctx context.Context) error
}
