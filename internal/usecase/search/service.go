package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bioscope-cloud/bioscope/internal/domain"
	"github.com/bioscope-cloud/bioscope/internal/domain/search/mode"
	"github.com/bioscope-cloud/bioscope/internal/metrics"
	"github.com/bioscope-cloud/bioscope/internal/trace"
	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

// Service orchestrates literature search across the GraphRAG backend, direct
// vector search, and the lexical fallback scorer.
type Service struct {
	vectors        VectorStore
	orch           Orchestrator
	embed          Embedder
	summarizer     Summarizer
	collection     string
	vectorName     string
	scrollPageSize int
	tokenDelay     time.Duration
	logger         *zap.Logger
}

// New creates a search service. vectors, orch, and embed may each be nil
// when the corresponding backend is not configured; the service degrades to
// whichever paths remain viable.
func New(vectors VectorStore, orch Orchestrator, embed Embedder, logger *zap.Logger) *Service {
	return &Service{
		vectors:        vectors,
		orch:           orch,
		embed:          embed,
		collection:     "biomedical_papers",
		vectorName:     "Dense",
		scrollPageSize: 500,
		tokenDelay:     15 * time.Millisecond,
		logger:         logger,
	}
}

// WithCollection sets the collection and named vector used for direct search.
func (s *Service) WithCollection(collection, vectorName string) *Service {
	s.collection = collection
	s.vectorName = vectorName
	return s
}

// WithScrollPageSize bounds the raw record window fetched by the lexical
// fallback.
func (s *Service) WithScrollPageSize(n int) *Service {
	if n > 0 {
		s.scrollPageSize = n
	}
	return s
}

// WithSummarizer enables direct-mode summary generation.
func (s *Service) WithSummarizer(sum Summarizer) *Service {
	s.summarizer = sum
	return s
}

// WithTokenDelay sets the pacing delay between streamed summary tokens.
func (s *Service) WithTokenDelay(d time.Duration) *Service {
	s.tokenDelay = d
	return s
}

// Search executes a direct (non-streaming) search. Orchestrator-backed modes
// try the GraphRAG backend first and fall back to the lexical scorer when it
// is unavailable and a vector store is configured.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues(string(req.Mode)).Observe(time.Since(start).Seconds())
	}()

	resp, err := s.search(ctx, req, start)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode), pathOf(err), "error").Inc()
		return nil, err
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode), respPath(resp), "success").Inc()
	return resp, nil
}

func (s *Service) search(ctx context.Context, req Request, start time.Time) (*Response, error) {
	if req.Mode.UsesOrchestrator() && s.orch != nil {
		resp, err := s.searchOrchestrated(ctx, req, start)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, domain.ErrOrchestrationUnavailable) || s.vectors == nil {
			return nil, err
		}
		s.logger.Warn("orchestration backend unavailable, falling back to lexical search",
			zap.Error(err))
	}

	if s.vectors == nil {
		return nil, fmt.Errorf("no direct search backend configured: %w", domain.ErrOrchestrationUnavailable)
	}

	if req.Mode == mode.Dense {
		return s.searchDense(ctx, req, start)
	}
	return s.searchLexical(ctx, req, start)
}

// searchOrchestrated delegates the full pipeline to the GraphRAG backend.
func (s *Service) searchOrchestrated(ctx context.Context, req Request, start time.Time) (*Response, error) {
	res, err := s.orch.Search(ctx, req.Query, req.Limit, string(mode.GraphRAG))
	if err != nil {
		return nil, err
	}

	meta := map[string]any{}
	for k, v := range res.Metadata {
		meta[k] = v
	}
	meta["totalLatency"] = time.Since(start).Milliseconds()

	return &Response{
		Summary:  res.Summary,
		Results:  nonNilHits(res.Results),
		Trace:    nonNilTrace(res.Trace),
		Metadata: meta,
	}, nil
}

// searchDense embeds the query and runs vector similarity search.
func (s *Service) searchDense(ctx context.Context, req Request, start time.Time) (*Response, error) {
	if s.embed == nil {
		return nil, fmt.Errorf("embedding provider not configured: %w", domain.ErrEmbeddingProvider)
	}

	rec := trace.New()

	step := rec.Begin("Generating embedding")
	emb, err := s.embed.Embed(ctx, req.Query)
	if err != nil {
		rec.Fail(step, err)
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	rec.Complete(step, map[string]any{"dimensions": len(emb.Embedding)})

	step = rec.Begin("Searching Qdrant")
	hits, err := s.vectors.Search(ctx, s.collection, s.vectorName, emb.Embedding, req.Limit)
	if err != nil {
		rec.Fail(step, err)
		return nil, fmt.Errorf("vector search: %w", err)
	}
	rec.AttachResults(step, hits)
	rec.Complete(step, map[string]any{
		"collection":   s.collection,
		"resultsFound": len(hits),
	})

	summary := s.generateSummary(ctx, rec, req.Query, hits)

	return &Response{
		Summary:  summary,
		Results:  nonNilHits(hits),
		Trace:    rec.Steps(),
		Metadata: s.buildMetadata(req, "dense", len(hits), start),
	}, nil
}

// searchLexical is the resilience path: a bounded window of raw records
// scored client-side against the query terms.
func (s *Service) searchLexical(ctx context.Context, req Request, start time.Time) (*Response, error) {
	rec := trace.New()

	step := rec.Begin("Query normalization")
	terms := queryTerms(req.Query)
	rec.Complete(step, map[string]any{
		"original":   req.Query,
		"queryTerms": terms,
	})

	step = rec.Begin("Qdrant fetch")
	points, _, err := s.vectors.Scroll(ctx, s.collection, s.scrollPageSize, nil)
	if err != nil {
		rec.Fail(step, err)
		return nil, fmt.Errorf("scroll points: %w", err)
	}
	rec.Complete(step, map[string]any{
		"collection":    s.collection,
		"pointsFetched": len(points),
	})

	step = rec.Begin("Text filtering & scoring")
	results := rankLexical(points, terms, req.Limit)
	rec.AttachResults(step, results)
	rec.Complete(step, map[string]any{
		"queryTerms":      terms,
		"totalPoints":     len(points),
		"matchingResults": len(results),
		"mode":            "text-fallback",
	})

	summary := s.generateSummary(ctx, rec, req.Query, results)

	return &Response{
		Summary:  summary,
		Results:  nonNilHits(results),
		Trace:    rec.Steps(),
		Metadata: s.buildMetadata(req, "text-fallback", len(results), start),
	}, nil
}

// generateSummary runs the optional direct-mode summarizer. A summarizer
// failure degrades to an empty summary rather than failing the search; the
// trace step records the error.
func (s *Service) generateSummary(ctx context.Context, rec *trace.Recorder, query string, hits []stream.Hit) string {
	if s.summarizer == nil || len(hits) == 0 {
		return ""
	}

	step := rec.Begin("Generating summary")
	summary, err := s.summarizer.Summarize(ctx, query, hits)
	if err != nil {
		s.logger.Warn("summary generation failed", zap.Error(err))
		rec.Fail(step, err)
		return ""
	}
	rec.Complete(step, map[string]any{"characters": len(summary)})
	return summary
}

func (s *Service) buildMetadata(req Request, effectiveMode string, count int, start time.Time) map[string]any {
	return map[string]any{
		"query":        req.Query,
		"collection":   s.collection,
		"mode":         effectiveMode,
		"limit":        req.Limit,
		"totalLatency": time.Since(start).Milliseconds(),
		"resultsCount": count,
	}
}

func nonNilHits(hits []stream.Hit) []stream.Hit {
	if hits == nil {
		return []stream.Hit{}
	}
	return hits
}

func nonNilTrace(steps []stream.TraceStep) []stream.TraceStep {
	if steps == nil {
		return []stream.TraceStep{}
	}
	return steps
}

// pathOf labels the failed path for metrics.
func pathOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrOrchestrationUnavailable):
		return "orchestrator"
	case errors.Is(err, domain.ErrEmbeddingProvider):
		return "direct"
	default:
		return "direct"
	}
}

// respPath labels the successful path for metrics.
func respPath(resp *Response) string {
	if m, ok := resp.Metadata["mode"].(string); ok {
		switch m {
		case "dense":
			return "direct"
		case "text-fallback":
			return "lexical"
		}
	}
	return "orchestrator"
}
