package search

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bioscope-cloud/bioscope/internal/domain"
	"github.com/bioscope-cloud/bioscope/internal/domain/search/mode"
	"github.com/bioscope-cloud/bioscope/internal/metrics"
	"github.com/bioscope-cloud/bioscope/internal/trace"
	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

// Stream executes a search and emits the progressive event sequence over enc:
// zero or more status events, a single metadata event, zero or more content
// tokens, and exactly one terminal done or error event.
func (s *Service) Stream(ctx context.Context, req Request, enc *stream.Encoder) {
	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues(string(req.Mode)).Observe(time.Since(start).Seconds())
	}()

	if req.Mode.UsesOrchestrator() && s.orch != nil {
		if handled, err := s.streamOrchestrated(ctx, req, enc, start); handled {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode), "orchestrator", outcome).Inc()
			return
		}
		if s.vectors == nil {
			metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode), "orchestrator", "error").Inc()
			s.sendError(enc, domain.ErrOrchestrationUnavailable)
			return
		}
		s.logger.Warn("orchestration backend unavailable, streaming lexical fallback")
	}

	if s.vectors == nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode), "direct", "error").Inc()
		s.sendError(enc, domain.ErrOrchestrationUnavailable)
		return
	}

	var err error
	path := "lexical"
	if req.Mode == mode.Dense {
		path = "direct"
		err = s.streamDense(ctx, req, enc, start)
	} else {
		err = s.streamLexical(ctx, req, enc, start)
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode), path, outcome).Inc()
}

// streamOrchestrated delegates to the GraphRAG backend and replays its
// response as a progressive stream. handled is false only when the backend is
// unavailable and the caller may fall back; any other failure ends the stream
// and is reported through err.
func (s *Service) streamOrchestrated(ctx context.Context, req Request, enc *stream.Encoder, start time.Time) (handled bool, _ error) {
	s.send(enc, stream.Status{Stage: "search", Message: "Searching biomedical literature..."})

	res, err := s.orch.Search(ctx, req.Query, req.Limit, "graphrag")
	if err != nil {
		if errors.Is(err, domain.ErrOrchestrationUnavailable) {
			return false, nil
		}
		s.logger.Error("orchestrated stream failed", zap.Error(err))
		s.sendError(enc, err)
		return true, err
	}

	s.send(enc, stream.Status{Stage: "tools", Message: "Processing retrieved papers..."})

	meta := map[string]any{}
	for k, v := range res.Metadata {
		meta[k] = v
	}
	meta["totalLatency"] = time.Since(start).Milliseconds()
	s.send(enc, stream.Metadata{
		Results: nonNilHits(res.Results),
		Trace:   nonNilTrace(res.Trace),
		Extra:   meta,
	})

	if res.Summary != "" {
		s.send(enc, stream.Status{Stage: "generate", Message: "Generating summary..."})
		s.streamContent(ctx, enc, res.Summary)
	}
	s.send(enc, stream.Done{})
	return true, nil
}

// streamDense runs the embed-then-search pipeline with progressive status
// updates and trace recording.
func (s *Service) streamDense(ctx context.Context, req Request, enc *stream.Encoder, start time.Time) error {
	if s.embed == nil {
		s.sendError(enc, domain.ErrEmbeddingProvider)
		return domain.ErrEmbeddingProvider
	}

	rec := trace.New()

	s.send(enc, stream.Status{Stage: "embedding", Message: "Generating query embedding..."})
	step := rec.Begin("Generating embedding")
	emb, err := s.embed.Embed(ctx, req.Query)
	if err != nil {
		return s.failStream(enc, rec, req, "dense", start, err)
	}
	rec.Complete(step, map[string]any{"dimensions": len(emb.Embedding)})

	s.send(enc, stream.Status{Stage: "search", Message: "Searching vector index..."})
	step = rec.Begin("Searching Qdrant")
	hits, err := s.vectors.Search(ctx, s.collection, s.vectorName, emb.Embedding, req.Limit)
	if err != nil {
		return s.failStream(enc, rec, req, "dense", start, err)
	}
	rec.AttachResults(step, hits)
	rec.Complete(step, map[string]any{
		"collection":   s.collection,
		"resultsFound": len(hits),
	})

	s.finishStream(ctx, enc, rec, req, "dense", hits, start)
	return nil
}

// streamLexical runs the fallback scorer with progressive status updates.
func (s *Service) streamLexical(ctx context.Context, req Request, enc *stream.Encoder, start time.Time) error {
	rec := trace.New()

	step := rec.Begin("Query normalization")
	terms := queryTerms(req.Query)
	rec.Complete(step, map[string]any{
		"original":   req.Query,
		"queryTerms": terms,
	})

	s.send(enc, stream.Status{Stage: "search", Message: "Scanning literature records..."})
	step = rec.Begin("Qdrant fetch")
	points, _, err := s.vectors.Scroll(ctx, s.collection, s.scrollPageSize, nil)
	if err != nil {
		return s.failStream(enc, rec, req, "text-fallback", start, err)
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

	s.finishStream(ctx, enc, rec, req, "text-fallback", results, start)
	return nil
}

// finishStream emits the metadata event, the optional paced summary, and the
// terminal done event.
func (s *Service) finishStream(ctx context.Context, enc *stream.Encoder, rec *trace.Recorder, req Request, effectiveMode string, hits []stream.Hit, start time.Time) {
	s.send(enc, stream.Status{Stage: "tools", Message: "Processing retrieved papers..."})

	summary := s.generateSummary(ctx, rec, req.Query, hits)

	s.send(enc, stream.Metadata{
		Results: nonNilHits(hits),
		Trace:   rec.Steps(),
		Extra:   s.buildMetadata(req, effectiveMode, len(hits), start),
	})

	if summary != "" {
		s.send(enc, stream.Status{Stage: "generate", Message: "Generating summary..."})
		s.streamContent(ctx, enc, summary)
	}
	s.send(enc, stream.Done{})
}

// failStream closes a failed stream: the running trace step is marked failed,
// the partial trace is flushed in a metadata event, and a terminal error
// event follows.
func (s *Service) failStream(enc *stream.Encoder, rec *trace.Recorder, req Request, effectiveMode string, start time.Time, err error) error {
	s.logger.Error("stream pipeline failed", zap.String("mode", effectiveMode), zap.Error(err))
	rec.FailRunning(err)
	s.send(enc, stream.Metadata{
		Results: []stream.Hit{},
		Trace:   rec.Steps(),
		Extra:   s.buildMetadata(req, effectiveMode, 0, start),
	})
	s.sendError(enc, err)
	return err
}

// streamContent emits the summary as alternating word and whitespace tokens.
// Pacing applies after word tokens only, so whitespace never doubles the
// perceived delay.
func (s *Service) streamContent(ctx context.Context, enc *stream.Encoder, text string) {
	for _, tok := range splitTokens(text) {
		if err := s.send(enc, stream.Content{Text: tok}); err != nil {
			return
		}
		if s.tokenDelay <= 0 || isWhitespaceToken(tok) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.tokenDelay):
		}
	}
}

func (s *Service) send(enc *stream.Encoder, e stream.Event) error {
	if err := enc.Send(e); err != nil {
		s.logger.Debug("stream write failed", zap.Error(err))
		return err
	}
	metrics.StreamEventsTotal.WithLabelValues(stream.Type(e)).Inc()
	return nil
}

func (s *Service) sendError(enc *stream.Encoder, err error) {
	s.send(enc, stream.Error{Message: streamErrorMessage(err)})
}

// streamErrorMessage maps pipeline failures to messages safe to put on the
// wire. Unknown errors get a generic message so internals never leak.
func streamErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmbeddingProvider):
		return "embedding provider failed"
	case errors.Is(err, domain.ErrSearchBackend):
		return "search backend failed"
	case errors.Is(err, domain.ErrOrchestrationUnavailable):
		return "search backend is unavailable"
	case errors.Is(err, domain.ErrSummaryProvider):
		return "summary generation failed"
	default:
		return "search failed"
	}
}
