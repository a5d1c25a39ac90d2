package search

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/bioscope-cloud/bioscope/internal/domain"
	"github.com/bioscope-cloud/bioscope/internal/transport/graphrag"
	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

// --- Mocks ---

type mockVectors struct {
	searchHits   []stream.Hit
	searchErr    error
	scrollHits   []stream.Hit
	scrollErr    error
	searchCalled bool
	scrollCalled bool
	lastLimit    int
	lastVecName  string
}

func (m *mockVectors) Search(_ context.Context, _ string, vectorName string, _ []float32, limit int) ([]stream.Hit, error) {
	m.searchCalled = true
	m.lastLimit = limit
	m.lastVecName = vectorName
	return m.searchHits, m.searchErr
}

func (m *mockVectors) Scroll(_ context.Context, _ string, _ int, _ any) ([]stream.Hit, any, error) {
	m.scrollCalled = true
	return m.scrollHits, nil, m.scrollErr
}

type mockOrch struct {
	result   *graphrag.SearchResult
	err      error
	called   bool
	lastMode string
}

func (m *mockOrch) Search(_ context.Context, _ string, _ int, searchMode string) (*graphrag.SearchResult, error) {
	m.called = true
	m.lastMode = searchMode
	return m.result, m.err
}

type mockEmbedder struct {
	vec    []float32
	err    error
	called bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.called = true
	return domain.EmbeddingResult{Embedding: m.vec, TotalTokens: 4}, m.err
}

type mockSummarizer struct {
	summary string
	err     error
	called  bool
}

func (m *mockSummarizer) Summarize(_ context.Context, _ string, _ []stream.Hit) (string, error) {
	m.called = true
	return m.summary, m.err
}

// --- Request validation ---

func TestNewRequestValidation(t *testing.T) {
	t.Run("empty query rejected", func(t *testing.T) {
		if _, err := NewRequest("   ", 10, "dense"); !errors.Is(err, domain.ErrEmptyQuery) {
			t.Errorf("expected ErrEmptyQuery, got %v", err)
		}
	})

	t.Run("invalid mode rejected", func(t *testing.T) {
		if _, err := NewRequest("q", 10, "quantum"); !errors.Is(err, domain.ErrInvalidMode) {
			t.Errorf("expected ErrInvalidMode, got %v", err)
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		req, err := NewRequest("  crispr  ", 0, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.Query != "crispr" {
			t.Errorf("query not trimmed: %q", req.Query)
		}
		if req.Limit != defaultLimit {
			t.Errorf("limit = %d, want %d", req.Limit, defaultLimit)
		}
		if string(req.Mode) != "graphrag" {
			t.Errorf("mode = %q, want graphrag", req.Mode)
		}
	})

	t.Run("limit clamped", func(t *testing.T) {
		req, _ := NewRequest("q", 5000, "dense")
		if req.Limit != maxLimit {
			t.Errorf("limit = %d, want %d", req.Limit, maxLimit)
		}
	})
}

// --- Direct search routing ---

func TestSearchDenseMode(t *testing.T) {
	vectors := &mockVectors{searchHits: []stream.Hit{{ID: 1, Score: 0.9}}}
	embed := &mockEmbedder{vec: []float32{0.1, 0.2}}
	orch := &mockOrch{}
	svc := New(vectors, orch, embed, zap.NewNop()).WithCollection("papers", "Dense")

	req, _ := NewRequest("protein folding", 5, "dense")
	resp, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !embed.called || !vectors.searchCalled {
		t.Error("dense mode must embed then run vector search")
	}
	if orch.called {
		t.Error("dense mode must not call the orchestrator")
	}
	if vectors.lastVecName != "Dense" {
		t.Errorf("vector name = %q, want Dense", vectors.lastVecName)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Metadata["mode"] != "dense" {
		t.Errorf("metadata mode = %v, want dense", resp.Metadata["mode"])
	}

	var sawEmbed, sawSearch bool
	for _, step := range resp.Trace {
		switch step.Name {
		case "Generating embedding":
			sawEmbed = true
		case "Searching Qdrant":
			sawSearch = true
			if step.ResultCount == nil || *step.ResultCount != 1 {
				t.Error("search step missing result count")
			}
		}
		if step.Status != stream.StepComplete {
			t.Errorf("step %q status = %q, want complete", step.Name, step.Status)
		}
	}
	if !sawEmbed || !sawSearch {
		t.Errorf("trace missing pipeline steps: %+v", resp.Trace)
	}
}

func TestSearchOrchestratorFirst(t *testing.T) {
	orch := &mockOrch{result: &graphrag.SearchResult{
		Summary: "findings",
		Results: []stream.Hit{{ID: "a"}},
		Trace:   []stream.TraceStep{{Name: "Retrieve papers", Status: stream.StepComplete}},
	}}
	vectors := &mockVectors{}
	svc := New(vectors, orch, nil, zap.NewNop())

	req, _ := NewRequest("tumor markers", 10, "graphrag")
	resp, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !orch.called {
		t.Fatal("orchestrator path not taken")
	}
	if orch.lastMode != "graphrag" {
		t.Errorf("upstream mode = %q, want graphrag", orch.lastMode)
	}
	if vectors.searchCalled || vectors.scrollCalled {
		t.Error("vector store must not be touched when the orchestrator succeeds")
	}
	if resp.Summary != "findings" {
		t.Errorf("summary = %q", resp.Summary)
	}
	if _, ok := resp.Metadata["totalLatency"]; !ok {
		t.Error("metadata missing totalLatency")
	}
}

func TestSearchSparseAndHybridUseOrchestrator(t *testing.T) {
	for _, m := range []string{"sparse", "hybrid"} {
		t.Run(m, func(t *testing.T) {
			orch := &mockOrch{result: &graphrag.SearchResult{}}
			svc := New(&mockVectors{}, orch, nil, zap.NewNop())

			req, _ := NewRequest("q", 10, m)
			if _, err := svc.Search(context.Background(), req); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !orch.called {
				t.Errorf("mode %q must route to the orchestrator", m)
			}
		})
	}
}

func TestSearchFallsBackToLexical(t *testing.T) {
	orch := &mockOrch{err: domain.ErrOrchestrationUnavailable}
	vectors := &mockVectors{scrollHits: []stream.Hit{
		paperHit(1, "machine learning in genomics", "", ""),
		paperHit(2, "unrelated cardiology study", "", ""),
	}}
	svc := New(vectors, orch, nil, zap.NewNop())

	req, _ := NewRequest("machine learning", 10, "graphrag")
	resp, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("fallback should succeed, got %v", err)
	}

	if !orch.called || !vectors.scrollCalled {
		t.Error("expected orchestrator attempt then lexical scroll")
	}
	if resp.Metadata["mode"] != "text-fallback" {
		t.Errorf("metadata mode = %v, want text-fallback", resp.Metadata["mode"])
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 lexical result, got %d", len(resp.Results))
	}

	names := make([]string, 0, len(resp.Trace))
	for _, step := range resp.Trace {
		names = append(names, step.Name)
	}
	want := []string{"Query normalization", "Qdrant fetch", "Text filtering & scoring"}
	if len(names) != len(want) {
		t.Fatalf("trace steps = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("trace step %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestSearchOrchestratorErrorWithoutFallback(t *testing.T) {
	orch := &mockOrch{err: domain.ErrOrchestrationUnavailable}
	svc := New(nil, orch, nil, zap.NewNop())

	req, _ := NewRequest("q", 10, "graphrag")
	if _, err := svc.Search(context.Background(), req); !errors.Is(err, domain.ErrOrchestrationUnavailable) {
		t.Errorf("expected ErrOrchestrationUnavailable, got %v", err)
	}
}

func TestSearchEmbeddingFailure(t *testing.T) {
	embed := &mockEmbedder{err: domain.ErrEmbeddingProvider}
	svc := New(&mockVectors{}, nil, embed, zap.NewNop())

	req, _ := NewRequest("q", 10, "dense")
	if _, err := svc.Search(context.Background(), req); !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Errorf("expected ErrEmbeddingProvider, got %v", err)
	}
}

func TestSearchVectorBackendFailure(t *testing.T) {
	vectors := &mockVectors{searchErr: domain.ErrSearchBackend}
	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(vectors, nil, embed, zap.NewNop())

	req, _ := NewRequest("q", 10, "dense")
	if _, err := svc.Search(context.Background(), req); !errors.Is(err, domain.ErrSearchBackend) {
		t.Errorf("expected ErrSearchBackend, got %v", err)
	}
}

func TestSearchSummarizerFailureDegrades(t *testing.T) {
	vectors := &mockVectors{searchHits: []stream.Hit{{ID: 1}}}
	embed := &mockEmbedder{vec: []float32{0.1}}
	sum := &mockSummarizer{err: domain.ErrSummaryProvider}
	svc := New(vectors, nil, embed, zap.NewNop()).WithSummarizer(sum)

	req, _ := NewRequest("q", 10, "dense")
	resp, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("summarizer failure must not fail the search: %v", err)
	}
	if !sum.called {
		t.Error("summarizer not invoked")
	}
	if resp.Summary != "" {
		t.Errorf("expected empty summary, got %q", resp.Summary)
	}
	if len(resp.Results) != 1 {
		t.Error("results lost on summarizer failure")
	}
}

func TestSearchResultsNeverNil(t *testing.T) {
	orch := &mockOrch{result: &graphrag.SearchResult{}}
	svc := New(nil, orch, nil, zap.NewNop())

	req, _ := NewRequest("q", 10, "graphrag")
	resp, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Results == nil || resp.Trace == nil {
		t.Error("results and trace must be non-nil empty slices")
	}
}
