package search

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/bioscope-cloud/bioscope/internal/domain"
	"github.com/bioscope-cloud/bioscope/internal/metrics"
	"github.com/bioscope-cloud/bioscope/internal/transport/graphrag"
	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

// runStream executes a stream against an in-memory buffer and decodes every
// event back out.
func runStream(t *testing.T, svc *Service, req Request) []stream.Event {
	t.Helper()

	var buf bytes.Buffer
	svc.Stream(context.Background(), req, stream.NewEncoder(&buf))

	dec := stream.NewDecoder(&buf)
	var events []stream.Event
	for {
		ev, err := dec.Next()
		if err != nil {
			break
		}
		events = append(events, ev)
	}
	if dec.Anomalies() != 0 {
		t.Fatalf("stream produced %d malformed frames", dec.Anomalies())
	}
	return events
}

// assertEventOrdering checks the protocol shape: statuses only before
// metadata, exactly one metadata, content only after metadata, and a single
// terminal event at the end.
func assertEventOrdering(t *testing.T, events []stream.Event) {
	t.Helper()

	if len(events) == 0 {
		t.Fatal("no events emitted")
	}

	metadataSeen := false
	contentSeen := false
	for i, ev := range events {
		if stream.IsTerminal(ev) && i != len(events)-1 {
			t.Fatalf("terminal event at position %d of %d", i, len(events))
		}
		switch ev.(type) {
		case stream.Metadata:
			if metadataSeen {
				t.Fatal("metadata emitted twice")
			}
			metadataSeen = true
		case stream.Status:
			if contentSeen {
				t.Fatalf("status after content at position %d", i)
			}
		case stream.Content:
			if !metadataSeen {
				t.Fatalf("content before metadata at position %d", i)
			}
			contentSeen = true
		}
	}
	if !stream.IsTerminal(events[len(events)-1]) {
		t.Fatal("stream did not end with a terminal event")
	}
}

func collectContent(events []stream.Event) string {
	var sb strings.Builder
	for _, ev := range events {
		if c, ok := ev.(stream.Content); ok {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

func findMetadata(t *testing.T, events []stream.Event) stream.Metadata {
	t.Helper()
	for _, ev := range events {
		if m, ok := ev.(stream.Metadata); ok {
			return m
		}
	}
	t.Fatal("no metadata event in stream")
	return stream.Metadata{}
}

func TestStreamOrchestratedRoundTrip(t *testing.T) {
	summary := "CRISPR-based therapies show durable responses.\n\nTwo trials reported remission."
	orch := &mockOrch{result: &graphrag.SearchResult{
		Summary: summary,
		Results: []stream.Hit{{ID: "p1", Score: 0.93}},
		Trace: []stream.TraceStep{
			{Name: "Retrieve papers", Status: stream.StepComplete},
		},
	}}
	svc := New(nil, orch, nil, zap.NewNop()).WithTokenDelay(0)

	req, _ := NewRequest("crispr therapy", 10, "graphrag")
	events := runStream(t, svc, req)
	assertEventOrdering(t, events)

	if got := collectContent(events); got != summary {
		t.Errorf("reassembled summary differs:\n got %q\nwant %q", got, summary)
	}
	if _, ok := events[len(events)-1].(stream.Done); !ok {
		t.Errorf("expected done terminal, got %T", events[len(events)-1])
	}

	meta := findMetadata(t, events)
	if len(meta.Results) != 1 {
		t.Errorf("expected 1 result in metadata, got %d", len(meta.Results))
	}
	if len(meta.Trace) != 1 {
		t.Errorf("expected orchestrator trace passthrough, got %d steps", len(meta.Trace))
	}
}

func TestStreamDenseMode(t *testing.T) {
	vectors := &mockVectors{searchHits: []stream.Hit{{ID: 1, Score: 0.8}}}
	embed := &mockEmbedder{vec: []float32{0.1, 0.2}}
	svc := New(vectors, nil, embed, zap.NewNop()).WithTokenDelay(0)

	req, _ := NewRequest("protein folding", 10, "dense")
	events := runStream(t, svc, req)
	assertEventOrdering(t, events)

	var stages []string
	for _, ev := range events {
		if s, ok := ev.(stream.Status); ok {
			stages = append(stages, s.Stage)
		}
	}
	want := []string{"embedding", "search", "tools"}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d = %q, want %q", i, stages[i], want[i])
		}
	}

	meta := findMetadata(t, events)
	if meta.Extra["mode"] != "dense" {
		t.Errorf("metadata mode = %v, want dense", meta.Extra["mode"])
	}
	var sawSearchStep bool
	for _, step := range meta.Trace {
		if step.Name == "Searching Qdrant" {
			sawSearchStep = true
			if step.ResultCount == nil || *step.ResultCount != 1 {
				t.Error("search step missing attached result count")
			}
		}
	}
	if !sawSearchStep {
		t.Error("trace missing vector search step")
	}
}

func TestStreamDenseWithSummarizer(t *testing.T) {
	vectors := &mockVectors{searchHits: []stream.Hit{{ID: 1}}}
	embed := &mockEmbedder{vec: []float32{0.1}}
	sum := &mockSummarizer{summary: "One relevant paper found."}
	svc := New(vectors, nil, embed, zap.NewNop()).WithSummarizer(sum).WithTokenDelay(0)

	req, _ := NewRequest("q", 10, "dense")
	events := runStream(t, svc, req)
	assertEventOrdering(t, events)

	if got := collectContent(events); got != sum.summary {
		t.Errorf("summary content = %q, want %q", got, sum.summary)
	}

	var sawGenerate bool
	for _, ev := range events {
		if s, ok := ev.(stream.Status); ok && s.Stage == "generate" {
			sawGenerate = true
		}
	}
	if !sawGenerate {
		t.Error("expected generate status before content")
	}
}

func TestStreamFallbackOnOrchestratorOutage(t *testing.T) {
	orch := &mockOrch{err: domain.ErrOrchestrationUnavailable}
	vectors := &mockVectors{scrollHits: []stream.Hit{
		paperHit(1, "machine learning in genomics", "", ""),
	}}
	svc := New(vectors, orch, nil, zap.NewNop()).WithTokenDelay(0)

	req, _ := NewRequest("machine learning", 10, "graphrag")
	events := runStream(t, svc, req)
	assertEventOrdering(t, events)

	if _, ok := events[len(events)-1].(stream.Done); !ok {
		t.Fatalf("fallback stream must end in done, got %T", events[len(events)-1])
	}
	meta := findMetadata(t, events)
	if meta.Extra["mode"] != "text-fallback" {
		t.Errorf("metadata mode = %v, want text-fallback", meta.Extra["mode"])
	}
	if len(meta.Results) != 1 {
		t.Errorf("expected 1 fallback result, got %d", len(meta.Results))
	}
}

func TestStreamFailureEmitsPartialTraceThenError(t *testing.T) {
	vectors := &mockVectors{searchErr: domain.ErrSearchBackend}
	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(vectors, nil, embed, zap.NewNop()).WithTokenDelay(0)

	req, _ := NewRequest("q", 10, "dense")
	events := runStream(t, svc, req)
	assertEventOrdering(t, events)

	last, ok := events[len(events)-1].(stream.Error)
	if !ok {
		t.Fatalf("expected error terminal, got %T", events[len(events)-1])
	}
	if last.Message != "search backend failed" {
		t.Errorf("error message = %q", last.Message)
	}

	meta := findMetadata(t, events)
	if len(meta.Results) != 0 {
		t.Errorf("failed stream should carry no results, got %d", len(meta.Results))
	}
	var failedStep bool
	for _, step := range meta.Trace {
		if step.Name == "Searching Qdrant" && step.Status == stream.StepError {
			failedStep = true
		}
	}
	if !failedStep {
		t.Errorf("partial trace missing failed step: %+v", meta.Trace)
	}
}

func TestStreamOrchestratedFailureCountsAsError(t *testing.T) {
	orch := &mockOrch{err: errors.New("upstream rejected the query")}
	svc := New(nil, orch, nil, zap.NewNop())

	errBefore := testutil.ToFloat64(metrics.SearchRequestsTotal.WithLabelValues("graphrag", "orchestrator", "error"))
	okBefore := testutil.ToFloat64(metrics.SearchRequestsTotal.WithLabelValues("graphrag", "orchestrator", "success"))

	req, _ := NewRequest("q", 10, "graphrag")
	events := runStream(t, svc, req)

	if _, ok := events[len(events)-1].(stream.Error); !ok {
		t.Fatalf("expected error terminal, got %T", events[len(events)-1])
	}
	errAfter := testutil.ToFloat64(metrics.SearchRequestsTotal.WithLabelValues("graphrag", "orchestrator", "error"))
	okAfter := testutil.ToFloat64(metrics.SearchRequestsTotal.WithLabelValues("graphrag", "orchestrator", "success"))
	if errAfter-errBefore != 1 {
		t.Errorf("error outcome not counted: delta %v", errAfter-errBefore)
	}
	if okAfter != okBefore {
		t.Errorf("failed stream counted as success: delta %v", okAfter-okBefore)
	}
}

func TestStreamNoBackendsConfigured(t *testing.T) {
	svc := New(nil, nil, nil, zap.NewNop())

	req, _ := NewRequest("q", 10, "graphrag")
	events := runStream(t, svc, req)

	if len(events) != 1 {
		t.Fatalf("expected single error event, got %d events", len(events))
	}
	if _, ok := events[0].(stream.Error); !ok {
		t.Fatalf("expected error event, got %T", events[0])
	}
}

func TestStreamContentPreservesWhitespace(t *testing.T) {
	summary := "line one\n\n  indented\tline"
	orch := &mockOrch{result: &graphrag.SearchResult{Summary: summary}}
	svc := New(nil, orch, nil, zap.NewNop()).WithTokenDelay(0)

	req, _ := NewRequest("q", 10, "graphrag")
	events := runStream(t, svc, req)
	if got := collectContent(events); got != summary {
		t.Errorf("whitespace not preserved:\n got %q\nwant %q", got, summary)
	}
}
