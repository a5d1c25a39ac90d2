package stream

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEncoder_Framing(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	if err := enc.Status("search", "Running vector search..."); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if err := enc.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}

	frames := strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n")
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d: %q", len(frames), buf.String())
	}
	for _, f := range frames {
		if !strings.HasPrefix(f, "data: {") {
			t.Errorf("frame missing data prefix: %q", f)
		}
	}
	if !strings.Contains(frames[1], `"type":"done"`) {
		t.Errorf("terminal frame = %q", frames[1])
	}
}

func TestEncoder_FlushesPerEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	enc := NewEncoder(rec)

	if err := enc.Content("token"); err != nil {
		t.Fatalf("Content: %v", err)
	}
	if !rec.Flushed {
		t.Error("expected flush after event")
	}
}

func TestPrepareHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	PrepareHeaders(rec.Header())

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
}
