package stream

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

// chunkedReader returns at most n bytes per Read to simulate frames split at
// arbitrary network boundaries.
type chunkedReader struct {
	data []byte
	n    int
	pos  int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.n
	if end > len(r.data) {
		end = len(r.data)
	}
	c := copy(p, r.data[r.pos:end])
	r.pos += c
	return c, nil
}

func encodeAll(t *testing.T, events []Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Send(ev); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	return buf.Bytes()
}

func decodeAll(t *testing.T, r io.Reader) []Event {
	t.Helper()
	dec := NewDecoder(r)
	var out []Event
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, ev)
	}
}

func sampleEvents() []Event {
	return []Event{
		Status{Stage: "search", Message: "Running vector search..."},
		Metadata{
			Results: []Hit{{ID: float64(7), Score: 0.81}},
			Trace:   []TraceStep{{Name: "Vector retrieval", Status: StepComplete}},
		},
		Status{Stage: "generate", Message: "Generating response..."},
		Content{Text: "BRCA1"},
		Content{Text: " \t "},
		Content{Text: "is"},
		Done{},
	}
}

func TestDecoder_RoundTrip(t *testing.T) {
	wire := encodeAll(t, sampleEvents())
	got := decodeAll(t, bytes.NewReader(wire))
	if !reflect.DeepEqual(got, sampleEvents()) {
		t.Errorf("round-trip mismatch:\ngot:  %#v\nwant: %#v", got, sampleEvents())
	}
}

func TestDecoder_ArbitrarySplits(t *testing.T) {
	wire := encodeAll(t, sampleEvents())
	want := decodeAll(t, bytes.NewReader(wire))

	for _, n := range []int{1, 2, 3, 5, 7, 16, 64, len(wire)} {
		got := decodeAll(t, &chunkedReader{data: wire, n: n})
		if !reflect.DeepEqual(got, want) {
			t.Errorf("chunk size %d: decoded state diverged", n)
		}
	}
}

func TestDecoder_ContentRoundTrip(t *testing.T) {
	// Concatenating content fragments must reconstruct the summary exactly,
	// including whitespace runs.
	summary := "BRCA1  is linked\tto breast cancer risk.\n"
	var events []Event
	for _, tok := range []string{"BRCA1", "  ", "is", " ", "linked", "\t", "to", " ", "breast", " ", "cancer", " ", "risk.\n"} {
		events = append(events, Content{Text: tok})
	}
	wire := encodeAll(t, events)

	var rebuilt strings.Builder
	for _, ev := range decodeAll(t, &chunkedReader{data: wire, n: 3}) {
		c, ok := ev.(Content)
		if !ok {
			t.Fatalf("unexpected event %T", ev)
		}
		rebuilt.WriteString(c.Text)
	}
	if rebuilt.String() != summary {
		t.Errorf("content round-trip:\ngot:  %q\nwant: %q", rebuilt.String(), summary)
	}
}

func TestDecoder_SkipsMalformedDataLines(t *testing.T) {
	wire := "data: {\"type\":\"status\",\"stage\":\"search\"}\n\n" +
		"data: {not json\n\n" +
		"event: trace\n" +
		"data: {\"type\":\"done\"}\n\n"

	dec := NewDecoder(strings.NewReader(wire))
	var got []Event
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, ev)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if _, ok := got[0].(Status); !ok {
		t.Errorf("first event = %T, want Status", got[0])
	}
	if _, ok := got[1].(Done); !ok {
		t.Errorf("second event = %T, want Done", got[1])
	}
	if dec.Anomalies() != 1 {
		t.Errorf("anomalies = %d, want 1", dec.Anomalies())
	}
}

func TestDecoder_CRLFAndTrailingLine(t *testing.T) {
	// CRLF framing and a final frame without a trailing newline.
	wire := "data: {\"type\":\"content\",\"text\":\"a\"}\r\n\r\ndata: {\"type\":\"done\"}"
	got := decodeAll(t, strings.NewReader(wire))
	want := []Event{Content{Text: "a"}, Done{}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}
