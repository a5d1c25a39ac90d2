package stream

import (
	"fmt"
	"io"
	"net/http"
)

// Encoder writes events to a chunked HTTP response using the line-oriented
// framing. It flushes after every event so consumers see progress without
// waiting for the response to complete.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder creates an encoder over w. If w implements http.Flusher each
// event is flushed as it is written.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// PrepareHeaders sets the response headers for an event stream. Must be
// called before the first Send.
func PrepareHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}

// Send writes one event frame. A write failure usually means the client went
// away; callers should stop emitting.
func (e *Encoder) Send(ev Event) error {
	data, err := Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event frame: %w", err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Status emits a stage announcement.
func (e *Encoder) Status(stage, message string) error {
	return e.Send(Status{Stage: stage, Message: message})
}

// Metadata emits the results/trace event.
func (e *Encoder) Metadata(results []Hit, trace []TraceStep, extra map[string]any) error {
	return e.Send(Metadata{Results: results, Trace: trace, Extra: extra})
}

// Content emits one summary fragment.
func (e *Encoder) Content(text string) error {
	return e.Send(Content{Text: text})
}

// Done emits the terminal success event.
func (e *Encoder) Done() error {
	return e.Send(Done{})
}

// Error emits the terminal failure event.
func (e *Encoder) Error(message string) error {
	return e.Send(Error{Message: message})
}
