package stream

import (
	"encoding/json"
	"fmt"
)

// Event is one unit of the streaming protocol, tagged by type on the wire.
// The union is closed: Status, Metadata, Content, Done, Error.
type Event interface {
	eventType() string
}

// Status announces that a pipeline stage is starting. It is emitted before
// the stage's blocking work so consumers can render progress immediately.
type Status struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Metadata carries the full result set and execution trace gathered by the
// retrieval stages. Exactly one Metadata is emitted per successful request,
// before any Content.
type Metadata struct {
	Results []Hit          `json:"results"`
	Trace   []TraceStep    `json:"trace"`
	Extra   map[string]any `json:"metadata,omitempty"`
}

// Content is one incremental fragment of the generated summary text.
type Content struct {
	Text string `json:"text"`
}

// Done is the terminal success event. No events follow it.
type Done struct{}

// Error is the terminal failure event. No events follow it.
type Error struct {
	Message string `json:"message"`
}

func (Status) eventType() string   { return "status" }
func (Metadata) eventType() string { return "metadata" }
func (Content) eventType() string  { return "content" }
func (Done) eventType() string     { return "done" }
func (Error) eventType() string    { return "error" }

// Type returns the wire tag of an event ("status", "metadata", ...).
func Type(e Event) string { return e.eventType() }

// IsTerminal reports whether e ends the stream.
func IsTerminal(e Event) bool {
	switch e.(type) {
	case Done, Error:
		return true
	}
	return false
}

// envelope is the wire shape: every event field is optional except type.
type envelope struct {
	Type    string         `json:"type"`
	Stage   string         `json:"stage,omitempty"`
	Message string         `json:"message,omitempty"`
	Results []Hit          `json:"results,omitempty"`
	Trace   []TraceStep    `json:"trace,omitempty"`
	Extra   map[string]any `json:"metadata,omitempty"`
	Text    string         `json:"text,omitempty"`
}

// metadataEnvelope is the wire shape for metadata events. Results and trace
// have no omitempty so they stay present as [] even when empty; other event
// types keep using envelope and never grow these keys.
type metadataEnvelope struct {
	Type    string         `json:"type"`
	Results []Hit          `json:"results"`
	Trace   []TraceStep    `json:"trace"`
	Extra   map[string]any `json:"metadata,omitempty"`
}

// Marshal serializes an event to its wire JSON.
func Marshal(e Event) ([]byte, error) {
	if ev, ok := e.(Metadata); ok {
		env := metadataEnvelope{Type: ev.eventType(), Results: ev.Results, Trace: ev.Trace, Extra: ev.Extra}
		if env.Results == nil {
			env.Results = []Hit{}
		}
		if env.Trace == nil {
			env.Trace = []TraceStep{}
		}
		data, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata event: %w", err)
		}
		return data, nil
	}

	env := envelope{Type: e.eventType()}
	switch ev := e.(type) {
	case Status:
		env.Stage = ev.Stage
		env.Message = ev.Message
	case Content:
		env.Text = ev.Text
	case Done:
	case Error:
		env.Message = ev.Message
	default:
		return nil, fmt.Errorf("unknown event type %T", e)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.eventType(), err)
	}
	return data, nil
}

// Unmarshal parses one wire JSON payload into a typed event.
func Unmarshal(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}

	switch env.Type {
	case "status":
		return Status{Stage: env.Stage, Message: env.Message}, nil
	case "metadata":
		return Metadata{Results: env.Results, Trace: env.Trace, Extra: env.Extra}, nil
	case "content":
		return Content{Text: env.Text}, nil
	case "done":
		return Done{}, nil
	case "error":
		return Error{Message: env.Message}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
