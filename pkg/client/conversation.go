package bioscope

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

// ErrSearchInFlight is returned by Submit while a previous search is still
// streaming. One search at a time; the UI disables the input meanwhile.
var ErrSearchInFlight = errors.New("bioscope: search already in flight")

// ErrEmptyQuery is returned by Submit for an empty or whitespace-only query,
// before any message is recorded or request sent.
var ErrEmptyQuery = errors.New("bioscope: query is empty")

// errorReply is the assistant message committed when a stream ends in an
// error event.
const errorReply = "Sorry, there was an error processing your search. Please try again."

const defaultTopK = 3

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageMetadata carries the retrieval context of an assistant message.
type MessageMetadata struct {
	Query      string             `json:"query"`
	Collection string             `json:"collection,omitempty"`
	Results    []stream.Hit       `json:"results,omitempty"`
	Trace      []stream.TraceStep `json:"trace,omitempty"`
}

// Message is one entry in the conversation transcript.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// Conversation reduces a stream of search events into a chat transcript.
// It mirrors the dashboard's message model: a user message per submitted
// query, transient streaming state while events arrive, and one committed
// assistant message per terminal event.
//
// Conversation is not safe for concurrent use.
type Conversation struct {
	topK     int
	now      func() time.Time
	messages []Message

	// transient streaming state, valid while active
	active     bool
	query      string
	status     string
	content    strings.Builder
	results    []stream.Hit
	traceSteps []stream.TraceStep
	collection string
}

// NewConversation creates an empty conversation. topK bounds how many
// retrieved papers are attached to each assistant message; zero or negative
// uses the default.
func NewConversation(topK int) *Conversation {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Conversation{topK: topK, now: time.Now}
}

// Submit records the user's query and opens the streaming state for it.
// The query is trimmed; an empty result rejects the submit.
func (c *Conversation) Submit(query string) error {
	if c.active {
		return ErrSearchInFlight
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrEmptyQuery
	}

	c.messages = append(c.messages, Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   query,
		Timestamp: c.now(),
	})

	c.active = true
	c.query = query
	c.status = ""
	c.content.Reset()
	c.results = nil
	c.traceSteps = nil
	c.collection = ""
	return nil
}

// Apply folds one stream event into the conversation. Events arriving
// outside an active search are dropped.
func (c *Conversation) Apply(ev stream.Event) {
	if !c.active {
		return
	}

	switch e := ev.(type) {
	case stream.Status:
		c.status = e.Message
	case stream.Metadata:
		c.applyMetadata(e)
	case stream.Content:
		c.content.WriteString(e.Text)
	case stream.Done:
		c.commit(c.doneContent())
	case stream.Error:
		c.commit(errorReply)
	}
}

// applyMetadata captures the trace and picks the result set to attach. The
// retrieval step of the trace carries the full scored payloads, so when one
// exists its results replace the event-level list. Either way the kept list
// is truncated to topK and written back onto the step so the transcript and
// the trace agree.
func (c *Conversation) applyMetadata(e stream.Metadata) {
	c.traceSteps = make([]stream.TraceStep, len(e.Trace))
	copy(c.traceSteps, e.Trace)

	results := e.Results
	stepIdx := -1
	for i, step := range c.traceSteps {
		name := strings.ToLower(step.Name)
		if !strings.Contains(name, "retriev") && !strings.Contains(name, "search") {
			continue
		}
		if len(step.Results) > 0 {
			results = step.Results
			stepIdx = i
		}
		break
	}

	if len(results) > c.topK {
		results = results[:c.topK]
	}
	c.results = results

	if stepIdx >= 0 {
		n := len(results)
		c.traceSteps[stepIdx].Results = results
		c.traceSteps[stepIdx].ResultCount = &n
	}

	if coll, ok := e.Extra["collection"].(string); ok {
		c.collection = coll
	}
}

// doneContent substitutes the no-results text whenever the stream produced
// no summary, even if retrieval attached hits.
func (c *Conversation) doneContent() string {
	if content := c.content.String(); content != "" {
		return content
	}
	return fmt.Sprintf("No results found for %q.", c.query)
}

// commit appends the assistant message and clears the streaming state.
func (c *Conversation) commit(content string) {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: c.now(),
	}
	if len(c.results) > 0 || len(c.traceSteps) > 0 {
		msg.Metadata = &MessageMetadata{
			Query:      c.query,
			Collection: c.collection,
			Results:    c.results,
			Trace:      c.traceSteps,
		}
	}
	c.messages = append(c.messages, msg)

	c.active = false
	c.status = ""
	c.content.Reset()
}

// Messages returns the committed transcript.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Streaming reports whether a search is in flight.
func (c *Conversation) Streaming() bool { return c.active }

// Status returns the latest stage announcement of the in-flight search.
func (c *Conversation) Status() string { return c.status }

// PendingContent returns the summary text streamed so far.
func (c *Conversation) PendingContent() string { return c.content.String() }
