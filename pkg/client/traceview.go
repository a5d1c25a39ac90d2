package bioscope

import (
	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

// StepSummary is one row of the trace panel.
type StepSummary struct {
	Name        string
	Status      stream.StepStatus
	DurationMS  int64
	ResultCount int
}

// TraceView inspects the retrieval trace of a completed search. It tolerates
// empty traces and missing metadata fields.
type TraceView struct {
	steps []stream.TraceStep
	meta  map[string]any
}

// NewTraceView creates a view over a trace and its metadata. Both may be nil.
func NewTraceView(steps []stream.TraceStep, meta map[string]any) TraceView {
	return TraceView{steps: steps, meta: meta}
}

// StepCount returns the number of trace steps.
func (v TraceView) StepCount() int { return len(v.steps) }

// Step returns the i-th step.
func (v TraceView) Step(i int) (stream.TraceStep, bool) {
	if i < 0 || i >= len(v.steps) {
		return stream.TraceStep{}, false
	}
	return v.steps[i], true
}

// TotalLatencyMS returns the end-to-end latency. It prefers the metadata
// field and falls back to the span of the recorded steps.
func (v TraceView) TotalLatencyMS() int64 {
	if v.meta != nil {
		switch t := v.meta["totalLatency"].(type) {
		case float64:
			return int64(t)
		case int64:
			return t
		case int:
			return int64(t)
		}
	}
	if len(v.steps) == 0 {
		return 0
	}
	first := v.steps[0].StartTime
	last := first
	for _, s := range v.steps {
		if s.EndTime > last {
			last = s.EndTime
		}
	}
	return last - first
}

// Summaries returns one row per step for list rendering.
func (v TraceView) Summaries() []StepSummary {
	out := make([]StepSummary, len(v.steps))
	for i, s := range v.steps {
		row := StepSummary{
			Name:       s.Name,
			Status:     s.Status,
			DurationMS: s.Duration,
		}
		if s.ResultCount != nil {
			row.ResultCount = *s.ResultCount
		}
		out[i] = row
	}
	return out
}

// Failed returns the first failed step, if any.
func (v TraceView) Failed() (stream.TraceStep, bool) {
	for _, s := range v.steps {
		if s.Status == stream.StepError {
			return s, true
		}
	}
	return stream.TraceStep{}, false
}
