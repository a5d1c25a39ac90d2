// Package trace records ordered pipeline execution steps on the server side.
// The recorded steps are the wire trace carried by the metadata stream event
// and by the direct search response.
package trace

import (
	"time"

	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

// Recorder builds an ordered trace for one request. Steps are appended and
// updated in execution order; a step that reached complete or error is never
// re-opened. Not safe for concurrent use; each request owns its recorder.
type Recorder struct {
	start time.Time
	now   func() time.Time
	steps []stream.TraceStep
}

// New creates a recorder anchored at the current time.
func New() *Recorder {
	return &Recorder{start: time.Now(), now: time.Now}
}

// NewAt creates a recorder with an injected clock. Test hook.
func NewAt(start time.Time, now func() time.Time) *Recorder {
	return &Recorder{start: start, now: now}
}

// Begin appends a running step and returns its index.
func (r *Recorder) Begin(name string) int {
	r.steps = append(r.steps, stream.TraceStep{
		Name:      name,
		Status:    stream.StepRunning,
		StartTime: r.sinceStart(),
	})
	return len(r.steps) - 1
}

// Complete closes a running step with optional details.
func (r *Recorder) Complete(i int, details map[string]any) {
	step := r.step(i)
	if step == nil || step.Status != stream.StepRunning {
		return
	}
	step.Status = stream.StepComplete
	step.EndTime = r.sinceStart()
	step.Duration = step.EndTime - step.StartTime
	step.Details = details
}

// AttachResults stores raw tool output on a step for inspection. The count
// mirrors the attached slice so panes displaying either stay consistent.
func (r *Recorder) AttachResults(i int, hits []stream.Hit) {
	step := r.step(i)
	if step == nil {
		return
	}
	n := len(hits)
	step.Results = hits
	step.ResultCount = &n
}

// Fail closes a running step with an error status and the failure message.
func (r *Recorder) Fail(i int, err error) {
	step := r.step(i)
	if step == nil || step.Status != stream.StepRunning {
		return
	}
	step.Status = stream.StepError
	step.EndTime = r.sinceStart()
	step.Duration = step.EndTime - step.StartTime
	step.Details = map[string]any{"error": err.Error()}
}

// FailRunning marks the currently running step, if any, as failed. Returns
// false when no step was running.
func (r *Recorder) FailRunning(err error) bool {
	for i := range r.steps {
		if r.steps[i].Status == stream.StepRunning {
			r.Fail(i, err)
			return true
		}
	}
	return false
}

// Steps returns a copy of the recorded trace.
func (r *Recorder) Steps() []stream.TraceStep {
	out := make([]stream.TraceStep, len(r.steps))
	copy(out, r.steps)
	return out
}

// ElapsedMS returns milliseconds since the request start.
func (r *Recorder) ElapsedMS() int64 {
	return r.sinceStart()
}

func (r *Recorder) sinceStart() int64 {
	return r.now().Sub(r.start).Milliseconds()
}

func (r *Recorder) step(i int) *stream.TraceStep {
	if i < 0 || i >= len(r.steps) {
		return nil
	}
	return &r.steps[i]
}
