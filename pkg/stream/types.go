package stream

// Hit is one scored match from the vector store or the orchestration backend.
// ID is opaque (the store may use integers or UUID strings), Score is
// provider-defined and not normalized across search modes, and Payload holds
// the attached record metadata as returned by the store.
type Hit struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

// StepStatus is the lifecycle state of a trace step.
type StepStatus string

// Trace step states. Once a step reaches Complete or Error it is not
// re-opened.
const (
	StepPending  StepStatus = "pending"
	StepRunning  StepStatus = "running"
	StepComplete StepStatus = "complete"
	StepError    StepStatus = "error"
)

// TraceStep is one stage of pipeline execution. Timings are milliseconds
// relative to request start. Results carries raw tool output attached for
// inspection; ResultCount mirrors len(Results) where the producer tracks it.
type TraceStep struct {
	Name        string         `json:"name"`
	Status      StepStatus     `json:"status,omitempty"`
	StartTime   int64          `json:"startTime,omitempty"`
	EndTime     int64          `json:"endTime,omitempty"`
	Duration    int64          `json:"duration,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ResultCount *int           `json:"result_count,omitempty"`
	Results     []Hit          `json:"results,omitempty"`
}
