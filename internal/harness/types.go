package harness

import "github.com/roach88/playledger/internal/record"

// TraceEvent is one executed flow step.
type TraceEvent struct {
	Seq     int            `json:"seq"`
	Action  string         `json:"action"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome"`
	Result  map[string]any `json:"result,omitempty"`

	// Err is the failure behind an "error" outcome. Not part of the trace.
	Err error `json:"-"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Rows is the number of stored rows for the key after the flow, counted
	// before the final load repairs anything.
	Rows int `json:"rows"`

	// Record is the canonical record after the flow, nil when none exists.
	Record *record.CanonicalRecord `json:"record,omitempty"`

	// Standings is the module leaderboard after the flow.
	Standings []record.Standing `json:"standings"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Standings: []record.Standing{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a trace event, numbering it.
func (r *Result) AddEvent(ev TraceEvent) TraceEvent {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
	return ev
}
