package harness

import "github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"

// TraceEvent records what one tick did.
type TraceEvent struct {
	Step       int      `json:"step"` // 1-based index into the scenario steps
	Command    string   `json:"command,omitempty"`
	Resume     bool     `json:"resume,omitempty"`
	Route      []string `json:"route"`
	TaskState  string   `json:"task_state,omitempty"`
	Interrupt  string   `json:"interrupt,omitempty"`
	Revision   int64    `json:"revision,omitempty"`
	AumUSD     float64  `json:"aum_usd"`
	Seq        int64    `json:"seq"`
	Suppressed bool     `json:"suppressed,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Projection is the outward view of the thread after the last step.
	Projection ir.ViewState `json:"projection"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a tick event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
