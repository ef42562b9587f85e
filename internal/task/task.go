// Package task owns the task-status lifecycle of a hired agent.
//
// Every change of ir.TaskState goes through this package: Apply for explicit
// transitions made by workflow nodes, and ResolveSummary for the end-of-cycle
// status. No other package assigns TaskStatus.State.
package task

import (
	"fmt"
	"time"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

// Operator-visible messages produced by the lifecycle.
const (
	HiredMessage              = "Agent hired. Starting onboarding."
	AwaitingDelegationMessage = "Waiting for delegation approval to continue onboarding."
	OnboardingCompleteMessage = "Onboarding complete. Strategy is running."
	CycleSummarizedMessage    = "Cycle summarized."
	FiredMessage              = "Agent fired. Strategy stopped."
)

var transitions = map[ir.TaskState][]ir.TaskState{
	ir.TaskSubmitted:     {ir.TaskWorking, ir.TaskInputRequired, ir.TaskFailed, ir.TaskCanceled},
	ir.TaskWorking:       {ir.TaskWorking, ir.TaskInputRequired, ir.TaskCompleted, ir.TaskFailed, ir.TaskCanceled},
	ir.TaskInputRequired: {ir.TaskInputRequired, ir.TaskWorking, ir.TaskFailed, ir.TaskCanceled},
}

// TransitionError reports a state change the lifecycle does not allow.
type TransitionError struct {
	From ir.TaskState
	To   ir.TaskState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid task transition %s -> %s", e.From, e.To)
}

// IsTerminal reports whether no further transition is possible from s.
// A new task instance is created at the next hire instead.
func IsTerminal(s ir.TaskState) bool {
	switch s {
	case ir.TaskCompleted, ir.TaskFailed, ir.TaskCanceled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
// Self-edges on non-terminal states are allowed so a node can refresh the
// message (e.g. a renewed input-required prompt after a validation error).
func CanTransition(from, to ir.TaskState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// New creates a fresh task instance in the submitted state.
func New(id string, now time.Time) ir.Task {
	return ir.Task{
		ID: id,
		Status: ir.TaskStatus{
			State:     ir.TaskSubmitted,
			Message:   HiredMessage,
			Timestamp: now.UTC(),
		},
	}
}

// Apply returns t moved to state to with the given message.
func Apply(t ir.Task, to ir.TaskState, message string, now time.Time) (ir.Task, error) {
	if !CanTransition(t.Status.State, to) {
		return t, &TransitionError{From: t.Status.State, To: to}
	}
	t.Status = ir.TaskStatus{State: to, Message: message, Timestamp: now.UTC()}
	return t, nil
}
