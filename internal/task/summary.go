package task

import (
	"strings"
	"time"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

// awaitingApprovalWording identifies the prompt left behind by the
// delegation interrupt.
const awaitingApprovalWording = "delegation approval"

// SummaryInput is what the summarize step knows at the end of a cycle.
type SummaryInput struct {
	Current                 ir.TaskStatus
	HaltReason              string
	OperatorConfigPresent   bool
	DelegationBundlePresent bool
	Now                     time.Time
}

// IsAwaitingApproval reports whether message is the delegation wait prompt.
func IsAwaitingApproval(message string) bool {
	return strings.Contains(strings.ToLower(message), awaitingApprovalWording)
}

// ResolveSummary computes the end-of-cycle status. Rules in priority order:
//
//  1. a halt reason fails the task with that reason as message
//  2. a stale input-required wait whose cause is satisfied goes back to working
//  3. any state other than working or submitted is preserved verbatim
//  4. otherwise the task is working with a generic summary message
//
// Summarize can be re-entered without passing the node that clears
// input-required, so rule 2 reads the wait from the status itself.
func ResolveSummary(in SummaryInput) ir.TaskStatus {
	now := in.Now.UTC()

	if in.HaltReason != "" {
		return ir.TaskStatus{State: ir.TaskFailed, Message: in.HaltReason, Timestamp: now}
	}

	if in.Current.State == ir.TaskInputRequired &&
		in.OperatorConfigPresent &&
		in.DelegationBundlePresent &&
		IsAwaitingApproval(in.Current.Message) {
		return ir.TaskStatus{State: ir.TaskWorking, Message: OnboardingCompleteMessage, Timestamp: now}
	}

	switch in.Current.State {
	case ir.TaskWorking, ir.TaskSubmitted, "":
	default:
		return in.Current
	}

	return ir.TaskStatus{State: ir.TaskWorking, Message: CycleSummarizedMessage, Timestamp: now}
}

// Summarize applies ResolveSummary to t.
func Summarize(t ir.Task, in SummaryInput) ir.Task {
	in.Current = t.Status
	t.Status = ResolveSummary(in)
	return t
}
