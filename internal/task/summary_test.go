package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

func TestResolveSummary(t *testing.T) {
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name     string
		input    SummaryInput
		expected ir.TaskStatus
	}{
		{
			name: "halt reason fails the task",
			input: SummaryInput{
				Current:    ir.TaskStatus{State: ir.TaskWorking, Message: "x", Timestamp: earlier},
				HaltReason: "No eligible pools found",
				Now:        now,
			},
			expected: ir.TaskStatus{State: ir.TaskFailed, Message: "No eligible pools found", Timestamp: now},
		},
		{
			name: "halt wins over stale wait",
			input: SummaryInput{
				Current:                 ir.TaskStatus{State: ir.TaskInputRequired, Message: AwaitingDelegationMessage},
				HaltReason:              "halted",
				OperatorConfigPresent:   true,
				DelegationBundlePresent: true,
				Now:                     now,
			},
			expected: ir.TaskStatus{State: ir.TaskFailed, Message: "halted", Timestamp: now},
		},
		{
			name: "stale delegation wait is cleared",
			input: SummaryInput{
				Current:                 ir.TaskStatus{State: ir.TaskInputRequired, Message: "Waiting for Delegation Approval", Timestamp: earlier},
				OperatorConfigPresent:   true,
				DelegationBundlePresent: true,
				Now:                     now,
			},
			expected: ir.TaskStatus{State: ir.TaskWorking, Message: OnboardingCompleteMessage, Timestamp: now},
		},
		{
			name: "wait kept while operator config missing",
			input: SummaryInput{
				Current:                 ir.TaskStatus{State: ir.TaskInputRequired, Message: AwaitingDelegationMessage, Timestamp: earlier},
				DelegationBundlePresent: true,
				Now:                     now,
			},
			expected: ir.TaskStatus{State: ir.TaskInputRequired, Message: AwaitingDelegationMessage, Timestamp: earlier},
		},
		{
			name: "wait kept while bundle missing",
			input: SummaryInput{
				Current:               ir.TaskStatus{State: ir.TaskInputRequired, Message: AwaitingDelegationMessage, Timestamp: earlier},
				OperatorConfigPresent: true,
				Now:                   now,
			},
			expected: ir.TaskStatus{State: ir.TaskInputRequired, Message: AwaitingDelegationMessage, Timestamp: earlier},
		},
		{
			name: "other input-required prompt is preserved",
			input: SummaryInput{
				Current:                 ir.TaskStatus{State: ir.TaskInputRequired, Message: "Provide strategy setup", Timestamp: earlier},
				OperatorConfigPresent:   true,
				DelegationBundlePresent: true,
				Now:                     now,
			},
			expected: ir.TaskStatus{State: ir.TaskInputRequired, Message: "Provide strategy setup", Timestamp: earlier},
		},
		{
			name: "completed is not downgraded",
			input: SummaryInput{
				Current: ir.TaskStatus{State: ir.TaskCompleted, Message: "done", Timestamp: earlier},
				Now:     now,
			},
			expected: ir.TaskStatus{State: ir.TaskCompleted, Message: "done", Timestamp: earlier},
		},
		{
			name: "externally canceled is preserved",
			input: SummaryInput{
				Current: ir.TaskStatus{State: ir.TaskCanceled, Message: FiredMessage, Timestamp: earlier},
				Now:     now,
			},
			expected: ir.TaskStatus{State: ir.TaskCanceled, Message: FiredMessage, Timestamp: earlier},
		},
		{
			name: "working gets generic summary",
			input: SummaryInput{
				Current: ir.TaskStatus{State: ir.TaskWorking, Message: "Cycle 3 done", Timestamp: earlier},
				Now:     now,
			},
			expected: ir.TaskStatus{State: ir.TaskWorking, Message: CycleSummarizedMessage, Timestamp: now},
		},
		{
			name: "submitted gets generic summary",
			input: SummaryInput{
				Current: ir.TaskStatus{State: ir.TaskSubmitted, Message: HiredMessage},
				Now:     now,
			},
			expected: ir.TaskStatus{State: ir.TaskWorking, Message: CycleSummarizedMessage, Timestamp: now},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveSummary(tt.input))
		})
	}
}

func TestSummarizeUsesTaskStatus(t *testing.T) {
	tk := ir.Task{ID: "task-1", Status: ir.TaskStatus{State: ir.TaskInputRequired, Message: AwaitingDelegationMessage}}
	out := Summarize(tk, SummaryInput{
		Current:                 ir.TaskStatus{State: ir.TaskWorking},
		OperatorConfigPresent:   true,
		DelegationBundlePresent: true,
		Now:                     now,
	})

	assert.Equal(t, "task-1", out.ID)
	assert.Equal(t, ir.TaskWorking, out.Status.State)
	assert.Equal(t, OnboardingCompleteMessage, out.Status.Message)
}

func TestIsAwaitingApproval(t *testing.T) {
	assert.True(t, IsAwaitingApproval(AwaitingDelegationMessage))
	assert.True(t, IsAwaitingApproval("still waiting on DELEGATION APPROVAL"))
	assert.False(t, IsAwaitingApproval("Provide strategy setup"))
}
