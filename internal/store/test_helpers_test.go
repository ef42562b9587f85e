package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestState returns a small but non-trivial workflow state.
func createTestState(taskID string) ir.WorkflowState {
	start := testNow
	return ir.WorkflowState{
		Private: ir.PrivateState{
			Bootstrapped:                true,
			LastAppliedClientMutationID: "m-1",
			PollIntervalSeconds:         30,
		},
		View: ir.ViewState{
			Task: &ir.Task{ID: taskID, Status: ir.TaskStatus{State: ir.TaskWorking, Message: "ok", Timestamp: testNow}},
			Profile: ir.Profile{
				AgentName: "clmm",
				ChainID:   42161,
			},
			Accounting: ir.AccountingState{
				NavSnapshots:         []ir.NavSnapshot{},
				FlowLog:              []ir.FlowLogEvent{ir.MustFlowEvent(ir.FlowHire, taskID, 42161, testNow, 100)},
				LifecycleStart:       &start,
				InitialAllocationUSD: 100,
				CashUSD:              100,
				AumUSD:               100,
				HighWaterMarkUSD:     100,
			},
			Transactions: []ir.Transaction{},
		},
	}
}
