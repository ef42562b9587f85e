package ir

import (
	"encoding/json"
	"time"
)

// NOTE: These are store-layer types, not part of the workflow state itself.
// Seq is assigned by the store on insert and only orders records within a
// (thread, category) namespace.

// History categories used by the accounting history store.
const (
	CategoryFlowLog      = "flow-log"
	CategoryNavSnapshots = "nav-snapshots"
)

// HistoryRecord is one row of the append-only accounting history.
type HistoryRecord struct {
	ThreadID  string          `json:"thread_id"`
	Category  string          `json:"category"`
	ID        string          `json:"id"` // Content-addressed (FlowEventID / NavSnapshotID)
	Seq       int64           `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Checkpoint is a persisted WorkflowState for one thread.
type Checkpoint struct {
	ThreadID      string        `json:"thread_id"`
	Seq           int64         `json:"seq"` // Logical clock of the tick that produced it
	SchemaVersion string        `json:"schema_version"`
	State         WorkflowState `json:"state"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
