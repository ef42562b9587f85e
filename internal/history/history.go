// Package history implements the bounded append-only logs that back the
// transaction history, NAV snapshot history and flow log.
package history

// Default retention per log. Ledger logs are larger than display logs since
// accounting needs enough history to find lifecycle boundaries.
const (
	DefaultTransactionLimit = 50
	DefaultNavSnapshotLimit = 1000
	DefaultFlowLogLimit     = 1000
)

// Limits configures each log independently. A limit <= 0 disables capping.
type Limits struct {
	Transactions int `yaml:"transactions" json:"transactions"`
	NavSnapshots int `yaml:"nav_snapshots" json:"nav_snapshots"`
	FlowLog      int `yaml:"flow_log" json:"flow_log"`
}

// DefaultLimits returns the default retention for every log.
func DefaultLimits() Limits {
	return Limits{
		Transactions: DefaultTransactionLimit,
		NavSnapshots: DefaultNavSnapshotLimit,
		FlowLog:      DefaultFlowLogLimit,
	}
}

// Append returns the last limit elements of log followed by items.
//
// The result is always a fresh slice; neither input is aliased, so callers
// may keep the previous log around for replay. Relative order is preserved
// and eviction is FIFO. limit <= 0 means unbounded.
func Append[T any](log, items []T, limit int) []T {
	total := len(log) + len(items)
	start := 0
	if limit > 0 && total > limit {
		start = total - limit
	}

	out := make([]T, 0, total-start)
	if start < len(log) {
		out = append(out, log[start:]...)
		out = append(out, items...)
	} else {
		out = append(out, items[start-len(log):]...)
	}
	return out
}
