package ir

import (
	"slices"
	"time"
)

// TaskState is the lifecycle state of one hired task instance.
type TaskState string

// Task states. Failed and canceled are terminal for a task instance.
const (
	TaskSubmitted     TaskState = "submitted"
	TaskWorking       TaskState = "working"
	TaskInputRequired TaskState = "input-required"
	TaskCompleted     TaskState = "completed"
	TaskFailed        TaskState = "failed"
	TaskCanceled      TaskState = "canceled"
)

// TaskStatus is the operator-visible status of a task.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is one hired task instance. A new instance is created on every hire.
type Task struct {
	ID     string     `json:"id"`
	Status TaskStatus `json:"status"`
}

// OnboardingStatus is the overall status of an onboarding contract.
type OnboardingStatus string

const (
	OnboardingInProgress OnboardingStatus = "in_progress"
	OnboardingCompleted  OnboardingStatus = "completed"
	OnboardingFailed     OnboardingStatus = "failed"
	OnboardingCanceled   OnboardingStatus = "canceled"
)

// StepStatus is the status of one onboarding step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepActive    StepStatus = "active"
	StepCompleted StepStatus = "completed"
)

// OnboardingStep is one numbered step of an onboarding contract.
type OnboardingStep struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Status StepStatus `json:"status"`
}

// OnboardingContract is the structured onboarding projection rendered to the
// operator. Revision strictly increases on every live rebuild.
type OnboardingContract struct {
	Status       OnboardingStatus `json:"status"`
	Steps        []OnboardingStep `json:"steps"`
	ActiveStepID string           `json:"active_step_id,omitempty"` // Empty once finalized
	Revision     int64            `json:"revision"`
}

// Finalized reports whether the contract has left in_progress.
func (c *OnboardingContract) Finalized() bool {
	return c != nil && c.Status != OnboardingInProgress
}

// FlowEventKind categorises capital movements in the flow log.
type FlowEventKind string

const (
	FlowHire       FlowEventKind = "hire"       // New capital committed; starts a lifecycle
	FlowWithdrawal FlowEventKind = "withdrawal" // Capital returned to the operator
	FlowFee        FlowEventKind = "fee"        // Fees paid out of committed capital
)

// FlowLogEvent is one entry of the append-only capital ledger.
type FlowLogEvent struct {
	ID        string        `json:"id"` // Content-addressed (FlowEventID)
	Kind      FlowEventKind `json:"kind"`
	USDValue  float64       `json:"usd_value"`
	Timestamp time.Time     `json:"timestamp"`
	ContextID string        `json:"context_id"`
	ChainID   int64         `json:"chain_id"`
}

// PositionValue is the USD valuation of one held position.
type PositionValue struct {
	Symbol string  `json:"symbol"`
	USD    float64 `json:"usd"`
}

// NavSnapshot is a point-in-time valuation of all held positions.
type NavSnapshot struct {
	ID        string          `json:"id"` // Content-addressed (NavSnapshotID)
	ContextID string          `json:"context_id"`
	ChainID   int64           `json:"chain_id"`
	TotalUSD  float64         `json:"total_usd"`
	Positions []PositionValue `json:"positions,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AccountingState holds the ledger logs and the lifecycle-scoped metrics
// derived from them. Only the accounting package writes the metric fields.
type AccountingState struct {
	NavSnapshots         []NavSnapshot  `json:"nav_snapshots"`
	FlowLog              []FlowLogEvent `json:"flow_log"`
	LatestNavSnapshot    *NavSnapshot   `json:"latest_nav_snapshot,omitempty"`
	LifecycleStart       *time.Time     `json:"lifecycle_start,omitempty"`
	InitialAllocationUSD float64        `json:"initial_allocation_usd"`
	PositionsUSD         float64        `json:"positions_usd"`
	CashUSD              float64        `json:"cash_usd"`
	AumUSD               float64        `json:"aum_usd"`
	LifetimePnlUSD       float64        `json:"lifetime_pnl_usd"`
	LifetimeReturnPct    *float64       `json:"lifetime_return_pct,omitempty"` // nil when nothing was allocated
	HighWaterMarkUSD     float64        `json:"high_water_mark_usd"`
	APY                  *float64       `json:"apy,omitempty"`
	LastUpdated          *time.Time     `json:"last_updated,omitempty"`
}

// Transaction is one entry of the operator-visible transaction history.
type Transaction struct {
	ID        string    `json:"id"`
	Cycle     int64     `json:"cycle"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Pool is one eligible entry of the pool catalog.
type Pool struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	ChainID int64  `json:"chain_id"`
}

// Profile describes the hired agent.
type Profile struct {
	AgentName string `json:"agent_name"`
	ChainID   int64  `json:"chain_id"`
	Pools     []Pool `json:"pools,omitempty"`
}

// SetupInput is the operator's answer to the setup interrupt.
type SetupInput struct {
	WalletAddress    string  `json:"wallet_address"`
	FundingAmountUSD float64 `json:"funding_amount_usd"`
	PoolAddress      string  `json:"pool_address,omitempty"`
}

// FundingTokenInput is the operator's answer to the funding-token interrupt.
type FundingTokenInput struct {
	TokenAddress string `json:"token_address"`
}

// SignedDelegation is one delegation signed by the operator's wallet.
type SignedDelegation struct {
	Delegate  string `json:"delegate"`
	Authority string `json:"authority"`
	Signature string `json:"signature"`
}

// DelegationBundle is the set of signed delegations handed to the agent.
type DelegationBundle struct {
	Delegations []SignedDelegation `json:"delegations"`
	Digest      string             `json:"digest"` // Keccak-256 of the canonical bundle
}

// OperatorConfig is prepared once every onboarding input is present.
type OperatorConfig struct {
	WalletAddress       string `json:"wallet_address"` // EIP-55 checksummed
	FundingTokenAddress string `json:"funding_token_address,omitempty"`
	PoolAddress         string `json:"pool_address,omitempty"`
	ChainID             int64  `json:"chain_id"`
	DelegationDigest    string `json:"delegation_digest,omitempty"`
}

// OnboardingInputs collects what the operator has supplied so far.
type OnboardingInputs struct {
	Setup        *SetupInput        `json:"setup,omitempty"`
	FundingToken *FundingTokenInput `json:"funding_token,omitempty"`
	Delegations  *DelegationBundle  `json:"delegations,omitempty"`
	Operator     *OperatorConfig    `json:"operator,omitempty"`
}

// Metrics are per-thread cycle counters.
type Metrics struct {
	Iteration   int64      `json:"iteration"`
	LastCycleAt *time.Time `json:"last_cycle_at,omitempty"`
}

// Message is one element of the append-only inbound message list.
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PrivateState is execution-only state. It is checkpointed but never rendered.
type PrivateState struct {
	Bootstrapped                bool   `json:"bootstrapped"`
	LastAppliedClientMutationID string `json:"last_applied_client_mutation_id,omitempty"`
	PollIntervalSeconds         int    `json:"poll_interval_seconds"`
	PendingInterrupt            string `json:"pending_interrupt,omitempty"`
}

// ViewState is everything rendered to the operator.
type ViewState struct {
	Task         *Task               `json:"task,omitempty"`
	Onboarding   *OnboardingContract `json:"onboarding,omitempty"`
	Profile      Profile             `json:"profile"`
	Setup        OnboardingInputs    `json:"setup"`
	Accounting   AccountingState     `json:"accounting"`
	Transactions []Transaction       `json:"transactions"`
	Metrics      Metrics             `json:"metrics"`
	HaltReason   string              `json:"halt_reason,omitempty"`
}

// WorkflowState is the full state of one thread.
type WorkflowState struct {
	Private PrivateState `json:"private"`
	View    ViewState    `json:"view"`
}

// Project returns the outward projection of the state. Private fields are
// never part of it.
func (s WorkflowState) Project() ViewState {
	return s.Clone().View
}

// Clone returns a deep copy so callers can derive a new state without
// mutating the one they were handed.
func (s WorkflowState) Clone() WorkflowState {
	out := s
	v := &out.View

	if s.View.Task != nil {
		t := *s.View.Task
		v.Task = &t
	}
	if s.View.Onboarding != nil {
		c := *s.View.Onboarding
		c.Steps = slices.Clone(c.Steps)
		v.Onboarding = &c
	}
	v.Profile.Pools = slices.Clone(s.View.Profile.Pools)
	v.Setup = s.View.Setup.clone()
	v.Accounting = s.View.Accounting.Clone()
	v.Transactions = slices.Clone(s.View.Transactions)
	v.Metrics.LastCycleAt = cloneTime(s.View.Metrics.LastCycleAt)
	return out
}

func (in OnboardingInputs) clone() OnboardingInputs {
	out := OnboardingInputs{}
	if in.Setup != nil {
		x := *in.Setup
		out.Setup = &x
	}
	if in.FundingToken != nil {
		x := *in.FundingToken
		out.FundingToken = &x
	}
	if in.Delegations != nil {
		x := *in.Delegations
		x.Delegations = slices.Clone(x.Delegations)
		out.Delegations = &x
	}
	if in.Operator != nil {
		x := *in.Operator
		out.Operator = &x
	}
	return out
}

// Clone returns a deep copy of the accounting state.
func (a AccountingState) Clone() AccountingState {
	out := a
	out.NavSnapshots = make([]NavSnapshot, len(a.NavSnapshots))
	for i, snap := range a.NavSnapshots {
		out.NavSnapshots[i] = snap.Clone()
	}
	out.FlowLog = slices.Clone(a.FlowLog)
	if out.FlowLog == nil {
		out.FlowLog = []FlowLogEvent{}
	}
	if a.LatestNavSnapshot != nil {
		snap := a.LatestNavSnapshot.Clone()
		out.LatestNavSnapshot = &snap
	}
	out.LifecycleStart = cloneTime(a.LifecycleStart)
	out.LifetimeReturnPct = cloneFloat(a.LifetimeReturnPct)
	out.APY = cloneFloat(a.APY)
	out.LastUpdated = cloneTime(a.LastUpdated)
	return out
}

// Clone returns a deep copy of the snapshot.
func (n NavSnapshot) Clone() NavSnapshot {
	n.Positions = slices.Clone(n.Positions)
	return n
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
