package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/history"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/interrupt"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/onboarding"
)

// DefaultPollIntervalSeconds is the cycle cadence recorded on bootstrap.
const DefaultPollIntervalSeconds = 30

// Config is the static description of one agent.
type Config struct {
	AgentName           string
	ChainID             int64
	Variant             onboarding.Variant
	Limits              history.Limits
	PollIntervalSeconds int
}

// Validate checks the fields a tick depends on.
func (c Config) Validate() error {
	if c.AgentName == "" {
		return errors.New("agent name is required")
	}
	if c.ChainID <= 0 {
		return errors.New("chain id must be positive")
	}
	if c.PollIntervalSeconds < 0 {
		return errors.New("poll interval must not be negative")
	}
	return nil
}

// CycleInput is what the trading cycle sees.
type CycleInput struct {
	ContextID  string
	Iteration  int64
	Operator   ir.OperatorConfig
	Pools      []ir.Pool
	Accounting ir.AccountingState
	Now        time.Time
}

// CycleOutput is what one trading cycle produced.
type CycleOutput struct {
	Transactions []ir.Transaction
	FlowEvents   []ir.FlowLogEvent
	Snapshot     *ir.NavSnapshot
	HaltReason   string // non-empty stops the strategy for this lifecycle
}

// CycleRunner executes one trading cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, in CycleInput) (CycleOutput, error)
}

// CatalogLoader returns the eligible pools for a chain.
type CatalogLoader interface {
	LoadPools(ctx context.Context, chainID int64) ([]ir.Pool, error)
}

// Clock supplies wall-clock time to a tick.
type Clock interface {
	Now() time.Time
}

// IDGenerator creates task instance ids.
type IDGenerator interface {
	Generate() string
}

// Deps are the external collaborators of a Core.
type Deps struct {
	Cycle     CycleRunner
	Catalog   CatalogLoader
	Suspender interrupt.Suspender // nil: resume from Input.Resume
	Clock     Clock
	IDs       IDGenerator
	Logger    *slog.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type randomIDs struct{}

func (randomIDs) Generate() string { return uuid.NewString() }

// withDefaults fills unset dependencies.
func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = systemClock{}
	}
	if d.IDs == nil {
		d.IDs = randomIDs{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}
