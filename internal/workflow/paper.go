package workflow

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

// Paper cycle actions.
const (
	ActionDeploy    = "deploy"
	ActionRebalance = "rebalance"
)

// PaperCycle is a deterministic CycleRunner that simulates a liquidity
// position. The first cycle of a lifecycle deploys the funded amount; later
// cycles revalue the position by DriftPct.
type PaperCycle struct {
	DriftPct float64
}

// RunCycle implements CycleRunner.
func (p PaperCycle) RunCycle(_ context.Context, in CycleInput) (CycleOutput, error) {
	acct := in.Accounting

	base, action := acct.InitialAllocationUSD, ActionDeploy
	if snap := acct.LatestNavSnapshot; snap != nil && acct.LifecycleStart != nil && !snap.Timestamp.Before(*acct.LifecycleStart) {
		base, action = snap.TotalUSD, ActionRebalance
	}
	if base <= 0 {
		return CycleOutput{HaltReason: "Nothing to deploy: the funded amount is zero."}, nil
	}

	total := roundCents(base * (1 + p.DriftPct))
	symbol := poolSymbol(in.Pools, in.Operator.PoolAddress)

	txID, err := ir.TransactionID(in.ContextID, in.Iteration, action, in.Now)
	if err != nil {
		return CycleOutput{}, err
	}
	snap, err := ir.NewNavSnapshot(in.ContextID, in.Operator.ChainID, in.Now, total,
		[]ir.PositionValue{{Symbol: symbol, USD: total}})
	if err != nil {
		return CycleOutput{}, err
	}

	return CycleOutput{
		Transactions: []ir.Transaction{{
			ID:        txID,
			Cycle:     in.Iteration,
			Action:    action,
			Detail:    fmt.Sprintf("%s %.2f USD in %s", action, base, symbol),
			Status:    "simulated",
			Timestamp: in.Now,
		}},
		Snapshot: &snap,
	}, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func poolSymbol(pools []ir.Pool, addr string) string {
	for _, p := range pools {
		if strings.EqualFold(p.Address, addr) {
			return p.Symbol
		}
	}
	return "POSITION"
}

// StaticCatalog serves a fixed pool list. Pools with ChainID 0 are taken to
// belong to the requested chain.
type StaticCatalog struct {
	Pools []ir.Pool
}

// LoadPools implements CatalogLoader.
func (c StaticCatalog) LoadPools(_ context.Context, chainID int64) ([]ir.Pool, error) {
	var out []ir.Pool
	for _, p := range c.Pools {
		if p.ChainID != 0 && p.ChainID != chainID {
			continue
		}
		p.ChainID = chainID
		out = append(out, p)
	}
	return out, nil
}
