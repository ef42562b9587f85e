package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/accounting"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

// RecomputeReport is the result of re-deriving a thread's accounting.
//
// Deterministic reports whether recomputing the checkpointed accounting
// twice gives byte-identical JSON. Drift reports that the metrics stored in
// the checkpoint differ from a recompute of its own logs; APY depends on the
// recompute time and is left out. LedgerMismatches lists the balance fields
// where a rebuild from the history store alone disagrees with the
// checkpoint. The high-water mark is path dependent and not compared there.
type RecomputeReport struct {
	ThreadID         string             `json:"thread_id"`
	Seq              int64              `json:"seq"`
	Deterministic    bool               `json:"deterministic"`
	Drift            bool               `json:"drift"`
	LedgerMismatches []string           `json:"ledger_mismatches"`
	Checkpointed     ir.AccountingState `json:"checkpointed"`
	Rebuilt          ir.AccountingState `json:"rebuilt"`
}

// OK reports whether the recompute found no problem.
func (r RecomputeReport) OK() bool {
	return r.Deterministic && !r.Drift && len(r.LedgerMismatches) == 0
}

// Recompute re-derives the accounting of threadID at now. It never writes.
func (e *Engine) Recompute(ctx context.Context, threadID string, now time.Time) (RecomputeReport, error) {
	state, seq, err := e.State(ctx, threadID)
	if err != nil {
		return RecomputeReport{}, err
	}
	if seq == 0 {
		return RecomputeReport{}, NewCheckpointError(threadID, "load checkpoint", fmt.Errorf("thread not found"))
	}

	first := accounting.Recompute(state.View.Accounting, now)
	second := accounting.Recompute(first, now)

	a, err := json.Marshal(first)
	if err != nil {
		return RecomputeReport{}, fmt.Errorf("recompute %s: %w", threadID, err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		return RecomputeReport{}, fmt.Errorf("recompute %s: %w", threadID, err)
	}

	drift, err := drifted(state.View.Accounting, first)
	if err != nil {
		return RecomputeReport{}, fmt.Errorf("recompute %s: %w", threadID, err)
	}

	u, err := e.store.LoadUpdate(ctx, threadID)
	if err != nil {
		return RecomputeReport{}, NewCheckpointError(threadID, "load history", err)
	}
	rebuilt := accounting.Apply(ir.AccountingState{}, u, e.core.Config().Limits, now)

	report := RecomputeReport{
		ThreadID:         threadID,
		Seq:              seq,
		Deterministic:    bytes.Equal(a, b),
		Drift:            drift,
		LedgerMismatches: ledgerMismatches(first, rebuilt),
		Checkpointed:     first,
		Rebuilt:          rebuilt,
	}
	e.log.Info("accounting recomputed",
		"thread", threadID,
		"deterministic", report.Deterministic,
		"drift", report.Drift,
		"mismatches", len(report.LedgerMismatches),
	)
	return report, nil
}

// drifted reports whether stored and recomputed differ in anything but APY.
func drifted(stored, recomputed ir.AccountingState) (bool, error) {
	stored, recomputed = stored.Clone(), recomputed.Clone()
	stored.APY, recomputed.APY = nil, nil
	a, err := json.Marshal(stored)
	if err != nil {
		return false, err
	}
	b, err := json.Marshal(recomputed)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(a, b), nil
}

// ledgerMismatches compares the balance fields that depend only on the
// ledger contents.
func ledgerMismatches(want, got ir.AccountingState) []string {
	fields := []struct {
		name string
		a, b float64
	}{
		{"initial_allocation_usd", want.InitialAllocationUSD, got.InitialAllocationUSD},
		{"positions_usd", want.PositionsUSD, got.PositionsUSD},
		{"cash_usd", want.CashUSD, got.CashUSD},
		{"aum_usd", want.AumUSD, got.AumUSD},
		{"lifetime_pnl_usd", want.LifetimePnlUSD, got.LifetimePnlUSD},
	}
	out := []string{}
	for _, f := range fields {
		if f.a != f.b {
			out = append(out, f.name)
		}
	}
	return out
}
