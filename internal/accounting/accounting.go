package accounting

import (
	"math"
	"slices"
	"time"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/history"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

// MinElapsedDays floors the lifecycle age used for APY so same-day
// lifecycles do not blow up the exponent.
const MinElapsedDays = 1.0

const daysPerYear = 365.0

// Update is the set of ledger entries produced by one cycle.
type Update struct {
	FlowEvents []ir.FlowLogEvent
	Snapshots  []ir.NavSnapshot
}

// Empty reports whether u carries nothing to append.
func (u Update) Empty() bool {
	return len(u.FlowEvents) == 0 && len(u.Snapshots) == 0
}

// Apply appends u to the bounded logs and recomputes the metrics.
// Entries whose ID is already in the log are skipped, so replaying the same
// cycle does not append twice.
func Apply(state ir.AccountingState, u Update, limits history.Limits, now time.Time) ir.AccountingState {
	out := state.Clone()

	events := freshEvents(out.FlowLog, u.FlowEvents)
	snaps := freshSnapshots(out.NavSnapshots, u.Snapshots)

	out.FlowLog = history.Append(out.FlowLog, events, limits.FlowLog)
	out.NavSnapshots = history.Append(out.NavSnapshots, snaps, limits.NavSnapshots)

	for _, snap := range snaps {
		if out.LastUpdated == nil || snap.Timestamp.After(*out.LastUpdated) {
			ts := snap.Timestamp
			out.LastUpdated = &ts
		}
	}

	return Recompute(out, now)
}

// Recompute derives every metric field of state from its logs.
func Recompute(state ir.AccountingState, now time.Time) ir.AccountingState {
	out := state.Clone()

	hire, found := latestHire(out.FlowLog)
	newLifecycle := false
	if found {
		start := hire.Timestamp
		newLifecycle = out.LifecycleStart == nil || !out.LifecycleStart.Equal(start)
		out.LifecycleStart = &start
		out.InitialAllocationUSD = hire.USDValue
	}
	// With no hire in the log the stored lifecycle is kept; it may have been
	// evicted by retention.
	if out.LifecycleStart == nil {
		out.InitialAllocationUSD = 0
	}

	out.PositionsUSD = 0
	if latest := latestSnapshot(out); latest != nil {
		out.LatestNavSnapshot = latest
		if out.LifecycleStart == nil || !latest.Timestamp.Before(*out.LifecycleStart) {
			out.PositionsUSD = latest.TotalUSD
		}
	}

	outflows := outflowsSince(out.FlowLog, out.LifecycleStart)
	out.CashUSD = math.Max(0, out.InitialAllocationUSD-outflows-out.PositionsUSD)
	out.AumUSD = out.PositionsUSD + out.CashUSD

	if newLifecycle {
		out.HighWaterMarkUSD = out.AumUSD
	} else {
		out.HighWaterMarkUSD = math.Max(out.HighWaterMarkUSD, out.AumUSD)
	}

	out.LifetimePnlUSD = out.AumUSD - out.InitialAllocationUSD
	out.LifetimeReturnPct = nil
	out.APY = nil
	if out.InitialAllocationUSD > 0 {
		ret := out.LifetimePnlUSD / out.InitialAllocationUSD
		out.LifetimeReturnPct = &ret
		if out.LifecycleStart != nil {
			out.APY = annualize(ret, ElapsedDays(*out.LifecycleStart, now))
		}
	}

	return out
}

// ElapsedDays returns the lifecycle age in days, floored at MinElapsedDays.
func ElapsedDays(start, now time.Time) float64 {
	days := now.Sub(start).Hours() / 24
	if days < MinElapsedDays {
		return MinElapsedDays
	}
	return days
}

// annualize compounds ret over days into a yearly rate. Returns nil when the
// result is not a finite number.
func annualize(ret, days float64) *float64 {
	growth := 1 + ret
	var apy float64
	if growth <= 0 {
		apy = -1
	} else {
		apy = math.Pow(growth, daysPerYear/days) - 1
	}
	if math.IsNaN(apy) || math.IsInf(apy, 0) {
		return nil
	}
	return &apy
}

// latestHire returns the hire event with the latest timestamp. Ties go to
// the later log entry.
func latestHire(log []ir.FlowLogEvent) (ir.FlowLogEvent, bool) {
	var best ir.FlowLogEvent
	found := false
	for _, ev := range log {
		if ev.Kind != ir.FlowHire {
			continue
		}
		if !found || !ev.Timestamp.Before(best.Timestamp) {
			best = ev
			found = true
		}
	}
	return best, found
}

// latestSnapshot returns the newest snapshot across the log and the stored
// latest snapshot.
func latestSnapshot(state ir.AccountingState) *ir.NavSnapshot {
	var best *ir.NavSnapshot
	if state.LatestNavSnapshot != nil {
		s := state.LatestNavSnapshot.Clone()
		best = &s
	}
	for _, snap := range state.NavSnapshots {
		if best == nil || snap.Timestamp.After(best.Timestamp) {
			s := snap.Clone()
			best = &s
		}
	}
	return best
}

// outflowsSince sums withdrawals and fees at or after start.
func outflowsSince(log []ir.FlowLogEvent, start *time.Time) float64 {
	total := 0.0
	for _, ev := range log {
		if ev.Kind != ir.FlowWithdrawal && ev.Kind != ir.FlowFee {
			continue
		}
		if start != nil && ev.Timestamp.Before(*start) {
			continue
		}
		total += ev.USDValue
	}
	return total
}

func freshEvents(log, items []ir.FlowLogEvent) []ir.FlowLogEvent {
	var out []ir.FlowLogEvent
	for _, ev := range items {
		seen := func(e ir.FlowLogEvent) bool { return e.ID == ev.ID }
		if ev.ID != "" && (slices.ContainsFunc(log, seen) || slices.ContainsFunc(out, seen)) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func freshSnapshots(log, items []ir.NavSnapshot) []ir.NavSnapshot {
	var out []ir.NavSnapshot
	for _, snap := range items {
		seen := func(s ir.NavSnapshot) bool { return s.ID == snap.ID }
		if snap.ID != "" && (slices.ContainsFunc(log, seen) || slices.ContainsFunc(out, seen)) {
			continue
		}
		out = append(out, snap.Clone())
	}
	return out
}
