// Package accounting derives lifecycle-scoped financial metrics from the
// flow log and NAV snapshot history.
//
// A lifecycle spans from one hire event to the next. The high-water mark,
// PnL and APY are scoped to the current lifecycle: when a newer hire event
// appears, the high-water mark resets to the new AUM.
//
// Recompute is total and idempotent. Running it twice on the same inputs
// yields identical output, which crash-recovery replay depends on.
package accounting
