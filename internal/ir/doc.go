// Package ir provides the shared record types for the agent workflow core.
//
// This package contains type definitions and value encodings only. All other
// internal packages import ir; ir imports nothing internal, so it stays the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - WorkflowState is split into Private (execution-only) and View (rendered);
//     Project never returns private fields
//   - Flow-log events and NAV snapshots carry content-addressed IDs computed
//     from canonical JSON, so a replayed append is recognisable
//   - USD amounts travel through IRValue as IRDecimal, never as float text
//     produced by a lossy round trip
//   - All JSON tags use snake_case
package ir
