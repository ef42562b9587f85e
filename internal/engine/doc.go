// Package engine runs workflow ticks against durable thread state.
//
// ARCHITECTURE:
//
// Single-Writer Instruction Loop:
// Every instruction is processed in one goroutine. For each instruction the
// engine loads the thread's checkpoint, runs workflow.Core.Tick, appends the
// ledger entries the tick produced to the history store, and saves the new
// checkpoint. Threads own disjoint state; serialising them through one loop
// keeps SQLite to a single writer and gives every checkpoint a unique seq.
//
// Instruction Processing Flow:
// 1. Instructions enqueued to a FIFO queue (Enqueue or Submit)
// 2. Engine.Run() dequeues instructions one at a time
// 3. Apply() loads, ticks, appends history, checkpoints
// 4. Submit callers receive the Outcome on a reply channel
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Checkpoints are stamped with a monotonic seq from Clock.Next(). A new
// engine resumes the clock from the store's highest seq, and a commit
// rejected as stale moves it past the stored seq. Wall time is only
// recorded for display.
//
// Crash Replay:
// The ledger entries of a tick and its checkpoint are written in one
// store transaction. A tick whose commit failed left no rows, so running it
// again cannot duplicate ledger entries even though the retry stamps them
// with a later time.
//
// Duplicate Delivery:
// A tick suppressed by the replay guard writes nothing.
package engine
