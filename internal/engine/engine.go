package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/command"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/store"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/workflow"
)

// Outcome is the result of applying one instruction.
type Outcome struct {
	ThreadID string
	Seq      int64 // checkpoint seq; 0 when nothing was written
	Result   workflow.Result
}

// Engine is the single-writer instruction loop.
//
// Thread-safety model:
//   - Enqueue(), Submit(), NewThread(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Apply(): must not run concurrently with Run
type Engine struct {
	store   *store.Store
	core    *workflow.Core
	clock   *Clock
	queue   *instructionQueue
	threads IDGenerator
	now     func() time.Time
	log     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreadIDs sets the generator used by NewThread.
// Default: UUIDv7Generator.
func WithThreadIDs(g IDGenerator) Option {
	return func(e *Engine) {
		e.threads = g
	}
}

// WithWallClock sets the wall clock used for display timestamps.
func WithWallClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates an Engine whose logical clock starts at 0.
func New(s *store.Store, core *workflow.Core, opts ...Option) *Engine {
	return NewWithClock(s, core, NewClock(), opts...)
}

// NewWithClock creates an Engine with a pre-configured clock.
func NewWithClock(s *store.Store, core *workflow.Core, clock *Clock, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		core:    core,
		clock:   clock,
		queue:   newInstructionQueue(),
		threads: UUIDv7Generator{},
		now:     func() time.Time { return time.Now().UTC() },
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open creates an Engine whose clock resumes after the highest checkpoint
// seq already in the store.
func Open(ctx context.Context, s *store.Store, core *workflow.Core, opts ...Option) (*Engine, error) {
	seq, err := s.MaxSeq(ctx)
	if err != nil {
		return nil, NewCheckpointError("", "resume clock", err)
	}
	return NewWithClock(s, core, NewClockAt(seq), opts...), nil
}

// NewThread returns a fresh thread id.
func (e *Engine) NewThread() string {
	return e.threads.Generate()
}

// Enqueue submits an instruction without waiting for its outcome. Failures
// are logged by the Run loop.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ins Instruction) bool {
	return e.queue.Enqueue(queued{ins: ins})
}

// Submit enqueues an instruction and waits for the Run loop to apply it.
func (e *Engine) Submit(ctx context.Context, ins Instruction) (Outcome, error) {
	ch := make(chan reply, 1)
	if !e.queue.Enqueue(queued{ins: ins, reply: ch}) {
		return Outcome{}, errors.New("engine stopped")
	}
	select {
	case r := <-ch:
		return r.outcome, r.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Run starts the single-writer loop.
// Blocks until context is cancelled or Stop() is called and the queue has
// drained.
//
// A failed instruction is logged (and returned to its Submit caller) and
// the loop moves on; the thread keeps its last good checkpoint.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting", "seq", e.clock.Current())

	for {
		item, ok := e.queue.TryDequeue()
		if ok {
			out, err := e.Apply(ctx, item.ins)
			if err != nil {
				e.log.Error("instruction failed",
					"error", err,
					"thread", item.ins.ThreadID,
					"event", "instruction_failed",
				)
			}
			if item.reply != nil {
				item.reply <- reply{outcome: out, err: err}
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue; an empty closed
			// queue ends the loop.
			if e.queue.Len() == 0 && e.stopped() {
				e.log.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

func (e *Engine) stopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

// Stop closes the queue. Run returns once the queued instructions are
// applied.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Apply runs one instruction to completion: load the checkpoint, tick, then
// commit the produced ledger entries and the new checkpoint in one
// transaction.
func (e *Engine) Apply(ctx context.Context, ins Instruction) (Outcome, error) {
	if ins.ThreadID == "" {
		return Outcome{}, &RuntimeError{Code: ErrCodeInvalidInstruction, Message: "thread id is required"}
	}

	state, _, err := e.State(ctx, ins.ThreadID)
	if err != nil {
		return Outcome{}, err
	}

	res, err := e.core.Tick(ctx, state, ins.Input)
	if err != nil {
		var uce *command.UnknownCommandError
		if errors.As(err, &uce) {
			return Outcome{}, NewUnknownCommandError(ins.ThreadID, uce.Name, err)
		}
		return Outcome{}, &RuntimeError{Code: ErrCodeTick, Message: "tick failed", ThreadID: ins.ThreadID, Err: err}
	}

	out := Outcome{ThreadID: ins.ThreadID, Result: res}
	if res.Suppressed {
		e.log.Info("instruction suppressed", "thread", ins.ThreadID)
		return out, nil
	}

	now := e.now()
	seq := e.clock.Next()
	// Ledger rows and checkpoint commit together: a failed save leaves no
	// rows behind for a retry to duplicate.
	if err := e.store.Commit(ctx, res.Appended, ir.Checkpoint{
		ThreadID:      ins.ThreadID,
		Seq:           seq,
		SchemaVersion: ir.SchemaVersion,
		State:         res.State,
		UpdatedAt:     now,
	}); err != nil {
		if errors.Is(err, store.ErrStaleCheckpoint) {
			e.catchUp(ctx, ins.ThreadID)
		}
		return Outcome{}, NewCheckpointError(ins.ThreadID, "commit tick", err)
	}
	out.Seq = seq

	e.log.Info("instruction applied",
		"thread", ins.ThreadID,
		"seq", seq,
		"flow_events", len(res.Appended.FlowEvents),
		"snapshots", len(res.Appended.Snapshots),
		"interrupt", res.Interrupt != nil,
	)
	return out, nil
}

// catchUp moves the clock past a checkpoint another writer saved, so the
// caller's retry gets a seq the store accepts.
func (e *Engine) catchUp(ctx context.Context, threadID string) {
	cp, err := e.store.LoadCheckpoint(ctx, threadID)
	if err != nil {
		e.log.Warn("stale checkpoint: reload failed", "thread", threadID, "error", err)
		return
	}
	e.clock.Observe(cp.Seq)
	e.log.Warn("stale checkpoint: clock moved forward", "thread", threadID, "seq", cp.Seq)
}

// State returns the checkpointed state of a thread and its seq. A thread
// that has never been checkpointed has the zero state and seq 0.
func (e *Engine) State(ctx context.Context, threadID string) (ir.WorkflowState, int64, error) {
	cp, err := e.store.LoadCheckpoint(ctx, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.WorkflowState{}, 0, nil
	}
	if err != nil {
		return ir.WorkflowState{}, 0, NewCheckpointError(threadID, "load checkpoint", err)
	}
	return cp.State, cp.Seq, nil
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Core returns the workflow core the engine ticks.
func (e *Engine) Core() *workflow.Core {
	return e.core
}

// QueueLen returns the number of queued instructions.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// String renders an outcome for logs.
func (o Outcome) String() string {
	return fmt.Sprintf("thread=%s seq=%d suppressed=%t", o.ThreadID, o.Seq, o.Result.Suppressed)
}
