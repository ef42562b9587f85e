package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/accounting"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/command"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/interrupt"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/onboarding"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/task"
)

// Route names a node visited during a tick.
type Route string

const (
	RouteRouter     Route = "router"
	RouteHire       Route = "hire"
	RouteFire       Route = "fire"
	RouteSync       Route = "sync"
	RouteOnboarding Route = "onboarding"
	RouteCycle      Route = "cycle"
	RouteAccounting Route = "accounting"
	RouteSummarize  Route = "summarize"
	RouteNoop       Route = "noop"
)

// Input is one inbound instruction. Resume carries the operator's answer to
// the outstanding interrupt, as a JSON object or a JSON string.
type Input struct {
	Messages []ir.Message
	Resume   json.RawMessage
}

// Result is the outcome of one tick.
type Result struct {
	State      ir.WorkflowState
	Interrupt  *interrupt.Request // non-nil: thread waits for operator input
	Suppressed bool               // duplicate delivery, nothing changed
	Route      []Route
	Appended   accounting.Update // ledger entries produced by this tick
}

// Core runs ticks for one agent configuration.
type Core struct {
	cfg  Config
	deps Deps
}

// New returns a Core. Unset dependencies get defaults.
func New(cfg Config, deps Deps) *Core {
	return &Core{cfg: cfg, deps: deps.withDefaults()}
}

// Config returns the agent configuration.
func (c *Core) Config() Config {
	return c.cfg
}

// tick carries the working copy of the state through the nodes.
type tick struct {
	core      *Core
	ctx       context.Context
	state     ir.WorkflowState
	now       time.Time
	suspender interrupt.Suspender
	log       *slog.Logger

	route    []Route
	update   accounting.Update
	pointer  *onboarding.Pointer
	irq      *interrupt.Request
	restart  bool
	fired    bool
	ranCycle bool
}

// Tick applies one instruction to state and returns the new state. The
// input state is never modified. An unrecognised command is rejected with
// an error wrapping *command.UnknownCommandError and no state change.
//
// When the thread has an outstanding interrupt, Input.Resume answers it and
// the messages are ignored for that tick.
func (c *Core) Tick(ctx context.Context, state ir.WorkflowState, in Input) (Result, error) {
	// A resume continues the suspended onboarding node. The last message is
	// still the instruction that caused the interrupt, so it is not parsed.
	var env command.Envelope
	if len(in.Resume) == 0 || state.Private.PendingInterrupt == "" {
		var err error
		if env, err = command.Parse(in.Messages); err != nil {
			return Result{}, fmt.Errorf("parse instruction: %w", err)
		}
	}

	t := &tick{
		core:  c,
		ctx:   ctx,
		state: state.Clone(),
		now:   c.deps.Clock.Now().UTC(),
		log:   c.deps.Logger,
	}
	t.visit(RouteRouter)

	decision := command.Decide(env, state.Private.LastAppliedClientMutationID)
	t.log.Debug("router",
		"command", commandName(env.Command),
		"mutation_id", env.ClientMutationID,
		"action", decision.Action.String(),
	)

	switch decision.Action {
	case command.ActionSuppress:
		t.log.Info("duplicate instruction suppressed", "mutation_id", env.ClientMutationID)
		return Result{State: state.Clone(), Suppressed: true, Route: []Route{RouteRouter, RouteNoop}}, nil
	case command.ActionNone:
		if state.Private.PendingInterrupt == "" || !t.active() {
			return Result{State: state.Clone(), Route: []Route{RouteRouter, RouteNoop}}, nil
		}
	}

	t.bootstrap()
	if decision.RecordMutationID != "" {
		t.state.Private.LastAppliedClientMutationID = decision.RecordMutationID
	}

	t.suspender = c.deps.Suspender
	if t.suspender == nil {
		var resume json.RawMessage
		if state.Private.PendingInterrupt != "" {
			resume = in.Resume
		}
		t.suspender = interrupt.NewResumed(resume)
	}

	if err := t.run(env.Command); err != nil {
		return Result{}, err
	}

	res := t.result()
	t.log.Info("tick complete",
		"route", routeString(res.Route),
		"task_state", taskState(res.State),
		"interrupt", res.Interrupt != nil,
	)
	return res, nil
}

func (t *tick) run(cmd command.Command) error {
	onboard, cycle := false, false

	switch cmd := cmd.(type) {
	case command.Hire:
		if t.active() {
			t.log.Info("hire ignored: task already running", "task", t.state.View.Task.ID)
			t.visit(RouteNoop)
			return nil
		}
		t.hire(cmd)
		onboard = true
	case command.Fire:
		if !t.active() {
			t.visit(RouteNoop)
			return nil
		}
		if err := t.fire(cmd); err != nil {
			return err
		}
	case command.Sync:
		t.visit(RouteSync)
		return nil
	case command.Cycle:
		if !t.active() {
			t.visit(RouteNoop)
			return nil
		}
		onboard, cycle = true, true
	case nil:
		onboard = true
	}

	if onboard {
		phase, err := t.onboard()
		if err != nil {
			return err
		}
		if t.irq != nil {
			t.buildContract()
			return nil
		}
		cycle = cycle && phase == onboarding.PhaseReady
	}

	if cycle && t.state.View.HaltReason == "" {
		if err := t.cycle(); err != nil {
			return err
		}
	}

	if t.ranCycle || !t.update.Empty() {
		t.account()
	}
	if t.ranCycle || t.fired || t.state.View.HaltReason != "" {
		t.summarize()
	}
	t.buildContract()
	return nil
}

func (t *tick) visit(r Route) {
	t.route = append(t.route, r)
}

func (t *tick) cfg() Config {
	return t.core.cfg
}

func (t *tick) deps() Deps {
	return t.core.deps
}

// active reports whether the thread has a task that can still change.
func (t *tick) active() bool {
	tk := t.state.View.Task
	return tk != nil && !task.IsTerminal(tk.Status.State)
}

func (t *tick) bootstrap() {
	cfg := t.cfg()
	p := &t.state.Private
	if !p.Bootstrapped {
		p.Bootstrapped = true
		p.PollIntervalSeconds = cfg.PollIntervalSeconds
		if p.PollIntervalSeconds == 0 {
			p.PollIntervalSeconds = DefaultPollIntervalSeconds
		}
	}
	t.state.View.Profile.AgentName = cfg.AgentName
	t.state.View.Profile.ChainID = cfg.ChainID
}

func (t *tick) buildContract() {
	view := &t.state.View
	if view.Task == nil {
		return
	}
	view.Onboarding = onboarding.Build(onboarding.BuildInput{
		Pointer:       t.pointer,
		Steps:         onboarding.Steps(t.cfg().Variant),
		Previous:      view.Onboarding,
		SetupComplete: view.Setup.Operator != nil,
		TaskState:     view.Task.Status.State,
		Restart:       t.restart,
	})
}

func (t *tick) result() Result {
	return Result{
		State:     t.state,
		Interrupt: t.irq,
		Route:     t.route,
		Appended:  t.update,
	}
}

func commandName(cmd command.Command) string {
	if cmd == nil {
		return ""
	}
	return string(cmd.Name())
}

func routeString(route []Route) string {
	parts := make([]string, len(route))
	for i, r := range route {
		parts[i] = string(r)
	}
	return strings.Join(parts, ">")
}

func taskState(s ir.WorkflowState) string {
	if s.View.Task == nil {
		return ""
	}
	return string(s.View.Task.Status.State)
}
