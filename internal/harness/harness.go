package harness

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/engine"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/history"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/store"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/testutil"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/workflow"
)

// ThreadID is the thread every scenario runs on.
const ThreadID = "scenario-thread"

// operatorPlaceholder in a payload is replaced by the operator wallet.
const operatorPlaceholder = "$operator"

// Harness is the test execution engine.
// It runs scenarios with a fixed clock and sequential task ids.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	clock    *testutil.FixedClock
	operator *ecdsa.PrivateKey
	wallet   string
	threadID string
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and engine
// 2. Apply each step through the engine, checking its expect clause
// 3. Capture the final projection
// 4. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	start, err := scenario.StartTime()
	if err != nil {
		return nil, err
	}

	cfg := scenario.Agent.WorkflowConfig()
	st, err := store.Open(":memory:", store.WithRetention(cfg.Limits))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	clock := testutil.NewFixedClock(start)
	core := workflow.New(cfg, workflow.Deps{
		Cycle:   workflow.PaperCycle{DriftPct: scenario.Agent.DriftPct},
		Catalog: workflow.StaticCatalog{Pools: scenario.catalog()},
		Clock:   clock,
		IDs:     testutil.NewSequenceIDGenerator("task"),
		Logger:  logger,
	})
	eng := engine.New(st, core,
		engine.WithThreadIDs(engine.NewFixedGenerator(ThreadID)),
		engine.WithWallClock(clock.Now),
		engine.WithLogger(logger),
	)

	h := &Harness{
		store:    st,
		engine:   eng,
		clock:    clock,
		threadID: eng.NewThread(),
		logger:   logger,
	}
	if scenario.OperatorKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(scenario.OperatorKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("operator_key: %w", err)
		}
		h.operator = key
		h.wallet = crypto.PubkeyToAddress(key.PublicKey).Hex()
	}

	ctx := context.Background()
	result := NewResult()

	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	state, _, err := eng.State(ctx, h.threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load final state: %w", err)
	}
	result.Projection = state.Project()

	actx := &AssertionContext{
		Engine:   eng,
		ThreadID: h.threadID,
		Now:      clock.Now(),
		Ctx:      ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// WorkflowConfig returns the agent configuration with defaults filled in.
func (a AgentConfig) WorkflowConfig() workflow.Config {
	cfg := workflow.Config{
		AgentName: a.Name,
		ChainID:   a.ChainID,
		Variant:   a.Variant,
		Limits:    history.DefaultLimits(),
	}
	if cfg.AgentName == "" {
		cfg.AgentName = DefaultAgentName
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultChainID
	}
	if a.Limits != nil {
		cfg.Limits = *a.Limits
	}
	return cfg
}

func (s *Scenario) catalog() []ir.Pool {
	pools := make([]ir.Pool, len(s.Pools))
	for i, p := range s.Pools {
		pools[i] = ir.Pool{Address: p.Address, Symbol: p.Symbol, ChainID: p.ChainID}
	}
	return pools
}

// executeSteps applies every step in order. Tick errors are recorded on the
// trace and checked against the expect clause; only harness failures abort.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		if step.Advance != "" {
			d, err := time.ParseDuration(step.Advance)
			if err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
			h.clock.Advance(d)
		}

		in, ev, err := h.input(step)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		ev.Step = i + 1

		out, tickErr := h.engine.Apply(ctx, engine.Instruction{ThreadID: h.threadID, Input: in})
		if tickErr != nil {
			ev.Route = []string{}
			ev.Error = tickErr.Error()
			state, _, err := h.engine.State(ctx, h.threadID)
			if err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
			describe(&ev, state)
		} else {
			ev.Route = routeNames(out.Result.Route)
			ev.Seq = out.Seq
			ev.Suppressed = out.Result.Suppressed
			if out.Result.Interrupt != nil {
				ev.Interrupt = string(out.Result.Interrupt.Kind)
			}
			describe(&ev, out.Result.State)
		}

		for _, msg := range checkExpect(step.Expect, ev, tickErr) {
			result.AddError(fmt.Sprintf("step %d: %s", i+1, msg))
		}
		result.AddTrace(ev)

		h.logger.Info("scenario step applied",
			"step", i+1,
			"route", strings.Join(ev.Route, ">"),
			"error", ev.Error,
		)
	}
	return nil
}

// input builds the workflow input for step and the trace event skeleton.
func (h *Harness) input(step Step) (workflow.Input, TraceEvent, error) {
	switch {
	case step.Instruction != nil:
		fields := h.substitute(step.Instruction)
		b, err := json.Marshal(fields)
		if err != nil {
			return workflow.Input{}, TraceEvent{}, fmt.Errorf("instruction: %w", err)
		}
		name, _ := step.Instruction["command"].(string)
		return workflow.Input{Messages: []ir.Message{{Role: "user", Content: string(b)}}},
			TraceEvent{Command: name}, nil

	case step.Resume != nil:
		b, err := json.Marshal(h.substitute(step.Resume))
		if err != nil {
			return workflow.Input{}, TraceEvent{}, fmt.Errorf("resume: %w", err)
		}
		return workflow.Input{Resume: b}, TraceEvent{Resume: true}, nil

	default:
		payload, err := h.signDelegations(step.Delegations)
		if err != nil {
			return workflow.Input{}, TraceEvent{}, err
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return workflow.Input{}, TraceEvent{}, fmt.Errorf("delegations: %w", err)
		}
		return workflow.Input{Resume: b}, TraceEvent{Resume: true}, nil
	}
}

// signDelegations builds a delegation answer signed by the operator key.
func (h *Harness) signDelegations(entries []DelegationEntry) (map[string]any, error) {
	if h.operator == nil {
		return nil, fmt.Errorf("delegations: no operator key")
	}
	signed := make([]map[string]any, len(entries))
	for i, d := range entries {
		hash, err := workflow.DelegationHash(d.Delegate, d.Authority)
		if err != nil {
			return nil, fmt.Errorf("delegations[%d]: %w", i, err)
		}
		sig, err := crypto.Sign(hash.Bytes(), h.operator)
		if err != nil {
			return nil, fmt.Errorf("delegations[%d]: sign: %w", i, err)
		}
		signed[i] = map[string]any{
			"delegate":  d.Delegate,
			"authority": d.Authority,
			"signature": hexutil.Encode(sig),
		}
	}
	return map[string]any{"delegations": signed}, nil
}

// substitute replaces operatorPlaceholder strings in a decoded YAML value.
func (h *Harness) substitute(v any) any {
	switch val := v.(type) {
	case string:
		if val == operatorPlaceholder && h.wallet != "" {
			return h.wallet
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = h.substitute(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = h.substitute(elem)
		}
		return out
	default:
		return v
	}
}

// describe copies the outward facts of state onto ev.
func describe(ev *TraceEvent, state ir.WorkflowState) {
	view := state.View
	if view.Task != nil {
		ev.TaskState = string(view.Task.Status.State)
	}
	if view.Onboarding != nil {
		ev.Revision = view.Onboarding.Revision
	}
	ev.AumUSD = view.Accounting.AumUSD
}

func routeNames(route []workflow.Route) []string {
	names := make([]string, len(route))
	for i, r := range route {
		names[i] = string(r)
	}
	return names
}

// checkExpect compares one tick against its expect clause.
func checkExpect(exp *ExpectClause, ev TraceEvent, tickErr error) []string {
	var errs []string
	if exp == nil || exp.Error == "" {
		if tickErr != nil {
			errs = append(errs, fmt.Sprintf("unexpected error: %v", tickErr))
		}
	} else if tickErr == nil {
		errs = append(errs, fmt.Sprintf("expected error containing %q, tick succeeded", exp.Error))
	} else if !strings.Contains(tickErr.Error(), exp.Error) {
		errs = append(errs, fmt.Sprintf("expected error containing %q, got %q", exp.Error, tickErr.Error()))
	}
	if exp == nil {
		return errs
	}

	if exp.TaskState != "" && exp.TaskState != ev.TaskState {
		errs = append(errs, fmt.Sprintf("expected task state %q, got %q", exp.TaskState, ev.TaskState))
	}
	switch exp.Interrupt {
	case "":
	case InterruptNone:
		if ev.Interrupt != "" {
			errs = append(errs, fmt.Sprintf("expected no interrupt, got %q", ev.Interrupt))
		}
	default:
		if exp.Interrupt != ev.Interrupt {
			errs = append(errs, fmt.Sprintf("expected interrupt %q, got %q", exp.Interrupt, ev.Interrupt))
		}
	}
	if exp.Suppressed != nil && *exp.Suppressed != ev.Suppressed {
		errs = append(errs, fmt.Sprintf("expected suppressed=%t, got %t", *exp.Suppressed, ev.Suppressed))
	}
	return errs
}
