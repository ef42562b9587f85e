package workflow

import (
	"errors"
	"fmt"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/accounting"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/command"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/history"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/interrupt"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/onboarding"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/task"
)

// NoPoolsHaltReason is the halt reason when the catalog is empty.
const NoPoolsHaltReason = "No eligible pools found for the configured chain."

var phaseKinds = map[onboarding.Phase]interrupt.Kind{
	onboarding.PhaseCollectSetupInput:   interrupt.KindSetup,
	onboarding.PhaseCollectFundingToken: interrupt.KindFundingToken,
	onboarding.PhaseCollectDelegations:  interrupt.KindDelegations,
}

// hire starts a new task instance and a fresh onboarding.
func (t *tick) hire(cmd command.Hire) {
	t.visit(RouteHire)
	t.restart = true

	tk := task.New(t.deps().IDs.Generate(), t.now)
	view := &t.state.View
	view.Task = &tk
	view.Setup = ir.OnboardingInputs{}
	view.Profile.Pools = nil
	view.HaltReason = ""
	t.state.Private.PendingInterrupt = ""

	// A hire may carry the setup answers inline.
	if cmd.WalletAddress != "" && cmd.FundingAmountUSD != nil && *cmd.FundingAmountUSD > 0 {
		if addr, err := ChecksumAddress("wallet_address", cmd.WalletAddress); err == nil {
			view.Setup.Setup = &ir.SetupInput{WalletAddress: addr, FundingAmountUSD: *cmd.FundingAmountUSD}
		} else {
			t.log.Warn("ignoring inline setup", "error", err)
		}
	}

	t.log.Info("task hired", "task", tk.ID)
}

// fire cancels the task and returns the current AUM to the operator.
//
// The withdrawal is a ledger outflow, and outflows only draw down cash. Open
// positions keep the value of the latest NAV snapshot, so when positions
// cover the initial allocation the AUM reported after a fire is still the
// positions value. The next hire starts a new lifecycle and resets it.
func (t *tick) fire(cmd command.Fire) error {
	t.visit(RouteFire)
	t.fired = true

	view := &t.state.View
	msg := task.FiredMessage
	if cmd.Reason != "" {
		msg = fmt.Sprintf("%s Reason: %s", msg, cmd.Reason)
	}
	tk, err := task.Apply(*view.Task, ir.TaskCanceled, msg, t.now)
	if err != nil {
		return err
	}
	view.Task = &tk
	t.state.Private.PendingInterrupt = ""

	acct := view.Accounting
	if acct.LifecycleStart != nil && acct.AumUSD > 0 {
		ev, err := ir.NewFlowEvent(ir.FlowWithdrawal, tk.ID, t.cfg().ChainID, t.now, acct.AumUSD)
		if err != nil {
			return fmt.Errorf("withdrawal event: %w", err)
		}
		t.update.FlowEvents = append(t.update.FlowEvents, ev)
	}

	t.log.Info("task fired", "task", tk.ID, "withdrawn_usd", acct.AumUSD)
	return nil
}

// onboard walks the phase cascade until it needs operator input, halts, or
// reaches ready.
func (t *tick) onboard() (onboarding.Phase, error) {
	t.visit(RouteOnboarding)
	cfg := t.cfg()
	view := &t.state.View

	for {
		if cfg.Variant.RequiresPoolCatalog && len(view.Profile.Pools) == 0 {
			if t.deps().Catalog == nil {
				return "", errors.New("pool catalog required but no catalog loader configured")
			}
			pools, err := t.deps().Catalog.LoadPools(t.ctx, cfg.ChainID)
			if err != nil {
				return "", fmt.Errorf("load pool catalog: %w", err)
			}
			if len(pools) == 0 {
				view.HaltReason = NoPoolsHaltReason
				t.log.Warn("halting: empty pool catalog", "chain_id", cfg.ChainID)
				return onboarding.PhaseCollectPoolCatalog, nil
			}
			view.Profile.Pools = pools
		}

		phase := onboarding.ResolvePhase(cfg.Variant.Flags(onboarding.Flags{
			HasPoolCatalog:       len(view.Profile.Pools) > 0,
			HasSetupInput:        view.Setup.Setup != nil,
			HasFundingTokenInput: view.Setup.FundingToken != nil,
			HasDelegationBundle:  view.Setup.Delegations != nil,
			HasOperatorConfig:    view.Setup.Operator != nil,
		}))
		t.log.Debug("onboarding phase", "phase", string(phase))

		switch phase {
		case onboarding.PhaseReady:
			return phase, nil
		case onboarding.PhasePrepareOperator:
			if err := t.prepare(); err != nil {
				return "", err
			}
			if view.HaltReason != "" {
				return phase, nil
			}
			continue
		}

		kind, ok := phaseKinds[phase]
		if !ok {
			return "", fmt.Errorf("no input for onboarding phase %s", phase)
		}
		consumed, err := t.collect(phase, kind)
		if err != nil {
			return "", err
		}
		if !consumed {
			return phase, nil
		}
	}
}

// collect asks the suspender for the input of kind. Reports whether a valid
// payload was stored.
func (t *tick) collect(phase onboarding.Phase, kind interrupt.Kind) (bool, error) {
	view := &t.state.View
	req, err := requestFor(kind, view.Profile.Pools)
	if err != nil {
		return false, err
	}

	raw, ok, err := t.suspender.Suspend(t.ctx, req)
	if err != nil {
		return false, fmt.Errorf("suspend for %s: %w", kind, err)
	}
	if !ok {
		return false, t.await(phase, req, req.Message)
	}

	payload, err := interrupt.Validate(req, raw)
	if err != nil {
		if !interrupt.IsValidationError(err) {
			return false, err
		}
		return false, t.reject(phase, req, err)
	}

	switch kind {
	case interrupt.KindSetup:
		in, err := decodeSetup(payload)
		if err != nil {
			return false, t.reject(phase, req, &interrupt.ValidationError{Kind: kind, Reason: err.Error()})
		}
		view.Setup.Setup = &in
	case interrupt.KindFundingToken:
		in, err := decodeFundingToken(payload)
		if err != nil {
			return false, t.reject(phase, req, &interrupt.ValidationError{Kind: kind, Reason: err.Error()})
		}
		view.Setup.FundingToken = &in
	case interrupt.KindDelegations:
		bundle, err := decodeDelegations(payload, view.Setup.Setup.WalletAddress)
		if err != nil {
			return false, t.reject(phase, req, &interrupt.ValidationError{Kind: kind, Reason: err.Error()})
		}
		view.Setup.Delegations = &bundle
	}

	t.state.Private.PendingInterrupt = ""
	t.log.Info("onboarding input accepted", "kind", string(kind))
	return true, nil
}

// reject renews the prompt after invalid operator input.
func (t *tick) reject(phase onboarding.Phase, req interrupt.Request, verr error) error {
	t.log.Info("onboarding input rejected", "kind", string(req.Kind), "error", verr)
	return t.await(phase, req, fmt.Sprintf("%v. %s", verr, req.Message))
}

// await moves the task to input-required and records the interrupt.
func (t *tick) await(phase onboarding.Phase, req interrupt.Request, message string) error {
	view := &t.state.View
	tk, err := task.Apply(*view.Task, ir.TaskInputRequired, message, t.now)
	if err != nil {
		return err
	}
	view.Task = &tk
	t.state.Private.PendingInterrupt = string(req.Kind)

	if p, ok := onboarding.PointerFor(phase, onboarding.Steps(t.cfg().Variant)); ok {
		t.pointer = &p
	}
	req.Message = message
	t.irq = &req
	return nil
}

// prepare builds the operator config and opens the lifecycle with a hire
// flow event for the funded amount.
func (t *tick) prepare() error {
	view := &t.state.View
	op, err := prepareOperator(t.cfg(), view.Setup, view.Profile.Pools)
	if err != nil {
		view.HaltReason = fmt.Sprintf("Operator setup failed: %v", err)
		return nil
	}
	view.Setup.Operator = &op
	t.state.Private.PendingInterrupt = ""

	if amount := view.Setup.Setup.FundingAmountUSD; amount > 0 {
		ev, err := ir.NewFlowEvent(ir.FlowHire, view.Task.ID, op.ChainID, t.now, amount)
		if err != nil {
			return fmt.Errorf("hire event: %w", err)
		}
		t.update.FlowEvents = append(t.update.FlowEvents, ev)
	}

	switch view.Task.Status.State {
	case ir.TaskSubmitted, ir.TaskInputRequired:
		tk, err := task.Apply(*view.Task, ir.TaskWorking, task.OnboardingCompleteMessage, t.now)
		if err != nil {
			return err
		}
		view.Task = &tk
	}

	t.log.Info("operator prepared", "wallet", op.WalletAddress, "pool", op.PoolAddress)
	return nil
}

// cycle runs one trading cycle and stages its ledger entries.
func (t *tick) cycle() error {
	t.visit(RouteCycle)
	if t.deps().Cycle == nil {
		return errors.New("no cycle runner configured")
	}
	view := &t.state.View

	iteration := view.Metrics.Iteration + 1
	out, err := t.deps().Cycle.RunCycle(t.ctx, CycleInput{
		ContextID:  view.Task.ID,
		Iteration:  iteration,
		Operator:   *view.Setup.Operator,
		Pools:      view.Profile.Pools,
		Accounting: view.Accounting.Clone(),
		Now:        t.now,
	})
	if err != nil {
		return fmt.Errorf("cycle %d: %w", iteration, err)
	}
	t.ranCycle = true

	view.Transactions = history.Append(view.Transactions, out.Transactions, t.cfg().Limits.Transactions)
	view.Metrics.Iteration = iteration
	now := t.now
	view.Metrics.LastCycleAt = &now

	t.update.FlowEvents = append(t.update.FlowEvents, out.FlowEvents...)
	if out.Snapshot != nil {
		t.update.Snapshots = append(t.update.Snapshots, *out.Snapshot)
	}
	if out.HaltReason != "" {
		view.HaltReason = out.HaltReason
	}

	t.log.Info("cycle complete", "iteration", iteration, "transactions", len(out.Transactions))
	return nil
}

func (t *tick) account() {
	t.visit(RouteAccounting)
	view := &t.state.View
	view.Accounting = accounting.Apply(view.Accounting, t.update, t.cfg().Limits, t.now)
}

func (t *tick) summarize() {
	t.visit(RouteSummarize)
	view := &t.state.View
	tk := task.Summarize(*view.Task, task.SummaryInput{
		HaltReason:              view.HaltReason,
		OperatorConfigPresent:   view.Setup.Operator != nil,
		DelegationBundlePresent: view.Setup.Delegations != nil,
		Now:                     t.now,
	})
	view.Task = &tk
}
