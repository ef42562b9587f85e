package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/command"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/history"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/interrupt"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/onboarding"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/task"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/testutil"
)

func TestTickFullLifecycle(t *testing.T) {
	f := newFixture(t, fullVariant, defaultCatalog())
	key, wallet := operatorKey(t)

	// Hire: the setup interrupt is raised immediately.
	res := f.tick(t, instruction(t, map[string]any{"command": "hire", "clientMutationId": "m-1"}))
	require.NotNil(t, res.Interrupt)
	assert.Equal(t, interrupt.KindSetup, res.Interrupt.Kind)
	assert.Equal(t, []Route{RouteRouter, RouteHire, RouteOnboarding}, res.Route)
	assert.Equal(t, "task-1", f.state.View.Task.ID)
	assert.Equal(t, ir.TaskInputRequired, f.state.View.Task.Status.State)
	assert.Equal(t, SetupPrompt, f.state.View.Task.Status.Message)
	assert.Equal(t, "m-1", f.state.Private.LastAppliedClientMutationID)
	assert.Equal(t, "setup", f.state.Private.PendingInterrupt)
	assert.True(t, f.state.Private.Bootstrapped)
	assert.Len(t, f.state.View.Profile.Pools, 1)
	require.NotNil(t, f.state.View.Onboarding)
	assert.Equal(t, int64(1), f.state.View.Onboarding.Revision)
	assert.Equal(t, onboarding.StepSetup, f.state.View.Onboarding.ActiveStepID)

	// Setup answer: the funding token is asked next.
	res = f.tick(t, resume(t, setupPayload(wallet)))
	require.NotNil(t, res.Interrupt)
	assert.Equal(t, interrupt.KindFundingToken, res.Interrupt.Kind)
	assert.Equal(t, []Route{RouteRouter, RouteOnboarding}, res.Route)
	assert.Equal(t, int64(2), f.state.View.Onboarding.Revision)
	assert.Equal(t, onboarding.StepFundingToken, f.state.View.Onboarding.ActiveStepID)
	assert.Equal(t, wallet, f.state.View.Setup.Setup.WalletAddress)

	// Funding token: delegation approval is awaited.
	res = f.tick(t, resume(t, map[string]any{"token_address": tokenAddr}))
	require.NotNil(t, res.Interrupt)
	assert.Equal(t, interrupt.KindDelegations, res.Interrupt.Kind)
	assert.True(t, task.IsAwaitingApproval(f.state.View.Task.Status.Message))
	assert.Equal(t, int64(3), f.state.View.Onboarding.Revision)

	// Delegations: operator prepared and the lifecycle opens with a hire event.
	res = f.tick(t, resume(t, delegationPayload(t, key)))
	assert.Nil(t, res.Interrupt)
	assert.Equal(t, []Route{RouteRouter, RouteOnboarding, RouteAccounting}, res.Route)
	require.NotNil(t, f.state.View.Setup.Operator)
	assert.Equal(t, common.HexToAddress(poolAddr).Hex(), f.state.View.Setup.Operator.PoolAddress)
	assert.Equal(t, common.HexToAddress(tokenAddr).Hex(), f.state.View.Setup.Operator.FundingTokenAddress)
	assert.NotEmpty(t, f.state.View.Setup.Operator.DelegationDigest)
	assert.Equal(t, ir.TaskWorking, f.state.View.Task.Status.State)
	assert.Equal(t, task.OnboardingCompleteMessage, f.state.View.Task.Status.Message)
	assert.Empty(t, f.state.Private.PendingInterrupt)
	assert.Equal(t, ir.OnboardingCompleted, f.state.View.Onboarding.Status)
	assert.Empty(t, f.state.View.Onboarding.ActiveStepID)
	assert.Equal(t, int64(4), f.state.View.Onboarding.Revision)
	require.Len(t, res.Appended.FlowEvents, 1)
	assert.Equal(t, ir.FlowHire, res.Appended.FlowEvents[0].Kind)
	assert.Equal(t, 100.0, f.state.View.Accounting.AumUSD)
	assert.Equal(t, 100.0, f.state.View.Accounting.CashUSD)

	// First cycle deploys the funded amount.
	f.clock.Advance(24 * time.Hour)
	res = f.tick(t, instruction(t, map[string]any{"command": "cycle", "clientMutationId": "m-2"}))
	assert.Equal(t, []Route{RouteRouter, RouteOnboarding, RouteCycle, RouteAccounting, RouteSummarize}, res.Route)
	assert.Equal(t, task.CycleSummarizedMessage, f.state.View.Task.Status.Message)
	assert.Equal(t, int64(1), f.state.View.Metrics.Iteration)
	require.Len(t, f.state.View.Transactions, 1)
	assert.Equal(t, ActionDeploy, f.state.View.Transactions[0].Action)
	assert.Equal(t, 110.0, f.state.View.Accounting.PositionsUSD)
	assert.Equal(t, 0.0, f.state.View.Accounting.CashUSD)
	assert.Equal(t, 110.0, f.state.View.Accounting.AumUSD)
	assert.Equal(t, 110.0, f.state.View.Accounting.HighWaterMarkUSD)
	assert.Equal(t, int64(4), f.state.View.Onboarding.Revision, "finalized contract is frozen")
	afterCycle := f.state

	// Duplicate delivery of the same cycle is suppressed.
	res = f.tick(t, instruction(t, map[string]any{"command": "cycle", "clientMutationId": "m-2"}))
	assert.True(t, res.Suppressed)
	assert.Equal(t, []Route{RouteRouter, RouteNoop}, res.Route)
	assert.True(t, res.Appended.Empty())
	assert.Equal(t, afterCycle, f.state)

	// Sync is always applied and only moves the mutation pointer.
	res = f.tick(t, instruction(t, map[string]any{"command": "sync", "clientMutationId": "m-3"}))
	assert.Equal(t, []Route{RouteRouter, RouteSync}, res.Route)
	assert.Equal(t, "m-3", f.state.Private.LastAppliedClientMutationID)
	assert.Equal(t, afterCycle.View, f.state.View)

	// Fire cancels the task and withdraws the AUM.
	res = f.tick(t, instruction(t, map[string]any{"command": "fire", "clientMutationId": "m-4", "reason": "rotating"}))
	assert.Equal(t, ir.TaskCanceled, f.state.View.Task.Status.State)
	assert.Contains(t, f.state.View.Task.Status.Message, "rotating")
	require.Len(t, res.Appended.FlowEvents, 1)
	assert.Equal(t, ir.FlowWithdrawal, res.Appended.FlowEvents[0].Kind)
	assert.Equal(t, 110.0, res.Appended.FlowEvents[0].USDValue)
	assert.Equal(t, ir.OnboardingCompleted, f.state.View.Onboarding.Status)
	// The withdrawal draws down cash only; positions keep their last value.
	assert.Equal(t, 0.0, f.state.View.Accounting.CashUSD)
	assert.Equal(t, 110.0, f.state.View.Accounting.PositionsUSD)
	assert.Equal(t, 110.0, f.state.View.Accounting.AumUSD)
	assert.Equal(t, 10.0, f.state.View.Accounting.LifetimePnlUSD)

	// Cycles after fire do nothing.
	res = f.tick(t, instruction(t, map[string]any{"command": "cycle", "clientMutationId": "m-5"}))
	assert.Equal(t, []Route{RouteRouter, RouteNoop}, res.Route)
	assert.Equal(t, int64(1), f.state.View.Metrics.Iteration)

	// A new hire starts a fresh task and onboarding.
	res = f.tick(t, instruction(t, map[string]any{"command": "hire", "clientMutationId": "m-6"}))
	require.NotNil(t, res.Interrupt)
	assert.Equal(t, "task-2", f.state.View.Task.ID)
	assert.Nil(t, f.state.View.Setup.Operator)
	assert.Equal(t, ir.OnboardingInProgress, f.state.View.Onboarding.Status)
	assert.Equal(t, int64(5), f.state.View.Onboarding.Revision)
}

func TestTickValidationErrorRenewsPrompt(t *testing.T) {
	f := newFixture(t, fullVariant, defaultCatalog())
	f.tick(t, instruction(t, map[string]any{"command": "hire", "clientMutationId": "m-1"}))

	res := f.tick(t, resume(t, map[string]any{"wallet_address": "nope", "funding_amount_usd": 100}))
	require.NotNil(t, res.Interrupt)
	assert.Equal(t, interrupt.KindSetup, res.Interrupt.Kind)
	assert.Contains(t, res.Interrupt.Message, "invalid setup input")
	assert.Equal(t, ir.TaskInputRequired, f.state.View.Task.Status.State)
	assert.Contains(t, f.state.View.Task.Status.Message, SetupPrompt)
	assert.Equal(t, "setup", f.state.Private.PendingInterrupt)
	assert.Nil(t, f.state.View.Setup.Setup)
	assert.Equal(t, int64(2), f.state.View.Onboarding.Revision)
}

func TestTickAcceptsStringResume(t *testing.T) {
	f := newFixture(t, fullVariant, defaultCatalog())
	_, wallet := operatorKey(t)
	f.tick(t, instruction(t, map[string]any{"command": "hire"}))

	payload, err := json.Marshal(setupPayload(wallet))
	require.NoError(t, err)
	res := f.tick(t, resume(t, string(payload)))

	require.NotNil(t, res.Interrupt)
	assert.Equal(t, interrupt.KindFundingToken, res.Interrupt.Kind)
	require.NotNil(t, f.state.View.Setup.Setup)
	assert.Equal(t, 100.0, f.state.View.Setup.Setup.FundingAmountUSD)
}

func TestTickRejectsPoolOutsideCatalog(t *testing.T) {
	f := newFixture(t, fullVariant, defaultCatalog())
	_, wallet := operatorKey(t)
	f.tick(t, instruction(t, map[string]any{"command": "hire"}))

	payload := setupPayload(wallet)
	payload["pool_address"] = delegateAddr
	res := f.tick(t, resume(t, payload))

	require.NotNil(t, res.Interrupt)
	assert.Equal(t, interrupt.KindSetup, res.Interrupt.Kind)
	assert.Nil(t, f.state.View.Setup.Setup)
}

func TestTickRejectsForeignDelegationSigner(t *testing.T) {
	f := newFixture(t, fullVariant, defaultCatalog())
	_, wallet := operatorKey(t)
	f.tick(t, instruction(t, map[string]any{"command": "hire"}))
	f.tick(t, resume(t, setupPayload(wallet)))
	f.tick(t, resume(t, map[string]any{"token_address": tokenAddr}))

	stranger, err := crypto.GenerateKey()
	require.NoError(t, err)
	res := f.tick(t, resume(t, delegationPayload(t, stranger)))

	require.NotNil(t, res.Interrupt)
	assert.Equal(t, interrupt.KindDelegations, res.Interrupt.Kind)
	assert.Contains(t, res.Interrupt.Message, "signed by")
	assert.True(t, task.IsAwaitingApproval(f.state.View.Task.Status.Message))
	assert.Nil(t, f.state.View.Setup.Delegations)
	assert.Nil(t, f.state.View.Setup.Operator)
}

func TestTickHaltsOnEmptyCatalog(t *testing.T) {
	f := newFixture(t, fullVariant, StaticCatalog{})

	res := f.tick(t, instruction(t, map[string]any{"command": "hire"}))
	assert.Nil(t, res.Interrupt)
	assert.Equal(t, []Route{RouteRouter, RouteHire, RouteOnboarding, RouteSummarize}, res.Route)
	assert.Equal(t, NoPoolsHaltReason, f.state.View.HaltReason)
	assert.Equal(t, ir.TaskFailed, f.state.View.Task.Status.State)
	assert.Equal(t, NoPoolsHaltReason, f.state.View.Task.Status.Message)
	assert.Equal(t, ir.OnboardingFailed, f.state.View.Onboarding.Status)
	assert.Empty(t, f.state.View.Onboarding.ActiveStepID)

	// The thread survives: a later hire starts over.
	f.tick(t, instruction(t, map[string]any{"command": "hire"}))
	assert.Equal(t, "task-2", f.state.View.Task.ID)
}

func TestTickClearsStaleDelegationWait(t *testing.T) {
	f := newFixture(t, fullVariant, defaultCatalog())
	f.onboard(t)

	// A crash left the task reporting the delegation wait after the operator
	// had already been prepared.
	f.state.View.Task.Status = ir.TaskStatus{State: ir.TaskInputRequired, Message: task.AwaitingDelegationMessage, Timestamp: t0}

	f.tick(t, instruction(t, map[string]any{"command": "cycle", "clientMutationId": "m-2"}))
	assert.Equal(t, ir.TaskWorking, f.state.View.Task.Status.State)
	assert.Equal(t, task.OnboardingCompleteMessage, f.state.View.Task.Status.Message)
}

func TestTickHireWithInlineSetupAndBypass(t *testing.T) {
	f := newFixture(t, onboarding.Variant{DelegationsBypass: true}, nil)
	_, wallet := operatorKey(t)

	res := f.tick(t, instruction(t, map[string]any{
		"command":          "hire",
		"walletAddress":    wallet,
		"fundingAmountUsd": 250,
	}))

	assert.Nil(t, res.Interrupt)
	require.NotNil(t, f.state.View.Setup.Operator)
	assert.Equal(t, wallet, f.state.View.Setup.Operator.WalletAddress)
	assert.Equal(t, ir.TaskWorking, f.state.View.Task.Status.State)
	assert.Equal(t, ir.OnboardingCompleted, f.state.View.Onboarding.Status)
	assert.Equal(t, int64(1), f.state.View.Onboarding.Revision)
	assert.Equal(t, 250.0, f.state.View.Accounting.InitialAllocationUSD)
}

func TestTickHireIgnoredWhileRunning(t *testing.T) {
	f := newFixture(t, fullVariant, defaultCatalog())
	f.onboard(t)
	before := f.state.View

	res := f.tick(t, instruction(t, map[string]any{"command": "hire", "clientMutationId": "m-9"}))
	assert.Equal(t, []Route{RouteRouter, RouteNoop}, res.Route)
	assert.Equal(t, before, f.state.View)
	assert.Equal(t, "m-9", f.state.Private.LastAppliedClientMutationID)
}

func TestTickUnknownCommand(t *testing.T) {
	f := newFixture(t, fullVariant, defaultCatalog())
	_, err := f.core.Tick(context.Background(), f.state, instruction(t, map[string]any{"command": "liquidate"}))
	require.Error(t, err)

	var uce *command.UnknownCommandError
	require.True(t, errors.As(err, &uce))
	assert.Equal(t, "liquidate", uce.Name)
}

func TestTickSyncWithoutMutationIDKeepsPointer(t *testing.T) {
	f := newFixture(t, fullVariant, defaultCatalog())
	f.onboard(t)
	f.tick(t, instruction(t, map[string]any{"command": "cycle", "clientMutationId": "m-2"}))
	require.Equal(t, "m-2", f.state.Private.LastAppliedClientMutationID)

	res := f.tick(t, instruction(t, map[string]any{"command": "sync"}))
	assert.Equal(t, []Route{RouteRouter, RouteSync}, res.Route)
	assert.Equal(t, "m-2", f.state.Private.LastAppliedClientMutationID)

	// The pointer still guards the last cycle.
	res = f.tick(t, instruction(t, map[string]any{"command": "cycle", "clientMutationId": "m-2"}))
	assert.True(t, res.Suppressed)
}

func TestTickNoInstructionIsNoop(t *testing.T) {
	f := newFixture(t, fullVariant, defaultCatalog())
	res := f.tick(t, Input{Messages: []ir.Message{{Role: "user", Content: "hello"}}})

	assert.Equal(t, []Route{RouteRouter, RouteNoop}, res.Route)
	assert.Nil(t, f.state.View.Task)
	assert.False(t, f.state.Private.Bootstrapped)
}

func TestTickDoesNotMutateInput(t *testing.T) {
	f := newFixture(t, fullVariant, defaultCatalog())
	f.onboard(t)

	before, err := json.Marshal(f.state)
	require.NoError(t, err)

	_, err = f.core.Tick(context.Background(), f.state, instruction(t, map[string]any{"command": "cycle"}))
	require.NoError(t, err)

	after, err := json.Marshal(f.state)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestTickWithChannelSuspender(t *testing.T) {
	ch := interrupt.NewChannel()
	_, wallet := operatorKey(t)
	core := New(Config{AgentName: "clmm", ChainID: chainID, Variant: onboarding.Variant{DelegationsBypass: true}, Limits: history.DefaultLimits()}, Deps{
		Suspender: ch,
		Clock:     testutil.NewFixedClock(t0),
		IDs:       testutil.NewFixedIDGenerator("task-x"),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		req := <-ch.Requests()
		if req.Kind != interrupt.KindSetup {
			return
		}
		payload, _ := json.Marshal(map[string]any{"wallet_address": wallet, "funding_amount_usd": 10})
		_ = ch.Respond(ctx, payload)
	}()

	res, err := core.Tick(ctx, ir.WorkflowState{}, instruction(t, map[string]any{"command": "hire"}))
	require.NoError(t, err)
	assert.Nil(t, res.Interrupt)
	require.NotNil(t, res.State.View.Setup.Operator)
	assert.Equal(t, ir.TaskWorking, res.State.View.Task.Status.State)
	assert.Equal(t, 30, res.State.Private.PollIntervalSeconds)
}

func TestProjectionHidesPrivateState(t *testing.T) {
	f := newFixture(t, fullVariant, defaultCatalog())
	f.onboard(t)

	out, err := json.Marshal(f.state.Project())
	require.NoError(t, err)
	assert.NotContains(t, string(out), "m-1")
	assert.NotContains(t, string(out), "pending_interrupt")
}
