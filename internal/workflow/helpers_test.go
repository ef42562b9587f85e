package workflow

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/history"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/onboarding"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/testutil"
)

const (
	operatorKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	poolAddr       = "0xC31E54c7a869B9FcBEcc14363CF510d1c41fa443"
	tokenAddr      = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
	delegateAddr   = "0x1111111111111111111111111111111111111111"
	chainID        = int64(42161)
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

var fullVariant = onboarding.Variant{RequiresPoolCatalog: true, RequiresFundingToken: true}

type fixture struct {
	core  *Core
	clock *testutil.FixedClock
	state ir.WorkflowState
}

func newFixture(t *testing.T, variant onboarding.Variant, catalog CatalogLoader) *fixture {
	t.Helper()
	clock := testutil.NewFixedClock(t0)
	cfg := Config{
		AgentName:           "clmm",
		ChainID:             chainID,
		Variant:             variant,
		Limits:              history.DefaultLimits(),
		PollIntervalSeconds: 30,
	}
	require.NoError(t, cfg.Validate())
	return &fixture{
		clock: clock,
		core: New(cfg, Deps{
			Cycle:   PaperCycle{DriftPct: 0.1},
			Catalog: catalog,
			Clock:   clock,
			IDs:     testutil.NewSequenceIDGenerator("task"),
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		}),
	}
}

func defaultCatalog() StaticCatalog {
	return StaticCatalog{Pools: []ir.Pool{{Address: poolAddr, Symbol: "WETH/USDC"}}}
}

// tick applies in and keeps the resulting state on the fixture.
func (f *fixture) tick(t *testing.T, in Input) Result {
	t.Helper()
	res, err := f.core.Tick(context.Background(), f.state, in)
	require.NoError(t, err)
	f.state = res.State
	return res
}

func instruction(t *testing.T, fields map[string]any) Input {
	t.Helper()
	b, err := json.Marshal(fields)
	require.NoError(t, err)
	return Input{Messages: []ir.Message{{Role: "user", Content: string(b)}}}
}

func resume(t *testing.T, payload any) Input {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return Input{Resume: b}
}

func operatorKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.HexToECDSA(operatorKeyHex)
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func signDelegation(t *testing.T, key *ecdsa.PrivateKey, delegate, authority string) string {
	t.Helper()
	hash, err := DelegationHash(delegate, authority)
	require.NoError(t, err)
	sig, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)
	return hexutil.Encode(sig)
}

func setupPayload(wallet string) map[string]any {
	return map[string]any{
		"wallet_address":     wallet,
		"funding_amount_usd": 100,
		"pool_address":       poolAddr,
	}
}

func delegationPayload(t *testing.T, key *ecdsa.PrivateKey) map[string]any {
	return map[string]any{
		"delegations": []map[string]any{{
			"delegate":  delegateAddr,
			"authority": "root",
			"signature": signDelegation(t, key, delegateAddr, "root"),
		}},
	}
}

// onboard drives a full-variant thread from hire to a prepared operator.
func (f *fixture) onboard(t *testing.T) {
	t.Helper()
	key, wallet := operatorKey(t)
	f.tick(t, instruction(t, map[string]any{"command": "hire", "clientMutationId": "m-1"}))
	f.tick(t, resume(t, setupPayload(wallet)))
	f.tick(t, resume(t, map[string]any{"token_address": tokenAddr}))
	f.tick(t, resume(t, delegationPayload(t, key)))
	require.NotNil(t, f.state.View.Setup.Operator)
}
