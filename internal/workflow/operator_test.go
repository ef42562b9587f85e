package workflow

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

func TestChecksumAddress(t *testing.T) {
	got, err := ChecksumAddress("wallet_address", strings.ToLower(tokenAddr))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(tokenAddr).Hex(), got)

	_, err = ChecksumAddress("wallet_address", "0x1234")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet_address")
}

func TestDelegationHashIgnoresDelegateCase(t *testing.T) {
	a, err := DelegationHash(strings.ToUpper("0xabcdef0123456789abcdef0123456789abcdef01"), "root")
	require.NoError(t, err)
	b, err := DelegationHash("0xabcdef0123456789abcdef0123456789abcdef01", "root")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := DelegationHash("0xabcdef0123456789abcdef0123456789abcdef01", "other")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestRecoverSigner(t *testing.T) {
	key, wallet := operatorKey(t)
	hash, err := DelegationHash(delegateAddr, "root")
	require.NoError(t, err)
	sig, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)

	tests := []struct {
		name string
		v    byte
	}{
		{"recovery id 0/1", sig[64]},
		{"recovery id 27/28", sig[64] + 27},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := append([]byte(nil), sig...)
			raw[64] = tt.v
			signer, err := RecoverSigner(hash, hexutil.Encode(raw))
			require.NoError(t, err)
			assert.Equal(t, wallet, signer.Hex())
		})
	}

	_, err = RecoverSigner(hash, "0x1234")
	require.Error(t, err)
	_, err = RecoverSigner(hash, "not-hex")
	require.Error(t, err)
}

func TestDecodeDelegationsDigestIsStable(t *testing.T) {
	key, wallet := operatorKey(t)
	payload, err := json.Marshal(delegationPayload(t, key))
	require.NoError(t, err)

	a, err := decodeDelegations(payload, wallet)
	require.NoError(t, err)
	b, err := decodeDelegations(payload, wallet)
	require.NoError(t, err)

	assert.Equal(t, a.Digest, b.Digest)
	assert.True(t, strings.HasPrefix(a.Digest, "0x"))
	assert.Len(t, a.Digest, 66)
	assert.Equal(t, delegateAddr, a.Delegations[0].Delegate)
}

func TestDecodeDelegationsRequiresOne(t *testing.T) {
	_, wallet := operatorKey(t)
	_, err := decodeDelegations(json.RawMessage(`{"delegations":[]}`), wallet)
	require.Error(t, err)
}

func TestPrepareOperatorDefaultsPool(t *testing.T) {
	cfg := Config{AgentName: "clmm", ChainID: chainID}
	inputs := ir.OnboardingInputs{
		Setup:        &ir.SetupInput{WalletAddress: "0x2B5AD5c4795c026514f8317c7a215E218DcCD6cF", FundingAmountUSD: 10},
		FundingToken: &ir.FundingTokenInput{TokenAddress: tokenAddr},
	}

	op, err := prepareOperator(cfg, inputs, []ir.Pool{{Address: strings.ToLower(poolAddr)}})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(poolAddr).Hex(), op.PoolAddress)
	assert.Equal(t, tokenAddr, op.FundingTokenAddress)
	assert.Equal(t, chainID, op.ChainID)
	assert.Empty(t, op.DelegationDigest)

	_, err = prepareOperator(cfg, ir.OnboardingInputs{}, nil)
	require.Error(t, err)
}
