package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

const signatureLength = 65

// ChecksumAddress validates a hex address and returns its EIP-55 form.
func ChecksumAddress(field, addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%s %q is not a valid address", field, addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// DelegationHash is the digest a wallet signs to approve one delegation.
func DelegationHash(delegate, authority string) (common.Hash, error) {
	canonical, err := ir.MarshalCanonical(ir.IRObject{
		"delegate":  ir.IRString(strings.ToLower(delegate)),
		"authority": ir.IRString(authority),
	})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(canonical), nil
}

// RecoverSigner returns the address that produced sig over hash. Both the
// 0/1 and 27/28 recovery id conventions are accepted.
func RecoverSigner(hash common.Hash, sig string) (common.Address, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature: %w", err)
	}
	if len(raw) != signatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", signatureLength, len(raw))
	}
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// decodeSetup parses a validated setup payload.
func decodeSetup(payload json.RawMessage) (ir.SetupInput, error) {
	var in ir.SetupInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return ir.SetupInput{}, err
	}
	addr, err := ChecksumAddress("wallet_address", in.WalletAddress)
	if err != nil {
		return ir.SetupInput{}, err
	}
	in.WalletAddress = addr
	if in.PoolAddress != "" {
		if in.PoolAddress, err = ChecksumAddress("pool_address", in.PoolAddress); err != nil {
			return ir.SetupInput{}, err
		}
	}
	return in, nil
}

// decodeFundingToken parses a validated funding-token payload.
func decodeFundingToken(payload json.RawMessage) (ir.FundingTokenInput, error) {
	var in ir.FundingTokenInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return ir.FundingTokenInput{}, err
	}
	addr, err := ChecksumAddress("token_address", in.TokenAddress)
	if err != nil {
		return ir.FundingTokenInput{}, err
	}
	in.TokenAddress = addr
	return in, nil
}

// decodeDelegations parses a validated delegation payload, checks every
// signature was produced by wallet and computes the bundle digest.
func decodeDelegations(payload json.RawMessage, wallet string) (ir.DelegationBundle, error) {
	var in struct {
		Delegations []ir.SignedDelegation `json:"delegations"`
	}
	if err := json.Unmarshal(payload, &in); err != nil {
		return ir.DelegationBundle{}, err
	}
	if len(in.Delegations) == 0 {
		return ir.DelegationBundle{}, errors.New("at least one delegation is required")
	}

	owner := common.HexToAddress(wallet)
	items := make(ir.IRArray, len(in.Delegations))
	for i, d := range in.Delegations {
		delegate, err := ChecksumAddress("delegate", d.Delegate)
		if err != nil {
			return ir.DelegationBundle{}, fmt.Errorf("delegation %d: %w", i, err)
		}
		hash, err := DelegationHash(delegate, d.Authority)
		if err != nil {
			return ir.DelegationBundle{}, fmt.Errorf("delegation %d: %w", i, err)
		}
		signer, err := RecoverSigner(hash, d.Signature)
		if err != nil {
			return ir.DelegationBundle{}, fmt.Errorf("delegation %d: %w", i, err)
		}
		if signer != owner {
			return ir.DelegationBundle{}, fmt.Errorf("delegation %d: signed by %s, expected %s", i, signer.Hex(), owner.Hex())
		}

		in.Delegations[i].Delegate = delegate
		items[i] = ir.IRObject{
			"delegate":  ir.IRString(delegate),
			"authority": ir.IRString(d.Authority),
			"signature": ir.IRString(strings.ToLower(d.Signature)),
		}
	}

	canonical, err := ir.MarshalCanonical(items)
	if err != nil {
		return ir.DelegationBundle{}, err
	}
	return ir.DelegationBundle{
		Delegations: in.Delegations,
		Digest:      crypto.Keccak256Hash(canonical).Hex(),
	}, nil
}

// prepareOperator assembles the operator config once every required input
// is present. The pool defaults to the first catalog entry.
func prepareOperator(cfg Config, inputs ir.OnboardingInputs, pools []ir.Pool) (ir.OperatorConfig, error) {
	if inputs.Setup == nil {
		return ir.OperatorConfig{}, errors.New("setup input missing")
	}

	op := ir.OperatorConfig{
		WalletAddress: inputs.Setup.WalletAddress,
		PoolAddress:   inputs.Setup.PoolAddress,
		ChainID:       cfg.ChainID,
	}
	if op.PoolAddress == "" && len(pools) > 0 {
		addr, err := ChecksumAddress("pool_address", pools[0].Address)
		if err != nil {
			return ir.OperatorConfig{}, err
		}
		op.PoolAddress = addr
	}
	if inputs.FundingToken != nil {
		op.FundingTokenAddress = inputs.FundingToken.TokenAddress
	}
	if inputs.Delegations != nil {
		op.DelegationDigest = inputs.Delegations.Digest
	}
	return op, nil
}
