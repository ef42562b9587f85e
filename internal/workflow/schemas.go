package workflow

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/interrupt"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/task"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Operator prompts, one per interrupt kind.
const (
	SetupPrompt        = "Provide the strategy setup: wallet address and funding amount in USD."
	FundingTokenPrompt = "Select the token used to fund the strategy."
	DelegationPrompt   = task.AwaitingDelegationMessage
)

var schemaFiles = map[interrupt.Kind]string{
	interrupt.KindSetup:        "schemas/setup.json",
	interrupt.KindFundingToken: "schemas/funding_token.json",
	interrupt.KindDelegations:  "schemas/delegations.json",
}

var prompts = map[interrupt.Kind]string{
	interrupt.KindSetup:        SetupPrompt,
	interrupt.KindFundingToken: FundingTokenPrompt,
	interrupt.KindDelegations:  DelegationPrompt,
}

// requestFor builds the interrupt request for kind. When a pool catalog is
// known, the setup schema restricts pool_address to the catalog.
func requestFor(kind interrupt.Kind, pools []ir.Pool) (interrupt.Request, error) {
	doc, err := schemaFS.ReadFile(schemaFiles[kind])
	if err != nil {
		return interrupt.Request{}, fmt.Errorf("schema for %s: %w", kind, err)
	}

	if kind == interrupt.KindSetup && len(pools) > 0 {
		doc, err = restrictPools(doc, pools)
		if err != nil {
			return interrupt.Request{}, err
		}
	}

	return interrupt.Request{Kind: kind, Message: prompts[kind], Schema: doc}, nil
}

func restrictPools(doc []byte, pools []ir.Pool) ([]byte, error) {
	var schema map[string]any
	if err := json.Unmarshal(doc, &schema); err != nil {
		return nil, fmt.Errorf("decode setup schema: %w", err)
	}
	props, _ := schema["properties"].(map[string]any)
	pool, _ := props["pool_address"].(map[string]any)
	if pool == nil {
		return nil, fmt.Errorf("setup schema has no pool_address property")
	}

	enum := make([]string, len(pools))
	for i, p := range pools {
		enum[i] = p.Address
	}
	pool["enum"] = enum

	return json.Marshal(schema)
}
