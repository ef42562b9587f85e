package onboarding

// Step identifiers used in the contract.
const (
	StepSetup        = "setup"
	StepFundingToken = "funding-token"
	StepDelegations  = "delegation-signing"
)

// Variant is the onboarding shape of one agent. Agents differ in whether
// they pick from a pool catalog, ask for a funding token, or skip
// delegation signing entirely (delegations bypass).
type Variant struct {
	RequiresPoolCatalog  bool `yaml:"requires_pool_catalog" json:"requires_pool_catalog"`
	RequiresFundingToken bool `yaml:"requires_funding_token" json:"requires_funding_token"`
	DelegationsBypass    bool `yaml:"delegations_bypass" json:"delegations_bypass"`
}

// RequiresDelegationSigning reports whether the operator must sign
// delegations before the agent can act.
func (v Variant) RequiresDelegationSigning() bool {
	return !v.DelegationsBypass
}

// StepDefinition is one operator-visible onboarding step.
type StepDefinition struct {
	ID    string
	Title string
	Phase Phase
}

// Steps returns the step list for v, in funnel order.
func Steps(v Variant) []StepDefinition {
	steps := []StepDefinition{
		{ID: StepSetup, Title: "Strategy setup", Phase: PhaseCollectSetupInput},
	}
	if v.RequiresFundingToken {
		steps = append(steps, StepDefinition{ID: StepFundingToken, Title: "Funding token", Phase: PhaseCollectFundingToken})
	}
	if v.RequiresDelegationSigning() {
		steps = append(steps, StepDefinition{ID: StepDelegations, Title: "Delegation signing", Phase: PhaseCollectDelegations})
	}
	return steps
}

// Flags fills in the variant's requirement flags on f.
func (v Variant) Flags(f Flags) Flags {
	f.RequiresPoolCatalog = v.RequiresPoolCatalog
	f.RequiresFundingToken = v.RequiresFundingToken
	f.RequiresDelegationSigning = v.RequiresDelegationSigning()
	return f
}
