package onboarding

// Phase is one stage of the onboarding funnel.
type Phase string

const (
	PhaseCollectPoolCatalog  Phase = "collect-pool-catalog"
	PhaseCollectSetupInput   Phase = "collect-setup-input"
	PhaseCollectFundingToken Phase = "collect-funding-token"
	PhaseCollectDelegations  Phase = "collect-delegations"
	PhasePrepareOperator     Phase = "prepare-operator"
	PhaseReady               Phase = "ready"
)

// phaseOrder is the fixed cascade. The first unmet prerequisite wins.
var phaseOrder = []Phase{
	PhaseCollectPoolCatalog,
	PhaseCollectSetupInput,
	PhaseCollectFundingToken,
	PhaseCollectDelegations,
	PhasePrepareOperator,
	PhaseReady,
}

// Phases returns the phases in cascade order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// index returns the position of p in the cascade, or -1.
func (p Phase) index() int {
	for i, q := range phaseOrder {
		if q == p {
			return i
		}
	}
	return -1
}

// Flags describe what has been collected for this tick.
type Flags struct {
	RequiresPoolCatalog       bool
	HasPoolCatalog            bool
	HasSetupInput             bool
	RequiresFundingToken      bool
	HasFundingTokenInput      bool
	RequiresDelegationSigning bool
	HasDelegationBundle       bool
	HasOperatorConfig         bool
}

// satisfied reports whether the prerequisite guarded by p holds.
// Phases an agent does not require are always satisfied.
func (f Flags) satisfied(p Phase) bool {
	switch p {
	case PhaseCollectPoolCatalog:
		return !f.RequiresPoolCatalog || f.HasPoolCatalog
	case PhaseCollectSetupInput:
		return f.HasSetupInput
	case PhaseCollectFundingToken:
		return !f.RequiresFundingToken || f.HasFundingTokenInput
	case PhaseCollectDelegations:
		return !f.RequiresDelegationSigning || f.HasDelegationBundle
	case PhasePrepareOperator:
		return f.HasOperatorConfig
	}
	return true
}

// ResolvePhase returns the first phase whose prerequisite is unmet, or
// PhaseReady when every prerequisite holds. A later prerequisite being met
// never skips an earlier unmet one.
func ResolvePhase(f Flags) Phase {
	for _, p := range phaseOrder {
		if p == PhaseReady {
			break
		}
		if !f.satisfied(p) {
			return p
		}
	}
	return PhaseReady
}
