package onboarding

import (
	"slices"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

// Pointer is the legacy step pointer: a 1-based step number and its key.
type Pointer struct {
	Step int    `json:"step"`
	Key  string `json:"key"`
}

// PointerFor maps a resolved phase onto the step list. Phases before the
// first step (the pool catalog) point at step 1. Phases past the last
// operator step (prepare-operator, ready) have no pointer.
func PointerFor(phase Phase, defs []StepDefinition) (Pointer, bool) {
	idx := phase.index()
	if idx < 0 || phase == PhasePrepareOperator || phase == PhaseReady {
		return Pointer{}, false
	}
	for i, d := range defs {
		if d.Phase.index() >= idx {
			return Pointer{Step: i + 1, Key: d.ID}, true
		}
	}
	return Pointer{}, false
}

// BuildInput is everything Build needs for one tick.
type BuildInput struct {
	Pointer       *Pointer // nil when no live phase was resolved this tick
	Steps         []StepDefinition
	Previous      *ir.OnboardingContract
	SetupComplete bool
	TaskState     ir.TaskState
	Restart       bool // a new hire starts a fresh onboarding
}

// Build projects the pointer onto a contract and applies finalization.
//
// A finalized previous contract is returned unchanged unless Restart is set;
// a restart without a pointer starts from step 1. With no pointer the
// previous contract is only frozen, which bumps its revision when the status
// changes. Returns nil when there is nothing to build from.
func Build(in BuildInput) *ir.OnboardingContract {
	prev := in.Previous
	if prev.Finalized() && !in.Restart {
		return cloneContract(prev)
	}

	var c *ir.OnboardingContract
	frozen := false
	switch {
	case in.Pointer != nil:
		c = fromPointer(*in.Pointer, in.Steps)
		c.Revision = revisionOf(prev) + 1
	case in.Restart && len(in.Steps) > 0:
		c = fromPointer(Pointer{Step: 1, Key: in.Steps[0].ID}, in.Steps)
		c.Revision = revisionOf(prev) + 1
	case prev != nil && !in.Restart:
		c = cloneContract(prev)
		frozen = true
	default:
		return nil
	}

	if finalize(c, in.SetupComplete, in.TaskState) && frozen {
		c.Revision++
	}
	return c
}

func fromPointer(p Pointer, defs []StepDefinition) *ir.OnboardingContract {
	c := &ir.OnboardingContract{
		Status: ir.OnboardingInProgress,
		Steps:  make([]ir.OnboardingStep, len(defs)),
	}
	for i, d := range defs {
		status := ir.StepPending
		switch {
		case i+1 < p.Step:
			status = ir.StepCompleted
		case i+1 == p.Step:
			status = ir.StepActive
			c.ActiveStepID = d.ID
		}
		c.Steps[i] = ir.OnboardingStep{ID: d.ID, Title: d.Title, Status: status}
	}
	if c.ActiveStepID == "" && p.Step <= len(defs) {
		c.ActiveStepID = p.Key
	}
	return c
}

// finalize freezes c when setup is complete or the task has ended.
// Reports whether c changed.
func finalize(c *ir.OnboardingContract, setupComplete bool, state ir.TaskState) bool {
	if c.Finalized() {
		return false
	}
	switch {
	case setupComplete:
		c.Status = ir.OnboardingCompleted
		for i := range c.Steps {
			c.Steps[i].Status = ir.StepCompleted
		}
	case state == ir.TaskFailed:
		c.Status = ir.OnboardingFailed
	case state == ir.TaskCanceled:
		c.Status = ir.OnboardingCanceled
	default:
		return false
	}
	c.ActiveStepID = ""
	return true
}

func revisionOf(c *ir.OnboardingContract) int64 {
	if c == nil {
		return 0
	}
	return c.Revision
}

func cloneContract(c *ir.OnboardingContract) *ir.OnboardingContract {
	if c == nil {
		return nil
	}
	out := *c
	out.Steps = slices.Clone(c.Steps)
	return &out
}
