package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/history"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/onboarding"
)

// Defaults applied to an agent block that leaves fields unset.
const (
	DefaultAgentName = "scenario-agent"
	DefaultChainID   = int64(42161)
)

// DefaultStart is the wall-clock instant a scenario starts at unless it
// sets start.
var DefaultStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Scenario is one test scenario loaded from YAML.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Start       string      `yaml:"start,omitempty"`        // RFC 3339, defaults to DefaultStart
	OperatorKey string      `yaml:"operator_key,omitempty"` // hex secp256k1 key of the operator wallet
	Agent       AgentConfig `yaml:"agent"`
	Pools       []PoolEntry `yaml:"pools,omitempty"`
	Steps       []Step      `yaml:"steps"`
	Assertions  []Assertion `yaml:"assertions"`
}

// AgentConfig describes the agent the scenario hires.
type AgentConfig struct {
	Name     string             `yaml:"name,omitempty"`
	ChainID  int64              `yaml:"chain_id,omitempty"`
	Variant  onboarding.Variant `yaml:"variant"`
	DriftPct float64            `yaml:"drift_pct,omitempty"`
	Limits   *history.Limits    `yaml:"limits,omitempty"`
}

// PoolEntry is one pool served by the scenario's catalog.
type PoolEntry struct {
	Address string `yaml:"address"`
	Symbol  string `yaml:"symbol"`
	ChainID int64  `yaml:"chain_id,omitempty"`
}

// Step is one tick. Exactly one of Instruction, Resume or Delegations is set.
type Step struct {
	Advance     string            `yaml:"advance,omitempty"` // Go duration added to the clock before the tick
	Instruction map[string]any    `yaml:"instruction,omitempty"`
	Resume      any               `yaml:"resume,omitempty"`
	Delegations []DelegationEntry `yaml:"delegations,omitempty"`
	Expect      *ExpectClause     `yaml:"expect,omitempty"`
}

// DelegationEntry is a delegation the harness signs with the operator key.
type DelegationEntry struct {
	Delegate  string `yaml:"delegate"`
	Authority string `yaml:"authority"`
}

// ExpectClause is checked right after the step's tick.
type ExpectClause struct {
	TaskState  string `yaml:"task_state,omitempty"`
	Interrupt  string `yaml:"interrupt,omitempty"` // "none" asserts no interrupt
	Suppressed *bool  `yaml:"suppressed,omitempty"`
	Error      string `yaml:"error,omitempty"` // substring of the expected tick error
}

// Assertion is evaluated after the last step.
type Assertion struct {
	Type   string   `yaml:"type"`
	Route  string   `yaml:"route,omitempty"`
	Routes []string `yaml:"routes,omitempty"`
	Step   int      `yaml:"step,omitempty"` // 1-based; 0 means any step
	Count  int      `yaml:"count,omitempty"`
	Path   string   `yaml:"path,omitempty"`
	Expect any      `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertRouteContains    = "route_contains"
	AssertRouteOrder       = "route_order"
	AssertRouteCount       = "route_count"
	AssertFinalState       = "final_state"
	AssertLedgerConsistent = "ledger_consistent"
)

// InterruptNone in an expect clause asserts that no interrupt was raised.
const InterruptNone = "none"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// StartTime returns the scenario's starting wall-clock instant.
func (s *Scenario) StartTime() (time.Time, error) {
	if s.Start == "" {
		return DefaultStart, nil
	}
	t, err := time.Parse(time.RFC3339, s.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("start: %w", err)
	}
	return t.UTC(), nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := s.StartTime(); err != nil {
		return err
	}

	if s.Agent.ChainID < 0 {
		return fmt.Errorf("agent.chain_id must not be negative")
	}

	for i, p := range s.Pools {
		if !common.IsHexAddress(p.Address) {
			return fmt.Errorf("pools[%d]: address %q is not a valid address", i, p.Address)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(s, i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(s *Scenario, index int, step *Step) error {
	set := 0
	if step.Instruction != nil {
		set++
	}
	if step.Resume != nil {
		set++
	}
	if len(step.Delegations) > 0 {
		set++
		if s.OperatorKey == "" {
			return fmt.Errorf("steps[%d]: delegations need operator_key", index)
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of instruction, resume, delegations is required", index)
	}

	if step.Advance != "" {
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRouteContains:
		if a.Route == "" {
			return fmt.Errorf("assertions[%d]: route is required for route_contains", index)
		}
		if a.Step < 0 {
			return fmt.Errorf("assertions[%d]: step must not be negative", index)
		}
	case AssertRouteOrder:
		if len(a.Routes) == 0 {
			return fmt.Errorf("assertions[%d]: routes list is required for route_order", index)
		}
	case AssertRouteCount:
		if a.Route == "" {
			return fmt.Errorf("assertions[%d]: route is required for route_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for route_count", index)
		}
	case AssertFinalState:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for final_state", index)
		}
	case AssertLedgerConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
