package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/history"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/onboarding"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/workflow"
)

// Defaults used when no profile is given.
const (
	DefaultAgentName = "agentflow"
	DefaultChainID   = 42161
)

// LoadEnv reads .env from the working directory into the process
// environment. A missing file is not an error.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Profile is the YAML description of one agent.
type Profile struct {
	AgentName           string             `yaml:"agent_name"`
	ChainID             int64              `yaml:"chain_id"`
	Variant             onboarding.Variant `yaml:"variant"`
	PollIntervalSeconds int                `yaml:"poll_interval_seconds"`
	Limits              *history.Limits    `yaml:"limits"`
	DriftPct            float64            `yaml:"drift_pct"`
	Pools               []ProfilePool      `yaml:"pools"`
}

// ProfilePool is one entry of the static pool catalog.
type ProfilePool struct {
	Address string `yaml:"address"`
	Symbol  string `yaml:"symbol"`
	ChainID int64  `yaml:"chain_id"`
}

// DefaultProfile is used when --config is not set.
func DefaultProfile() *Profile {
	return &Profile{
		AgentName: DefaultAgentName,
		ChainID:   DefaultChainID,
	}
}

// LoadProfile reads and validates an agent profile. Unknown keys are
// rejected.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates profile YAML.
func ParseProfile(data []byte) (*Profile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the profile as the workflow will see it.
func (p *Profile) Validate() error {
	if err := p.WorkflowConfig().Validate(); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if p.DriftPct < -100 {
		return errors.New("profile: drift_pct must be at least -100")
	}
	for i, pool := range p.Pools {
		if !common.IsHexAddress(pool.Address) {
			return fmt.Errorf("profile: pools[%d]: %q is not a valid address", i, pool.Address)
		}
		if pool.Symbol == "" {
			return fmt.Errorf("profile: pools[%d]: symbol is required", i)
		}
	}
	return nil
}

// WorkflowConfig returns the workflow configuration for the profile.
func (p *Profile) WorkflowConfig() workflow.Config {
	cfg := workflow.Config{
		AgentName:           p.AgentName,
		ChainID:             p.ChainID,
		Variant:             p.Variant,
		Limits:              history.DefaultLimits(),
		PollIntervalSeconds: p.PollIntervalSeconds,
	}
	if p.Limits != nil {
		cfg.Limits = *p.Limits
	}
	return cfg
}

// NewCore builds a workflow core that trades on paper against the
// profile's static pool catalog.
func (p *Profile) NewCore(logger *slog.Logger) *workflow.Core {
	pools := make([]ir.Pool, len(p.Pools))
	for i, pool := range p.Pools {
		pools[i] = ir.Pool{Address: pool.Address, Symbol: pool.Symbol, ChainID: pool.ChainID}
	}
	return workflow.New(p.WorkflowConfig(), workflow.Deps{
		Cycle:   workflow.PaperCycle{DriftPct: p.DriftPct},
		Catalog: workflow.StaticCatalog{Pools: pools},
		Logger:  logger,
	})
}
