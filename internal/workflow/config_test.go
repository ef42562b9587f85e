package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"valid", Config{AgentName: "clmm", ChainID: chainID}, ""},
		{"missing name", Config{ChainID: chainID}, "agent name"},
		{"missing chain", Config{AgentName: "clmm"}, "chain"},
		{"negative poll", Config{AgentName: "clmm", ChainID: chainID, PollIntervalSeconds: -1}, "poll"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequestForRestrictsPools(t *testing.T) {
	req, err := requestFor("setup", defaultCatalog().Pools)
	require.NoError(t, err)
	assert.Contains(t, string(req.Schema), poolAddr)
	assert.Equal(t, SetupPrompt, req.Message)

	req, err = requestFor("delegations", nil)
	require.NoError(t, err)
	assert.Equal(t, DelegationPrompt, req.Message)
}
