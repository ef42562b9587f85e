package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const (
	testWallet = "0x2B5AD5c4795c026514f8317c7a215E218DcCD6cF"

	bypassProfile = `
agent_name: gmx-allora
chain_id: 42161
drift_pct: 0.1
variant:
  delegations_bypass: true
`

	hireInstruction = `{"command":"hire","clientMutationId":"h-1","walletAddress":"` + testWallet + `","fundingAmountUsd":250}`
)

// newTestOptions returns root options bound to a fresh database. A non-empty
// profile is written next to it and passed as --config.
func newTestOptions(t *testing.T, format, profile string) *RootOptions {
	t.Helper()
	dir := t.TempDir()
	opts := &RootOptions{Format: format, Database: filepath.Join(dir, "agent.db")}
	if profile != "" {
		opts.Config = filepath.Join(dir, "agent.yaml")
		require.NoError(t, os.WriteFile(opts.Config, []byte(profile), 0644))
	}
	return opts
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// tick applies one instruction and returns the decoded result.
func tick(t *testing.T, opts *RootOptions, args ...string) TickResult {
	t.Helper()
	jsonOpts := *opts
	jsonOpts.Format = "json"
	out, err := execute(t, NewTickCommand(&jsonOpts), args...)
	require.NoError(t, err, out)

	var resp struct {
		Status string     `json:"status"`
		Data   TickResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}
