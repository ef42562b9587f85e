package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

func msgs(contents ...string) []ir.Message {
	out := make([]ir.Message, len(contents))
	for i, c := range contents {
		out[i] = ir.Message{Role: "user", Content: c}
	}
	return out
}

func TestParseNoActionableInstruction(t *testing.T) {
	tests := []struct {
		name     string
		messages []ir.Message
	}{
		{"no messages", nil},
		{"plain text", msgs("hello agent")},
		{"malformed json", msgs(`{"command": `)},
		{"array", msgs(`["hire"]`)},
		{"missing command", msgs(`{"clientMutationId": "m-1"}`)},
		{"non-string command", msgs(`{"command": 42}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Parse(tt.messages)
			require.NoError(t, err)
			assert.Nil(t, env.Command)
		})
	}
}

func TestParseInspectsOnlyLastMessage(t *testing.T) {
	env, err := Parse(msgs(`{"command":"hire"}`, "thanks"))
	require.NoError(t, err)
	assert.Nil(t, env.Command)

	env, err = Parse(msgs("thanks", `{"command":"cycle","clientMutationId":"m-2"}`))
	require.NoError(t, err)
	assert.Equal(t, Cycle{Fields: ir.IRObject{}}, env.Command)
	assert.Equal(t, "m-2", env.ClientMutationID)
}

func TestParseHire(t *testing.T) {
	env, err := ParseContent(`{"command":"hire","clientMutationId":"m-1","fundingAmountUsd":250.5,"walletAddress":"0xabc","note":"x"}`)
	require.NoError(t, err)

	hire, ok := env.Command.(Hire)
	require.True(t, ok)
	require.NotNil(t, hire.FundingAmountUSD)
	assert.InDelta(t, 250.5, *hire.FundingAmountUSD, 1e-9)
	assert.Equal(t, "0xabc", hire.WalletAddress)
	assert.Equal(t, ir.IRObject{"note": ir.IRString("x")}, hire.Fields)
	assert.Equal(t, "m-1", env.ClientMutationID)
	assert.Equal(t, NameHire, env.Command.Name())
}

func TestParseFireAndSync(t *testing.T) {
	env, err := ParseContent(`{"command":"fire","reason":"done"}`)
	require.NoError(t, err)
	assert.Equal(t, Fire{Reason: "done", Fields: ir.IRObject{}}, env.Command)
	assert.Empty(t, env.ClientMutationID)

	env, err = ParseContent(`{"command":"sync","clientMutationId":"m-5"}`)
	require.NoError(t, err)
	assert.Equal(t, NameSync, env.Command.Name())
}

func TestParseRejectsUnknownCommand(t *testing.T) {
	env, err := ParseContent(`{"command":"withdraw_all","clientMutationId":"m-9"}`)
	require.Error(t, err)

	var uce *UnknownCommandError
	require.True(t, errors.As(err, &uce))
	assert.Equal(t, "withdraw_all", uce.Name)
	assert.Nil(t, env.Command)
	assert.Equal(t, "m-9", env.ClientMutationID)
}
