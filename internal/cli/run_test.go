package cli

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MissingDatabase(t *testing.T) {
	opts := &RootOptions{Format: "text"}
	_, err := execute(t, NewRunCommand(opts))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_RejectsArgs(t *testing.T) {
	opts := newTestOptions(t, "text", "")
	_, err := execute(t, NewRunCommand(opts), "extra")
	require.Error(t, err)
}

func TestRun_JSONLines(t *testing.T) {
	opts := newTestOptions(t, "json", bypassProfile)

	input := strings.Join([]string{
		`{"thread":"t-1","instruction":` + hireInstruction + `}`,
		`not json`,
		``,
		`{"thread":"t-1","instruction":{"command":"cycle","clientMutationId":"c-1"}}`,
		`{"thread":"t-1","instruction":{"command":"dance"}}`,
		`{"thread":"t-1"}`,
	}, "\n")

	cmd := NewRunCommand(opts)
	cmd.SetIn(strings.NewReader(input))
	out, err := execute(t, cmd)
	require.NoError(t, err)

	var replies []RunReply
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var r RunReply
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r), scanner.Text())
		replies = append(replies, r)
	}
	require.Len(t, replies, 5)

	assert.Equal(t, 1, replies[0].Line)
	require.NotNil(t, replies[0].Result)
	assert.Equal(t, int64(1), replies[0].Result.Seq)
	assert.Equal(t, 250.0, replies[0].Result.AumUSD)

	assert.Equal(t, 2, replies[1].Line)
	require.NotNil(t, replies[1].Error)
	assert.Equal(t, ErrCodeGeneric, replies[1].Error.Code)
	assert.Contains(t, replies[1].Error.Message, "malformed line")

	// Blank lines are skipped but still counted.
	assert.Equal(t, 4, replies[2].Line)
	require.NotNil(t, replies[2].Result)
	assert.Equal(t, int64(2), replies[2].Result.Seq)
	assert.Equal(t, 275.0, replies[2].Result.AumUSD)

	require.NotNil(t, replies[3].Error)
	assert.Equal(t, ErrCodeUnknownCommand, replies[3].Error.Code)

	require.NotNil(t, replies[4].Error)
	assert.Contains(t, replies[4].Error.Message, "an instruction or --resume is required")
}

func TestRun_TextOutput(t *testing.T) {
	opts := newTestOptions(t, "text", "")

	cmd := NewRunCommand(opts)
	cmd.SetIn(strings.NewReader(`{"thread":"t-9","instruction":{"command":"hire","clientMutationId":"h-1"}}` + "\n" + `{}` + "\n"))
	out, err := execute(t, cmd)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ t-9 seq 1")
	assert.Contains(t, out, "waiting for setup")
	assert.Contains(t, out, "✗ line 2:")
}

func TestRun_EmptyInput(t *testing.T) {
	opts := newTestOptions(t, "json", "")

	cmd := NewRunCommand(opts)
	cmd.SetIn(strings.NewReader(""))
	out, err := execute(t, cmd)
	require.NoError(t, err)
	assert.Empty(t, out)
}
