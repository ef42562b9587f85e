package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

// timeLayout is the TEXT encoding of timestamps. Fixed width keeps
// lexical and chronological order aligned.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// marshalState converts a WorkflowState to JSON TEXT for storage.
// HTML escaping is disabled so stored payloads match what the CLI prints.
func marshalState(state ir.WorkflowState) (string, error) {
	return marshalPayload(state)
}

func unmarshalState(data string) (ir.WorkflowState, error) {
	var state ir.WorkflowState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return ir.WorkflowState{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, nil
}

func marshalPayload(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return string(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}
