package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while applying an instruction.
//
// Runtime errors include:
//   - Unknown command: the instruction names a command the core rejects
//   - Invalid instruction: the instruction cannot be routed (no thread id)
//   - Checkpoint: loading or saving durable state failed
//   - Tick: the workflow core returned an error
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// ThreadID identifies the affected thread.
	ThreadID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownCommand indicates the instruction named an unknown command.
	ErrCodeUnknownCommand RuntimeErrorCode = "UNKNOWN_COMMAND"

	// ErrCodeInvalidInstruction indicates the instruction could not be routed.
	ErrCodeInvalidInstruction RuntimeErrorCode = "INVALID_INSTRUCTION"

	// ErrCodeCheckpoint indicates durable state could not be read or written.
	ErrCodeCheckpoint RuntimeErrorCode = "CHECKPOINT"

	// ErrCodeTick indicates the workflow core failed the tick.
	ErrCodeTick RuntimeErrorCode = "TICK_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ThreadID != "" {
		msg = fmt.Sprintf("%s (thread=%s)", msg, e.ThreadID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownCommand returns true if err is an unknown-command error.
// Uses errors.As to handle wrapped errors.
func IsUnknownCommand(err error) bool {
	return hasCode(err, ErrCodeUnknownCommand)
}

// IsCheckpointError returns true if err is a checkpoint error.
func IsCheckpointError(err error) bool {
	return hasCode(err, ErrCodeCheckpoint)
}

// IsInvalidInstruction returns true if err is an invalid-instruction error.
func IsInvalidInstruction(err error) bool {
	return hasCode(err, ErrCodeInvalidInstruction)
}

// NewUnknownCommandError creates a RuntimeError for an unknown command.
func NewUnknownCommandError(threadID, name string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownCommand,
		Message:  fmt.Sprintf("unknown command %q", name),
		ThreadID: threadID,
		Details:  map[string]string{"command": name},
		Err:      cause,
	}
}

// NewCheckpointError creates a RuntimeError for a failed load or save.
func NewCheckpointError(threadID, op string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeCheckpoint,
		Message:  op + " failed",
		ThreadID: threadID,
		Details:  map[string]string{"op": op},
		Err:      cause,
	}
}
