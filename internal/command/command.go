// Package command parses the inbound instruction envelope and decides,
// per tick, whether the instruction was already applied.
package command

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/ir"
)

// Name identifies a command on the wire.
type Name string

const (
	NameHire  Name = "hire"
	NameFire  Name = "fire"
	NameCycle Name = "cycle"
	NameSync  Name = "sync"
)

// Envelope field names.
const (
	fieldCommand          = "command"
	fieldClientMutationID = "clientMutationId"
)

// Command is a closed sum type: Hire, Fire, Cycle or Sync.
type Command interface {
	Name() Name
	sealed()
}

// Hire starts a new task instance and onboarding.
type Hire struct {
	FundingAmountUSD *float64
	WalletAddress    string
	Fields           ir.IRObject // remaining command-specific fields
}

// Fire cancels the running task.
type Fire struct {
	Reason string
	Fields ir.IRObject
}

// Cycle requests one trading cycle.
type Cycle struct {
	Fields ir.IRObject
}

// Sync acknowledges the client's view of the thread. It never mutates
// strategy state.
type Sync struct {
	Fields ir.IRObject
}

func (Hire) Name() Name  { return NameHire }
func (Fire) Name() Name  { return NameFire }
func (Cycle) Name() Name { return NameCycle }
func (Sync) Name() Name  { return NameSync }

func (Hire) sealed()  {}
func (Fire) sealed()  {}
func (Cycle) sealed() {}
func (Sync) sealed()  {}

// Envelope is the parsed instruction of one tick. A nil Command means there
// is no actionable instruction.
type Envelope struct {
	Command          Command
	ClientMutationID string
}

// UnknownCommandError rejects a command name outside the closed set.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Name)
}

// Parse inspects only the most recent message. Content that is not a JSON
// object with a string "command" field yields an empty envelope.
// An unrecognised command name is rejected with *UnknownCommandError.
func Parse(messages []ir.Message) (Envelope, error) {
	if len(messages) == 0 {
		return Envelope{}, nil
	}
	return ParseContent(messages[len(messages)-1].Content)
}

// ParseContent parses one instruction payload.
func ParseContent(content string) (Envelope, error) {
	raw := bytes.TrimSpace([]byte(content))
	if len(raw) == 0 || raw[0] != '{' {
		return Envelope{}, nil
	}

	var obj ir.IRObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Envelope{}, nil
	}

	var env Envelope
	env.ClientMutationID, _ = obj.String(fieldClientMutationID)

	name, ok := obj.String(fieldCommand)
	if !ok {
		return env, nil
	}

	rest := obj.Without(fieldCommand, fieldClientMutationID)
	switch Name(name) {
	case NameHire:
		h := Hire{}
		if amount, ok := rest.Number("fundingAmountUsd"); ok {
			h.FundingAmountUSD = &amount
		}
		h.WalletAddress, _ = rest.String("walletAddress")
		h.Fields = rest.Without("fundingAmountUsd", "walletAddress")
		env.Command = h
	case NameFire:
		f := Fire{}
		f.Reason, _ = rest.String("reason")
		f.Fields = rest.Without("reason")
		env.Command = f
	case NameCycle:
		env.Command = Cycle{Fields: rest}
	case NameSync:
		env.Command = Sync{Fields: rest}
	default:
		return env, &UnknownCommandError{Name: name}
	}
	return env, nil
}
