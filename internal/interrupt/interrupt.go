// Package interrupt is the suspension boundary between the workflow core and
// whatever runtime persists and resumes a thread.
//
// The core asks a Suspender for operator input. A Suspender either hands back
// a payload or reports that none is available yet, in which case the tick
// returns the Request and the runtime halts the thread until the operator
// answers.
package interrupt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Kind identifies what an interrupt is asking for.
type Kind string

const (
	KindSetup        Kind = "setup"
	KindFundingToken Kind = "funding-token"
	KindDelegations  Kind = "delegations"
)

// Request describes the operator input the core is waiting for.
type Request struct {
	Kind    Kind            `json:"kind"`
	Message string          `json:"message"`
	Schema  json.RawMessage `json:"schema"` // JSON Schema of the expected payload
}

// Suspender is the suspend/resume capability. Suspend returns ok=false when
// no payload is available yet.
type Suspender interface {
	Suspend(ctx context.Context, req Request) (payload json.RawMessage, ok bool, err error)
}

// Resumed serves a payload supplied with the current invocation, the way a
// checkpointing runtime replays the operator's answer into the next tick.
// The payload is handed out at most once.
type Resumed struct {
	mu      sync.Mutex
	payload json.RawMessage
}

// NewResumed returns a Resumed for payload. A nil payload never resumes.
func NewResumed(payload json.RawMessage) *Resumed {
	return &Resumed{payload: payload}
}

// Suspend implements Suspender.
func (r *Resumed) Suspend(_ context.Context, _ Request) (json.RawMessage, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.payload) == 0 {
		return nil, false, nil
	}
	p := r.payload
	r.payload = nil
	return p, true, nil
}

// Channel is an in-process coroutine backing: Suspend publishes the request
// and blocks until a response arrives or ctx is done.
type Channel struct {
	requests  chan Request
	responses chan json.RawMessage
}

// NewChannel returns a Channel with unbuffered request and response queues.
func NewChannel() *Channel {
	return &Channel{
		requests:  make(chan Request),
		responses: make(chan json.RawMessage),
	}
}

// Requests delivers the requests the core is waiting on.
func (c *Channel) Requests() <-chan Request {
	return c.requests
}

// Respond answers the outstanding request.
func (c *Channel) Respond(ctx context.Context, payload json.RawMessage) error {
	select {
	case c.responses <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Suspend implements Suspender.
func (c *Channel) Suspend(ctx context.Context, req Request) (json.RawMessage, bool, error) {
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	select {
	case p := <-c.responses:
		return p, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Normalize accepts an operator response given either as a JSON object or
// as a JSON string holding an object, and returns the object.
func Normalize(raw json.RawMessage) (json.RawMessage, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errors.New("response must be a JSON object")
	}
	if obj == nil {
		return nil, errors.New("response must be a JSON object")
	}
	return raw, nil
}

// ValidationError reports an operator response that does not match the
// request schema. The message is safe to show the operator.
type ValidationError struct {
	Kind   Kind
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s input: %s", e.Kind, e.Reason)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
