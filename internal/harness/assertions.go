package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/engine"
)

// AssertionContext provides what final-state assertions need beyond the trace.
type AssertionContext struct {
	Engine   *engine.Engine
	ThreadID string
	Now      time.Time
	Ctx      context.Context
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", event.Step, strings.Join(event.Route, ">"))
			if event.Error != "" {
				fmt.Fprintf(&buf, " error=%s", event.Error)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// assertRouteContains checks that a node was visited, at the given step if
// one is named.
func assertRouteContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if assertion.Step != 0 && event.Step != assertion.Step {
			continue
		}
		for _, r := range event.Route {
			if r == assertion.Route {
				return nil
			}
		}
	}

	where := "any step"
	if assertion.Step != 0 {
		where = fmt.Sprintf("step %d", assertion.Step)
	}
	return &AssertionError{
		Type:     AssertRouteContains,
		Expected: fmt.Sprintf("route %s at %s", assertion.Route, where),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertRouteOrder checks that nodes appear in the specified order across
// the flattened trace. Intervening nodes are allowed.
func assertRouteOrder(trace []TraceEvent, assertion Assertion) error {
	var flat []string
	for _, event := range trace {
		flat = append(flat, event.Route...)
	}

	next := 0
	for _, r := range flat {
		if next < len(assertion.Routes) && r == assertion.Routes[next] {
			next++
		}
	}
	if next == len(assertion.Routes) {
		return nil
	}

	return &AssertionError{
		Type:     AssertRouteOrder,
		Expected: fmt.Sprintf("routes in order: %v", assertion.Routes),
		Actual:   fmt.Sprintf("%s not reached after %v", assertion.Routes[next], assertion.Routes[:next]),
		Trace:    trace,
	}
}

// assertRouteCount checks if the node is visited exactly the specified number of times.
func assertRouteCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		for _, r := range event.Route {
			if r == assertion.Route {
				count++
			}
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertRouteCount,
			Expected: fmt.Sprintf("%d visits of %s", assertion.Count, assertion.Route),
			Actual:   fmt.Sprintf("%d visits", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState looks up a dotted path in the JSON form of the final
// projection and compares it with the expected value. Numeric segments
// index arrays: "transactions.0.action".
func assertFinalState(result *Result, assertion Assertion) error {
	data, err := json.Marshal(result.Projection)
	if err != nil {
		return fmt.Errorf("marshal projection: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode projection: %w", err)
	}

	actual, found := lookupPath(doc, assertion.Path)
	if !found {
		if assertion.Expect == nil {
			return nil
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", assertion.Path, assertion.Expect),
			Actual:   "path not found in projection",
		}
	}

	if !valuesEqual(actual, assertion.Expect) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", assertion.Path, assertion.Expect),
			Actual:   fmt.Sprintf("%s = %v", assertion.Path, actual),
		}
	}
	return nil
}

// assertLedgerConsistent recomputes the thread's accounting from the
// checkpoint and from the history store and requires both to agree.
func assertLedgerConsistent(result *Result, actx *AssertionContext) error {
	if actx == nil || actx.Engine == nil {
		return fmt.Errorf("ledger_consistent requires an engine")
	}
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := actx.Engine.Recompute(ctx, actx.ThreadID, actx.Now)
	if err != nil {
		return fmt.Errorf("recompute: %w", err)
	}
	if report.OK() {
		return nil
	}

	actual := fmt.Sprintf("mismatched fields %v", report.LedgerMismatches)
	if !report.Deterministic {
		actual = "recompute is not deterministic; " + actual
	}
	return &AssertionError{
		Type:     AssertLedgerConsistent,
		Expected: "checkpointed accounting matches the history store",
		Actual:   actual,
		Trace:    result.Trace,
	}
}

// lookupPath walks a decoded JSON document along a dotted path.
func lookupPath(doc any, path string) (any, bool) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// valuesEqual compares a decoded JSON value against a decoded YAML value.
// Numbers compare by value regardless of their Go type.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	if a, ok := toFloat(actual); ok {
		e, ok := toFloat(expected)
		return ok && a == e
	}

	switch a := actual.(type) {
	case string:
		e, ok := expected.(string)
		return ok && a == e
	case bool:
		e, ok := expected.(bool)
		return ok && a == e
	}

	// Compound values compare by their JSON encoding.
	ab, err := json.Marshal(actual)
	if err != nil {
		return false
	}
	eb, err := json.Marshal(expected)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, eb)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a list of error messages (empty if all pass).
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertRouteContains:
			err = assertRouteContains(result.Trace, assertion)
		case AssertRouteOrder:
			err = assertRouteOrder(result.Trace, assertion)
		case AssertRouteCount:
			err = assertRouteCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertLedgerConsistent:
			err = assertLedgerConsistent(result, actx)
		default:
			err = fmt.Errorf("unknown assertion type: %s", assertion.Type)
		}

		if err != nil {
			errors = append(errors, fmt.Sprintf("assertion %d: %v", i+1, err))
		}
	}

	return errors
}
