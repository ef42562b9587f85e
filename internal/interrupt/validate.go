package interrupt

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/encoding/jsonschema"
)

// Validate checks raw against the request schema and returns the normalized
// payload. Schema and payload are both lowered to CUE and unified; any
// conflict or missing required field is a *ValidationError.
//
// An error that is not a *ValidationError means the schema itself is broken.
func Validate(req Request, raw json.RawMessage) (json.RawMessage, error) {
	payload, err := Normalize(raw)
	if err != nil {
		return nil, &ValidationError{Kind: req.Kind, Reason: err.Error()}
	}

	ctx := cuecontext.New()
	schema, err := compileSchema(ctx, req.Schema)
	if err != nil {
		return nil, fmt.Errorf("interrupt %s: %w", req.Kind, err)
	}

	data := ctx.CompileBytes(payload)
	if err := data.Err(); err != nil {
		return nil, &ValidationError{Kind: req.Kind, Reason: "response is not valid JSON"}
	}

	if err := schema.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return nil, &ValidationError{Kind: req.Kind, Reason: describe(err)}
	}
	return payload, nil
}

// compileSchema extracts a CUE definition from a JSON Schema document.
func compileSchema(ctx *cue.Context, doc json.RawMessage) (cue.Value, error) {
	v := ctx.CompileBytes(doc)
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("parse schema: %w", err)
	}
	file, err := jsonschema.Extract(v, &jsonschema.Config{})
	if err != nil {
		return cue.Value{}, fmt.Errorf("extract schema: %w", err)
	}
	schema := ctx.BuildFile(file)
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("build schema: %w", err)
	}
	return schema, nil
}

// describe flattens CUE errors into one operator-facing line of
// "<field>: <reason>" entries. Schema bounds and patterns are not repeated.
func describe(err error) string {
	var parts []string
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		msg := fieldName(e.Path()) + ": " + reason(fmt.Sprintf(format, args...))
		if !slices.Contains(parts, msg) {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		return "response does not match the expected input"
	}
	return strings.Join(parts, "; ")
}

// fieldName joins the data path of an error, skipping CUE definitions.
func fieldName(path []string) string {
	var fields []string
	for _, p := range path {
		if strings.HasPrefix(p, "#") {
			continue
		}
		fields = append(fields, p)
	}
	if len(fields) == 0 {
		return "response"
	}
	return strings.Join(fields, ".")
}

func reason(msg string) string {
	switch {
	case strings.Contains(msg, "=~") || strings.Contains(msg, "!~"):
		return "does not match the expected format"
	case strings.Contains(msg, "mismatched types"):
		return "has the wrong type"
	case strings.Contains(msg, "out of bound"):
		return "is out of range"
	case strings.Contains(msg, "required") || strings.Contains(msg, "incomplete"):
		return "is required"
	case strings.Contains(msg, "not allowed"):
		return "is not allowed"
	default:
		return "is invalid"
	}
}
