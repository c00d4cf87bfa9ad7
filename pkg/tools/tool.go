// Package tools provides the process-wide tool registry: a uniform Result
// contract, schema-described tools, retry with exponential backoff, and the
// per-run tool-call budget every invocation is gated by.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Result is the universal return value of every tool invocation.
type Result struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Ok builds a successful Result.
func Ok(output string) *Result {
	return &Result{Success: true, Output: output}
}

// Fail builds a failed Result. The output carries the diagnostic so the
// LLM sees what went wrong.
func Fail(err error) *Result {
	return &Result{Success: false, Error: err.Error(), Output: "tool failed: " + err.Error()}
}

// WithMeta attaches a metadata key to the result and returns it.
func (r *Result) WithMeta(key string, value any) *Result {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
	return r
}

// Tool is any capability the registry can invoke: a name, a description, a
// JSON Schema for its parameters, and the invocation itself.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON Schema of the tool's parameters; empty means
	// the tool takes no arguments.
	Schema() string
	Invoke(ctx context.Context, args map[string]any) (*Result, error)
}

// Definition is the registry's LLM-facing description of a tool.
type Definition struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Schema      string   `json:"parameters_schema,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// funcTool adapts a plain Go function with a struct argument into a Tool.
// The parameter schema is reflected from the struct's json tags.
type funcTool[A any] struct {
	name        string
	description string
	schema      string
	fn          func(ctx context.Context, args A) (any, error)
}

// NewFunc registers-a-function adapter: the tool discovery contract's "bare
// function annotated with the same schema" form. A is a struct whose json
// tags name the parameters; the schema is derived by reflection at
// construction time.
func NewFunc[A any](name, description string, fn func(ctx context.Context, args A) (any, error)) Tool {
	return &funcTool[A]{
		name:        name,
		description: description,
		schema:      reflectSchema[A](),
		fn:          fn,
	}
}

func (t *funcTool[A]) Name() string        { return t.name }
func (t *funcTool[A]) Description() string { return t.description }
func (t *funcTool[A]) Schema() string      { return t.schema }

func (t *funcTool[A]) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	var typed A
	if len(args) > 0 {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode arguments: %w", err)
		}
		if err := json.Unmarshal(raw, &typed); err != nil {
			return Fail(fmt.Errorf("invalid arguments for %s: %w", t.name, err)), nil
		}
	}
	value, err := t.fn(ctx, typed)
	if err != nil {
		return nil, err
	}
	return Normalize(value), nil
}

// Normalize wraps an arbitrary tool return value into the Result contract.
// A *Result passes through; strings are used verbatim; anything else is
// JSON-encoded.
func Normalize(value any) *Result {
	switch v := value.(type) {
	case *Result:
		return v
	case Result:
		return &v
	case nil:
		return Ok("")
	case string:
		return Ok(v)
	case []byte:
		return Ok(string(v))
	case error:
		return Fail(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return Ok(fmt.Sprintf("%v", v))
		}
		return Ok(string(raw))
	}
}

// reflectSchema derives a JSON Schema string from the argument struct type.
func reflectSchema[A any]() string {
	var v A
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(v)
	if schema == nil {
		return ""
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return string(raw)
}
