package tool

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/utils/logging"
)

var ErrToolNotFound = goerr.New("tool not found")

// ResultKind tags the outcome of a dispatch
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultUnknownTool
	ResultFailed
)

func (x ResultKind) String() string {
	switch x {
	case ResultSuccess:
		return "success"
	case ResultUnknownTool:
		return "unknown_tool"
	case ResultFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Result is the outcome of Dispatch. Value is set for ResultSuccess, Err for the others.
type Result struct {
	Kind  ResultKind
	Name  string
	Value any
	Err   error
}

// Message returns the human readable failure reason, or "" on success
func (x *Result) Message() string {
	switch x.Kind {
	case ResultUnknownTool:
		return "Unknown tool: " + x.Name
	case ResultFailed:
		if x.Err != nil {
			return x.Err.Error()
		}
		return "tool failed"
	default:
		return ""
	}
}

// Registry holds the fixed tool catalogue in declaration order
type Registry struct {
	tools map[string]Tool
	order []Tool
}

// New creates a new tool registry with the given tools. A later tool with a
// duplicate name replaces the earlier one.
func New(tools ...Tool) *Registry {
	r := &Registry{
		tools: make(map[string]Tool),
	}

	for _, t := range tools {
		name := t.Definition().Name
		if _, exists := r.tools[name]; exists {
			for i, prev := range r.order {
				if prev.Definition().Name == name {
					r.order[i] = t
				}
			}
		} else {
			r.order = append(r.order, t)
		}
		r.tools[name] = t
	}

	return r
}

// Definitions returns every tool definition in declaration order
func (r *Registry) Definitions() []*Definition {
	defs := make([]*Definition, 0, len(r.order))
	for _, t := range r.order {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Has reports whether a tool with the name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Dispatch runs the named tool. It never returns nil and never panics on
// unknown names; failures are reported through the result kind.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) *Result {
	t, ok := r.tools[name]
	if !ok {
		return &Result{
			Kind: ResultUnknownTool,
			Name: name,
			Err:  goerr.Wrap(ErrToolNotFound, "unknown tool", goerr.V("name", name)),
		}
	}

	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		args = json.RawMessage("{}")
	}

	logger := logging.From(ctx).With("tool", name)
	value, err := t.Execute(ctx, args)
	if err != nil {
		logger.Warn("tool execution failed", "error", err)
		return &Result{Kind: ResultFailed, Name: name, Err: err}
	}

	logger.Debug("tool executed")
	return &Result{Kind: ResultSuccess, Name: name, Value: value}
}

// Marshal renders a tool result as 2-space indented JSON without HTML escaping
func Marshal(value any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return "", goerr.Wrap(err, "failed to marshal tool result")
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// DecodeArgs unmarshals raw arguments into v
func DecodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return goerr.Wrap(err, "invalid arguments")
	}
	return nil
}
