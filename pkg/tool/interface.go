package tool

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// Definition is the discovery contract of a tool: its name, what it does and
// the JSON Schema of its arguments
type Definition struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Tool is one callable operation exposed to protocol clients
type Tool interface {
	// Definition returns the immutable tool definition
	Definition() *Definition

	// Execute runs the tool with raw JSON arguments and returns a JSON-serializable result
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}
