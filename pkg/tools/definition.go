package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// Handler executes one tool call. Args is the raw JSON argument object,
// already validated against the declaration's parameter schema. A string
// result is passed through verbatim; any other value is JSON-encoded
// before it reaches the transcript.
type Handler func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Declaration is the provider-facing description of a tool: what the
// model sees when deciding to call it.
type Declaration struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// Definition pairs a declaration with the handler that serves it.
type Definition struct {
	Declaration
	Handler Handler `json:"-"`
}

// ParamsSchema reflects a JSON schema from a parameter struct instance.
// Definitions are expanded inline so providers get a self-contained
// object schema.
func ParamsSchema(params interface{}) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := reflector.Reflect(params)
	if schema.Type == "" && schema.Ref == "" {
		schema.Type = "object"
	}
	return schema
}

// NewDefinition builds a definition with the parameter schema reflected
// from params. Pass nil params for a tool that takes no arguments.
func NewDefinition(name, description string, params interface{}, handler Handler) (Definition, error) {
	if name == "" {
		return Definition{}, errors.New("tool name cannot be empty")
	}
	if handler == nil {
		return Definition{}, errors.Errorf("tool %s has no handler", name)
	}
	var schema *jsonschema.Schema
	if params != nil {
		schema = ParamsSchema(params)
	} else {
		schema = &jsonschema.Schema{Type: "object"}
	}
	return Definition{
		Declaration: Declaration{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
		Handler: handler,
	}, nil
}
