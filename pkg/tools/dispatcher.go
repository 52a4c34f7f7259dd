package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/go-go-golems/mangiafuoco/pkg/chat"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
)

// resultLogLimit caps how much of a tool result lands in logs and events.
const resultLogLimit = 200

// Dispatcher routes tool calls from the model to registered handlers.
// Failures become result strings rather than errors: the model sees
// what went wrong and can try again, and the loop never aborts on a
// bad tool call.
type Dispatcher struct {
	registry Registry
	meta     events.EventMetadata
}

func NewDispatcher(registry Registry, meta events.EventMetadata) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		meta:     meta,
	}
}

// Execute runs one tool call and returns the transcript content for the
// tool message answering it.
func (d *Dispatcher) Execute(ctx context.Context, call chat.ToolCall) string {
	name := call.Function.Name
	start := time.Now()

	meta := d.meta
	meta.ID = uuid.New()
	events.PublishEventToContext(ctx, events.NewToolStartEvent(
		meta, call.ID, name, Truncate(call.Function.Arguments, resultLogLimit)))

	result, failed := d.execute(ctx, call)

	durationMs := time.Since(start).Milliseconds()
	meta.ID = uuid.New()
	events.PublishEventToContext(ctx, events.NewToolEndEvent(
		meta, call.ID, name, Truncate(result, resultLogLimit), durationMs, failed))

	log.Debug().
		Str("tool", name).
		Str("call_id", call.ID).
		Bool("failed", failed).
		Int64("duration_ms", durationMs).
		Str("result", Truncate(result, resultLogLimit)).
		Msg("tool call executed")

	return result
}

func (d *Dispatcher) execute(ctx context.Context, call chat.ToolCall) (result string, failed bool) {
	name := call.Function.Name

	def, err := d.registry.Get(name)
	if err != nil {
		return fmt.Sprintf("Unknown function: %s", name), true
	}

	args := call.Function.Arguments
	if args == "" {
		args = "{}"
	}

	if err := validateArguments(def.Parameters, args); err != nil {
		return fmt.Sprintf("Error executing %s: %s", name, err), true
	}

	value, err := d.invoke(ctx, def, json.RawMessage(args))
	if err != nil {
		return fmt.Sprintf("Error executing %s: %s", name, err), true
	}

	switch v := value.(type) {
	case string:
		return v, false
	case nil:
		return "", false
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("Error executing %s: %s", name, err), true
		}
		return string(b), false
	}
}

// invoke calls the handler, converting a panic into an error so one
// misbehaving tool cannot take the loop down.
func (d *Dispatcher) invoke(ctx context.Context, def *Definition, args json.RawMessage) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return def.Handler(ctx, args)
}

func validateArguments(schema *jsonschema.Schema, args string) error {
	if !json.Valid([]byte(args)) {
		return errors.New("arguments are not valid JSON")
	}
	if schema == nil {
		return nil
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return errors.Wrap(err, "failed to encode parameter schema")
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewStringLoader(args),
	)
	if err != nil {
		return errors.Wrap(err, "argument validation failed")
	}
	if !result.Valid() {
		for _, desc := range result.Errors() {
			return errors.Errorf("invalid arguments: %s", desc)
		}
	}
	return nil
}

// Truncate shortens s for logs and events.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
