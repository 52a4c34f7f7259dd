package providers

import (
	"context"

	"github.com/go-go-golems/mangiafuoco/pkg/chat"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
)

// Request is one normalized provider call.
type Request struct {
	Model       string
	Messages    []chat.Message
	Tools       []tools.Declaration
	Temperature *float64
	MaxTokens   *int
}

// Provider adapts one backend to the canonical request/result model.
//
// SupportsToolCalls is the capability flag the router consults before
// handing tools to a backend: adapters for backends without native tool
// calling return false and silently drop tool messages during
// conversion (logging what they dropped).
type Provider interface {
	Name() string
	DefaultModel() string
	SupportsToolCalls() bool

	// Invoke performs a single call with the given credential key. Keyless
	// backends ignore key. Rate-limit rejections must be returned as
	// *RateLimitError so the router can branch on them.
	Invoke(ctx context.Context, key string, req Request) (*chat.CallResult, error)
}
