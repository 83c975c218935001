package engine

import (
	"context"
)

// Engine performs one model round-trip: it sends the conversation and tool definitions
// to a provider and returns the complete assistant content.
//
// Streaming providers report text and thinking as it arrives through onDelta, which may
// be nil. onDelta is called from the goroutine that called RunInference, in stream order.
// Engines must honor ctx cancellation while waiting on the provider.
type Engine interface {
	RunInference(ctx context.Context, req *Request, onDelta DeltaHandler) (*Response, error)
}

// DeltaHandler receives streamed fragments of the response.
type DeltaHandler func(Delta)

// Notify calls h if it is set.
func (h DeltaHandler) Notify(d Delta) {
	if h != nil && d.Text != "" {
		h(d)
	}
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, req *Request, onDelta DeltaHandler) (*Response, error)

func (f EngineFunc) RunInference(ctx context.Context, req *Request, onDelta DeltaHandler) (*Response, error) {
	return f(ctx, req, onDelta)
}

var _ Engine = EngineFunc(nil)
