package engine

import (
	"context"
	"net/http"
	"sync"
)

// DebugTap receives low-level provider breadcrumbs for development/debugging.
// Engines should treat calls to this interface as best-effort and optional.
type DebugTap interface {
	OnHTTP(req *http.Request, body []byte)
	OnHTTPResponse(resp *http.Response, body []byte)
	OnSSE(event string, data []byte)
	OnProviderObject(name string, v any)
}

type debugTapKey struct{}

// WithDebugTap installs a DebugTap into the context. Engines can fetch it via DebugTapFrom.
func WithDebugTap(ctx context.Context, tap DebugTap) context.Context {
	return context.WithValue(ctx, debugTapKey{}, tap)
}

// DebugTapFrom retrieves a DebugTap from context when present.
func DebugTapFrom(ctx context.Context) (DebugTap, bool) {
	v := ctx.Value(debugTapKey{})
	if v == nil {
		return nil, false
	}
	t, ok := v.(DebugTap)
	return t, ok
}

// SSERecord is one server-sent event captured by a RecordingTap.
type SSERecord struct {
	Event string
	Data  string
}

// RecordingTap keeps everything it is shown in memory.
type RecordingTap struct {
	mu        sync.Mutex
	Requests  [][]byte
	Responses []int
	SSE       []SSERecord
	Objects   map[string]any
}

var _ DebugTap = (*RecordingTap)(nil)

func NewRecordingTap() *RecordingTap {
	return &RecordingTap{Objects: map[string]any{}}
}

func (r *RecordingTap) OnHTTP(_ *http.Request, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, append([]byte(nil), body...))
}

func (r *RecordingTap) OnHTTPResponse(resp *http.Response, _ []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Responses = append(r.Responses, resp.StatusCode)
}

func (r *RecordingTap) OnSSE(event string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SSE = append(r.SSE, SSERecord{Event: event, Data: string(data)})
}

func (r *RecordingTap) OnProviderObject(name string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Objects[name] = v
}
