// Package enginetest provides a scripted engine.Engine for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/go-go-golems/codesmith/pkg/events"
	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

// ErrScriptExhausted is returned when the engine is called more often than it has steps.
var ErrScriptExhausted = errors.New("enginetest: no more scripted responses")

// Step is one scripted model turn.
type Step struct {
	// Deltas are streamed before the response is returned. When empty, the text and
	// thinking blocks of Content are streamed as one delta each.
	Deltas     []engine.Delta
	Content    []turns.Block
	StopReason engine.StopReason
	Usage      events.Usage
	Err        error
}

// Text is a terminal step answering with text only.
func Text(text string) Step {
	return Step{Content: []turns.Block{turns.NewTextBlock(text)}, StopReason: engine.StopReasonEndTurn}
}

// ToolCalls is a step with optional leading text followed by tool invocations.
func ToolCalls(text string, invs ...turns.ToolInvocation) Step {
	var blocks []turns.Block
	if text != "" {
		blocks = append(blocks, turns.NewTextBlock(text))
	}
	for _, inv := range invs {
		blocks = append(blocks, turns.NewToolUseBlock(inv))
	}
	return Step{Content: blocks, StopReason: engine.StopReasonToolUse}
}

// Call builds a tool invocation from alternating key/value pairs.
func Call(id, name string, kv ...any) turns.ToolInvocation {
	input := map[string]any{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			input[k] = kv[i+1]
		}
	}
	return turns.ToolInvocation{ID: id, Name: name, Input: input}
}

// ScriptedEngine replays Steps in order and records every request it receives.
type ScriptedEngine struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	requests []*engine.Request

	// Fallback, when set, produces the response once the steps are exhausted.
	Fallback func(call int, req *engine.Request) Step
}

var _ engine.Engine = (*ScriptedEngine)(nil)

func New(steps ...Step) *ScriptedEngine {
	return &ScriptedEngine{steps: steps}
}

func (s *ScriptedEngine) RunInference(ctx context.Context, req *engine.Request, onDelta engine.DeltaHandler) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	snapshot := *req
	snapshot.Messages = cloneSlice(req.Messages)
	s.requests = append(s.requests, &snapshot)
	call := s.next
	s.next++
	var step Step
	switch {
	case call < len(s.steps):
		step = s.steps[call]
	case s.Fallback != nil:
		step = s.Fallback(call, &snapshot)
	default:
		s.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	s.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}

	deltas := step.Deltas
	if len(deltas) == 0 {
		for _, b := range step.Content {
			switch b.Kind {
			case turns.BlockKindText:
				deltas = append(deltas, engine.Delta{Kind: engine.DeltaText, Text: b.Text})
			case turns.BlockKindThinking:
				deltas = append(deltas, engine.Delta{Kind: engine.DeltaThinking, Text: b.Thinking})
			}
		}
	}
	for _, d := range deltas {
		onDelta.Notify(d)
	}

	stop := step.StopReason
	if stop == "" {
		stop = engine.StopReasonEndTurn
	}
	return &engine.Response{
		ID:         "msg_scripted",
		Model:      req.Model,
		Content:    cloneSlice(step.Content),
		StopReason: stop,
		Usage:      step.Usage,
	}, nil
}

// Requests returns the requests received so far.
func (s *ScriptedEngine) Requests() []*engine.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*engine.Request(nil), s.requests...)
}

// Calls returns how many times RunInference was called.
func (s *ScriptedEngine) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func cloneSlice[T any](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	return clone.Clone(in).([]T)
}
