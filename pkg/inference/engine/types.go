package engine

import (
	"github.com/go-go-golems/codesmith/pkg/events"
	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/rs/zerolog"
)

// DefaultMaxTokens is used when a Request does not set MaxTokens.
const DefaultMaxTokens = 8192

// Request is the provider-independent input of one inference call.
type Request struct {
	Model    string
	System   string
	Messages []turns.Message

	Tools      []tools.ToolDefinition
	ToolChoice tools.ToolChoice

	MaxTokens int
	Inference *InferenceConfig

	// WebSearch enables the provider's server-side web search tool when supported.
	WebSearch *WebSearchConfig
}

// MaxTokensOrDefault returns MaxTokens, falling back to the configured response limit
// and then DefaultMaxTokens.
func (r *Request) MaxTokensOrDefault() int {
	if r.Inference != nil && r.Inference.MaxResponseTokens != nil && *r.Inference.MaxResponseTokens > 0 {
		return *r.Inference.MaxResponseTokens
	}
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return DefaultMaxTokens
}

func (r *Request) MarshalZerologObject(e *zerolog.Event) {
	e.Str("model", r.Model)
	e.Int("messages", len(r.Messages))
	e.Int("tools", len(r.Tools))
	e.Int("max_tokens", r.MaxTokensOrDefault())
	if r.WebSearch != nil {
		e.Bool("web_search", true)
	}
}

// WebSearchConfig configures a provider-executed web search tool.
type WebSearchConfig struct {
	MaxUses        int      `json:"max_uses,omitempty" yaml:"max_uses,omitempty" mapstructure:"max-uses"`
	AllowedDomains []string `json:"allowed_domains,omitempty" yaml:"allowed_domains,omitempty" mapstructure:"allowed-domains"`
	BlockedDomains []string `json:"blocked_domains,omitempty" yaml:"blocked_domains,omitempty" mapstructure:"blocked-domains"`
}

// StopReason says why the model stopped generating.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonPauseTurn    StopReason = "pause_turn"
	StopReasonRefusal      StopReason = "refusal"
)

// Response is the complete assistant output of one inference call.
type Response struct {
	ID         string
	Model      string
	Content    []turns.Block
	StopReason StopReason
	Usage      events.Usage
}

// Text returns the concatenated text blocks of the response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return turns.TextOf(r.Content)
}

// ToolInvocations returns the client-side tool calls of the response in order.
func (r *Response) ToolInvocations() []turns.ToolInvocation {
	if r == nil {
		return nil
	}
	return turns.ToolInvocations(r.Content)
}

type DeltaKind string

const (
	DeltaText     DeltaKind = "text"
	DeltaThinking DeltaKind = "thinking"
)

// Delta is one streamed fragment of text or thinking.
type Delta struct {
	Kind DeltaKind
	Text string
}
