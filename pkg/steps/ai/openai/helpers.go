package openai

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/go-go-golems/codesmith/pkg/events"
	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/settings"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// ToolCallMerger accumulates streamed tool call fragments by index.
type ToolCallMerger struct {
	toolCalls map[int]go_openai.ToolCall
}

func NewToolCallMerger() *ToolCallMerger {
	return &ToolCallMerger{
		toolCalls: make(map[int]go_openai.ToolCall),
	}
}

func (tcm *ToolCallMerger) AddToolCalls(toolCalls []go_openai.ToolCall) {
	for _, call := range toolCalls {
		index := 0
		if call.Index != nil {
			index = *call.Index
		}
		if existing, found := tcm.toolCalls[index]; found {
			if existing.ID == "" {
				existing.ID = call.ID
			}
			existing.Function.Name += call.Function.Name
			existing.Function.Arguments += call.Function.Arguments
			tcm.toolCalls[index] = existing
		} else {
			tcm.toolCalls[index] = call
		}
	}
}

// GetToolCalls returns the merged calls ordered by stream index.
func (tcm *ToolCallMerger) GetToolCalls() []go_openai.ToolCall {
	indexes := make([]int, 0, len(tcm.toolCalls))
	for i := range tcm.toolCalls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	result := make([]go_openai.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		result = append(result, tcm.toolCalls[i])
	}
	return result
}

// MakeClient builds a go-openai client from the step settings. baseURL overrides
// the settings when non-empty (used for OpenAI-compatible providers).
func MakeClient(s *settings.StepSettings, baseURL string) (*go_openai.Client, error) {
	if s == nil || s.OpenAI == nil {
		return nil, errors.New("no openai settings")
	}
	apiKey := ""
	if s.OpenAI.APIKey != nil {
		apiKey = *s.OpenAI.APIKey
	}
	if apiKey == "" {
		return nil, errors.Errorf("no API key for %s", s.Provider())
	}
	config := go_openai.DefaultConfig(apiKey)
	if baseURL == "" && s.OpenAI.BaseURL != nil {
		baseURL = *s.OpenAI.BaseURL
	}
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	config.HTTPClient = s.Client.NewHTTPClient()
	return go_openai.NewClientWithConfig(config), nil
}

// MessagesToOpenAI flattens history into chat completion messages. Tool uses
// become assistant tool_calls, tool results become tool-role messages. Thinking
// and server tool blocks have no chat completion equivalent and are dropped.
func MessagesToOpenAI(system string, msgs []turns.Message) ([]go_openai.ChatCompletionMessage, error) {
	var out []go_openai.ChatCompletionMessage
	if system != "" {
		out = append(out, go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleSystem, Content: system})
	}

	for i, m := range msgs {
		var text []string
		var calls []go_openai.ToolCall
		var results []go_openai.ChatCompletionMessage
		for _, b := range m.Content {
			switch b.Kind {
			case turns.BlockKindText:
				if b.Text != "" {
					text = append(text, b.Text)
				}
			case turns.BlockKindToolUse:
				args, err := json.Marshal(inputOrEmpty(b.Input))
				if err != nil {
					return nil, errors.Wrapf(err, "marshal arguments of %s", b.ID)
				}
				calls = append(calls, go_openai.ToolCall{
					ID:   b.ID,
					Type: go_openai.ToolTypeFunction,
					Function: go_openai.FunctionCall{
						Name:      b.Name,
						Arguments: string(args),
					},
				})
			case turns.BlockKindToolResult:
				content := b.Content
				if b.IsError {
					content = "Error: " + content
				}
				results = append(results, go_openai.ChatCompletionMessage{
					Role:       go_openai.ChatMessageRoleTool,
					Content:    content,
					ToolCallID: b.ToolUseID,
				})
			}
		}

		// tool messages must directly follow the assistant tool_calls message
		out = append(out, results...)
		if len(text) == 0 && len(calls) == 0 {
			if len(results) > 0 {
				continue
			}
			if i == len(msgs)-1 && m.Role == turns.RoleAssistant {
				continue
			}
			text = []string{turns.PlaceholderText}
		}
		out = append(out, go_openai.ChatCompletionMessage{
			Role:      string(m.Role),
			Content:   strings.Join(text, "\n\n"),
			ToolCalls: calls,
		})
	}
	return out, nil
}

func inputOrEmpty(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return in
}

// ToolsToOpenAI converts tool definitions to function tools.
func ToolsToOpenAI(defs []tools.ToolDefinition) ([]go_openai.Tool, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	if err := tools.ValidateForProvider(defs, tools.OpenAILimits); err != nil {
		return nil, err
	}
	out := make([]go_openai.Tool, 0, len(defs))
	for i := range defs {
		params, err := defs[i].ParametersMap()
		if err != nil {
			return nil, errors.Wrapf(err, "tool %s", defs[i].Name)
		}
		out = append(out, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        defs[i].Name,
				Description: defs[i].Description,
				Parameters:  params,
			},
		})
	}
	return out, nil
}

func toolChoiceToOpenAI(c tools.ToolChoice) any {
	switch c {
	case tools.ToolChoiceNone:
		return "none"
	case tools.ToolChoiceRequired:
		return "required"
	default:
		return "auto"
	}
}

// ToolCallsToBlocks converts merged tool calls to tool_use blocks. Arguments that
// do not decode to an object become an empty input.
func ToolCallsToBlocks(calls []go_openai.ToolCall) []turns.Block {
	out := make([]turns.Block, 0, len(calls))
	for _, c := range calls {
		input := map[string]any{}
		if strings.TrimSpace(c.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(c.Function.Arguments), &input); err != nil || input == nil {
				log.Warn().Err(err).Str("tool", c.Function.Name).Str("id", c.ID).Msg("openai: tool arguments are not an object")
				input = map[string]any{}
			}
		}
		out = append(out, turns.NewToolUseBlock(turns.ToolInvocation{
			ID:    c.ID,
			Name:  c.Function.Name,
			Input: input,
		}))
	}
	return out
}

func stopReason(finish go_openai.FinishReason) engine.StopReason {
	switch finish {
	case go_openai.FinishReasonToolCalls, go_openai.FinishReasonFunctionCall:
		return engine.StopReasonToolUse
	case go_openai.FinishReasonLength:
		return engine.StopReasonMaxTokens
	case go_openai.FinishReasonContentFilter:
		return engine.StopReasonRefusal
	default:
		return engine.StopReasonEndTurn
	}
}

func usageFrom(u *go_openai.Usage) events.Usage {
	if u == nil {
		return events.Usage{}
	}
	out := events.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
	if u.PromptTokensDetails != nil {
		out.CacheReadInputTokens = u.PromptTokensDetails.CachedTokens
	}
	return out
}
