package claude

import (
	"encoding/json"

	"github.com/go-go-golems/codesmith/pkg/events"
	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/claude/api"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const redactedDataKey = "redacted_data"

// blockToContent converts a history block to its wire form. ok is false for blocks
// that are not sent (empty text).
func blockToContent(b turns.Block) (api.ContentBlock, bool, error) {
	switch b.Kind {
	case turns.BlockKindText:
		if b.Text == "" {
			return api.ContentBlock{}, false, nil
		}
		return api.NewTextContent(b.Text), true, nil

	case turns.BlockKindToolUse, turns.BlockKindServerToolUse:
		input, err := marshalInput(b.Input)
		if err != nil {
			return api.ContentBlock{}, false, errors.Wrapf(err, "marshal input of %s", b.ID)
		}
		cb := api.NewToolUseContent(b.ID, b.Name, input)
		if b.Kind == turns.BlockKindServerToolUse {
			cb.Type = api.ContentTypeServerToolUse
		}
		return cb, true, nil

	case turns.BlockKindToolResult:
		return api.NewToolResultContent(b.ToolUseID, b.Content, b.IsError), true, nil

	case turns.BlockKindServerToolResult:
		blockType := api.ContentType(b.Name)
		if blockType == "" {
			blockType = api.ContentTypeWebSearchToolResult
		}
		payload, err := json.Marshal(b.Payload)
		if err != nil {
			return api.ContentBlock{}, false, errors.Wrapf(err, "marshal server tool result %s", b.ToolUseID)
		}
		return api.ContentBlock{Type: blockType, ToolUseID: b.ToolUseID, Content: payload}, true, nil

	case turns.BlockKindThinking:
		if data, ok := b.Metadata[redactedDataKey].(string); ok {
			return api.ContentBlock{Type: api.ContentTypeRedactedThinking, Data: data}, true, nil
		}
		return api.NewThinkingContent(b.Thinking, b.Signature), true, nil
	}
	return api.ContentBlock{}, false, errors.Errorf("unsupported block kind %q", b.Kind)
}

func marshalInput(input map[string]any) (json.RawMessage, error) {
	if len(input) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(input)
}

// MessagesToClaude converts the conversation history to API messages.
func MessagesToClaude(msgs []turns.Message) ([]api.Message, error) {
	out := make([]api.Message, 0, len(msgs))
	for i, m := range msgs {
		am := api.Message{Role: string(m.Role), Content: []api.ContentBlock{}}
		for _, b := range m.Content {
			cb, ok, err := blockToContent(b)
			if err != nil {
				return nil, errors.Wrapf(err, "message %d", i)
			}
			if ok {
				am.Content = append(am.Content, cb)
			}
		}
		if len(am.Content) == 0 {
			// a trailing empty assistant message is a prefill slot; the API rejects it empty
			if i == len(msgs)-1 && m.Role == turns.RoleAssistant {
				continue
			}
			am.Content = append(am.Content, api.NewTextContent(turns.PlaceholderText))
		}
		out = append(out, am)
	}
	return out, nil
}

// ContentToBlocks converts the merged response content to history blocks.
func ContentToBlocks(content []api.ContentBlock) []turns.Block {
	blocks := make([]turns.Block, 0, len(content))
	for _, c := range content {
		switch c.Type {
		case api.ContentTypeText:
			blocks = append(blocks, turns.NewTextBlock(c.Text))
		case api.ContentTypeThinking:
			blocks = append(blocks, turns.NewThinkingBlock(c.Thinking, c.Signature))
		case api.ContentTypeRedactedThinking:
			b := turns.NewThinkingBlock("", "")
			b.Metadata = map[string]any{redactedDataKey: c.Data}
			blocks = append(blocks, b)
		case api.ContentTypeToolUse:
			blocks = append(blocks, turns.NewToolUseBlock(turns.ToolInvocation{ID: c.ID, Name: c.Name, Input: decodeInput(c)}))
		case api.ContentTypeServerToolUse:
			blocks = append(blocks, turns.NewServerToolUseBlock(c.ID, c.Name, decodeInput(c)))
		case api.ContentTypeWebSearchToolResult:
			var payload any
			if len(c.Content) > 0 {
				if err := json.Unmarshal(c.Content, &payload); err != nil {
					payload = string(c.Content)
				}
			}
			blocks = append(blocks, turns.NewServerToolResultBlock(c.ToolUseID, string(c.Type), payload))
		default:
			log.Warn().Str("type", string(c.Type)).Msg("claude: dropping unsupported content block")
		}
	}
	return blocks
}

func decodeInput(c api.ContentBlock) map[string]any {
	input := map[string]any{}
	if len(c.Input) == 0 {
		return input
	}
	if err := json.Unmarshal(c.Input, &input); err != nil {
		log.Warn().Err(err).Str("tool", c.Name).Str("id", c.ID).Msg("claude: tool input is not a JSON object")
		return map[string]any{}
	}
	return input
}

// ToolsToClaude converts tool definitions to API tools.
func ToolsToClaude(defs []tools.ToolDefinition) ([]api.Tool, error) {
	if err := tools.ValidateForProvider(defs, tools.ClaudeLimits); err != nil {
		return nil, errors.Wrap(err, "tool definitions rejected")
	}
	out := make([]api.Tool, 0, len(defs))
	for i := range defs {
		schema, err := defs[i].SchemaJSON()
		if err != nil {
			return nil, err
		}
		out = append(out, api.Tool{
			Name:        defs[i].Name,
			Description: defs[i].Description,
			InputSchema: schema,
		})
	}
	return out, nil
}

func toolChoiceToClaude(choice tools.ToolChoice) *api.ToolChoice {
	switch choice {
	case tools.ToolChoiceNone:
		return &api.ToolChoice{Type: "none"}
	case tools.ToolChoiceRequired:
		return &api.ToolChoice{Type: "any"}
	}
	return nil
}

func stopReason(s string) engine.StopReason {
	if s == "" {
		return engine.StopReasonEndTurn
	}
	return engine.StopReason(s)
}

func usageFrom(u api.Usage) events.Usage {
	return events.Usage{
		InputTokens:              u.InputTokens,
		OutputTokens:             u.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens,
	}
}
