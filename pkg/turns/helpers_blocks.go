package turns

import "strings"

// Convenience constructors for commonly used Block and Message shapes.

// PlaceholderText is stored in place of an assistant turn that came back with no content.
const PlaceholderText = "(no response)"

func NewTextBlock(text string) Block {
	return Block{Kind: BlockKindText, Text: text}
}

func NewThinkingBlock(thinking, signature string) Block {
	return Block{Kind: BlockKindThinking, Thinking: thinking, Signature: signature}
}

// NewToolUseBlock returns a Block requesting invocation of a tool.
func NewToolUseBlock(inv ToolInvocation) Block {
	return Block{Kind: BlockKindToolUse, ID: inv.ID, Name: inv.Name, Input: inv.Input}
}

// NewToolResultBlock returns a Block carrying the result of a tool execution.
func NewToolResultBlock(res ToolResult) Block {
	return Block{
		Kind:      BlockKindToolResult,
		ToolUseID: res.ToolUseID,
		Content:   res.Content,
		IsError:   res.IsError,
		Metadata:  res.Metadata,
	}
}

func NewServerToolUseBlock(id, name string, input map[string]any) Block {
	return Block{Kind: BlockKindServerToolUse, ID: id, Name: name, Input: input}
}

// NewServerToolResultBlock stores a provider-executed tool result. blockType is the provider's
// native block type (e.g. web_search_tool_result) and payload its raw content.
func NewServerToolResultBlock(toolUseID, blockType string, payload any) Block {
	return Block{Kind: BlockKindServerToolResult, ToolUseID: toolUseID, Name: blockType, Payload: payload}
}

func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []Block{NewTextBlock(text)}}
}

func NewAssistantMessage(blocks ...Block) Message {
	return Message{Role: RoleAssistant, Content: blocks}
}

// NewToolResultsMessage wraps tool results into the user message that answers an assistant tool turn.
func NewToolResultsMessage(results []ToolResult) Message {
	blocks := make([]Block, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, NewToolResultBlock(r))
	}
	return Message{Role: RoleUser, Content: blocks}
}

// AsInvocation returns the ToolInvocation for a tool_use block.
func (b Block) AsInvocation() (ToolInvocation, bool) {
	if b.Kind != BlockKindToolUse {
		return ToolInvocation{}, false
	}
	return ToolInvocation{ID: b.ID, Name: b.Name, Input: b.Input}, true
}

// ToolInvocations returns the client-side tool invocations in block order.
func ToolInvocations(blocks []Block) []ToolInvocation {
	var out []ToolInvocation
	for _, b := range blocks {
		if inv, ok := b.AsInvocation(); ok {
			out = append(out, inv)
		}
	}
	return out
}

// TextOf concatenates all text blocks.
func TextOf(blocks []Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Kind == BlockKindText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
