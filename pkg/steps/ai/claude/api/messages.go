package api

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// MessageRequest represents the Messages API request payload.
type MessageRequest struct {
	Model         string      `json:"model"`
	Messages      []Message   `json:"messages"`
	MaxTokens     int         `json:"max_tokens"`
	Metadata      *Metadata   `json:"metadata,omitempty"`
	StopSequences []string    `json:"stop_sequences,omitempty"`
	Stream        bool        `json:"stream"`
	System        string      `json:"system,omitempty"`
	Temperature   *float64    `json:"temperature,omitempty"`
	Tools         []Tool      `json:"tools,omitempty"`
	ToolChoice    *ToolChoice `json:"tool_choice,omitempty"`
	TopK          *int        `json:"top_k,omitempty"`
	TopP          *float64    `json:"top_p,omitempty"`
	Thinking      *Thinking   `json:"thinking,omitempty"`
}

// Metadata represents the metadata object for Claude API requests.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// Thinking enables extended thinking with a token budget.
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

func NewThinking(budget int) *Thinking {
	return &Thinking{Type: "enabled", BudgetTokens: budget}
}

// WebSearchToolType is the server tool version used for web search.
const WebSearchToolType = "web_search_20250305"

// Tool is either a client tool (Name, Description, InputSchema) or a server tool
// identified by Type.
type Tool struct {
	Type        string          `json:"type,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`

	MaxUses        int      `json:"max_uses,omitempty"`
	AllowedDomains []string `json:"allowed_domains,omitempty"`
	BlockedDomains []string `json:"blocked_domains,omitempty"`
}

// NewWebSearchTool returns the server-side web search tool.
func NewWebSearchTool(maxUses int, allowed, blocked []string) Tool {
	return Tool{
		Type:           WebSearchToolType,
		Name:           "web_search",
		MaxUses:        maxUses,
		AllowedDomains: allowed,
		BlockedDomains: blocked,
	}
}

type ToolChoice struct {
	Type string `json:"type"` // auto, any, tool, none
	Name string `json:"name,omitempty"`
}

// Message represents a single message in the conversation.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

type ContentType string

const (
	ContentTypeText                ContentType = "text"
	ContentTypeImage               ContentType = "image"
	ContentTypeToolUse             ContentType = "tool_use"
	ContentTypeToolResult          ContentType = "tool_result"
	ContentTypeThinking            ContentType = "thinking"
	ContentTypeRedactedThinking    ContentType = "redacted_thinking"
	ContentTypeServerToolUse       ContentType = "server_tool_use"
	ContentTypeWebSearchToolResult ContentType = "web_search_tool_result"
)

// ContentBlock is a single block of message content. Only the fields relevant to
// Type are set.
//
// Input is a raw JSON object for tool_use and server_tool_use. Content is a string for
// tool_result and an arbitrary JSON value for web_search_tool_result.
type ContentBlock struct {
	Type      ContentType     `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Data      string          `json:"data,omitempty"`
	// Citations is only set on text blocks that quote web search results.
	Citations []json.RawMessage `json:"citations,omitempty"`
}

func (cb ContentBlock) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(cb.Type))
	if cb.ID != "" {
		e.Str("id", cb.ID)
	}
	if cb.Name != "" {
		e.Str("name", cb.Name)
	}
	if cb.ToolUseID != "" {
		e.Str("tool_use_id", cb.ToolUseID)
	}
	if len(cb.Input) > 0 {
		e.RawJSON("input", cb.Input)
	}
	if cb.Text != "" {
		e.Int("text_len", len(cb.Text))
	}
}

func NewTextContent(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

// NewToolUseContent creates a tool_use block. An empty input is sent as {}.
func NewToolUseContent(id, name string, input json.RawMessage) ContentBlock {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	return ContentBlock{Type: ContentTypeToolUse, ID: id, Name: name, Input: input}
}

func NewToolResultContent(toolUseID, content string, isError bool) ContentBlock {
	raw, _ := json.Marshal(content)
	return ContentBlock{Type: ContentTypeToolResult, ToolUseID: toolUseID, Content: raw, IsError: isError}
}

func NewThinkingContent(thinking, signature string) ContentBlock {
	return ContentBlock{Type: ContentTypeThinking, Thinking: thinking, Signature: signature}
}

// MessageResponse represents the Messages API response payload.
type MessageResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

func (m MessageResponse) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", m.ID)
	e.Str("model", m.Model)
	e.Int("content_blocks", len(m.Content))
	if m.StopReason != "" {
		e.Str("stop_reason", m.StopReason)
	}
	e.Object("usage", m.Usage)
}

// FullText concatenates all text blocks.
func (m MessageResponse) FullText() string {
	s := ""
	for _, c := range m.Content {
		if c.Type == ContentTypeText {
			s += c.Text
		}
	}
	return s
}

// Usage represents the billing and rate-limit usage information.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

func (u Usage) MarshalZerologObject(e *zerolog.Event) {
	e.Int("input_tokens", u.InputTokens)
	e.Int("output_tokens", u.OutputTokens)
}
