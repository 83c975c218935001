package turns

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind identifies the shape of a content block.
type BlockKind string

const (
	BlockKindText             BlockKind = "text"
	BlockKindToolUse          BlockKind = "tool_use"
	BlockKindToolResult       BlockKind = "tool_result"
	BlockKindThinking         BlockKind = "thinking"
	BlockKindServerToolUse    BlockKind = "server_tool_use"
	BlockKindServerToolResult BlockKind = "server_tool_result"
)

// Block is a single typed element of a message's content.
//
// Only the fields relevant to Kind are populated:
//   - text: Text
//   - tool_use / server_tool_use: ID, Name, Input
//   - tool_result: ToolUseID, Content, IsError
//   - server_tool_result: ToolUseID, Name (provider block type), Payload
//   - thinking: Thinking, Signature
type Block struct {
	Kind      BlockKind      `yaml:"type" json:"type"`
	Text      string         `yaml:"text,omitempty" json:"text,omitempty"`
	ID        string         `yaml:"id,omitempty" json:"id,omitempty"`
	Name      string         `yaml:"name,omitempty" json:"name,omitempty"`
	Input     map[string]any `yaml:"input,omitempty" json:"input,omitempty"`
	ToolUseID string         `yaml:"tool_use_id,omitempty" json:"tool_use_id,omitempty"`
	Content   string         `yaml:"content,omitempty" json:"content,omitempty"`
	IsError   bool           `yaml:"is_error,omitempty" json:"is_error,omitempty"`
	Thinking  string         `yaml:"thinking,omitempty" json:"thinking,omitempty"`
	Signature string         `yaml:"signature,omitempty" json:"signature,omitempty"`
	Payload   any            `yaml:"payload,omitempty" json:"payload,omitempty"`
	Metadata  map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ContentShape records what the content field of a decoded message looked like.
// Messages built in code always have ShapeList.
type ContentShape string

const (
	ShapeList    ContentShape = "list"
	ShapeString  ContentShape = "string"
	ShapeObject  ContentShape = "object"
	ShapeNull    ContentShape = "null"
	ShapeMissing ContentShape = "missing"
	ShapeOther   ContentShape = "other"
)

// Message is one entry of the conversation history.
type Message struct {
	Role    Role    `yaml:"role" json:"role"`
	Content []Block `yaml:"content" json:"content"`

	shape ContentShape
}

// Shape returns the decoded shape of the content field.
func (m Message) Shape() ContentShape {
	if m.shape == "" {
		return ShapeList
	}
	return m.shape
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = nil

	trimmed := bytes.TrimSpace(raw.Content)
	switch {
	case len(trimmed) == 0:
		m.shape = ShapeMissing
	case trimmed[0] == '[':
		m.shape = ShapeList
		if err := json.Unmarshal(trimmed, &m.Content); err != nil {
			return errors.Wrap(err, "decode content blocks")
		}
	case trimmed[0] == '"':
		m.shape = ShapeString
	case trimmed[0] == '{':
		m.shape = ShapeObject
	case bytes.Equal(trimmed, []byte("null")):
		m.shape = ShapeNull
	default:
		m.shape = ShapeOther
	}
	return nil
}

func (m *Message) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return errors.Errorf("message must be a mapping, got line %d", value.Line)
	}
	m.Content = nil
	m.shape = ShapeMissing
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, v := value.Content[i], value.Content[i+1]
		switch key.Value {
		case "role":
			var r string
			if err := v.Decode(&r); err != nil {
				return err
			}
			m.Role = Role(r)
		case "content":
			switch {
			case v.Kind == yaml.SequenceNode:
				m.shape = ShapeList
				if err := v.Decode(&m.Content); err != nil {
					return errors.Wrap(err, "decode content blocks")
				}
			case v.Kind == yaml.MappingNode:
				m.shape = ShapeObject
			case v.Kind == yaml.ScalarNode && v.Tag == "!!null":
				m.shape = ShapeNull
			case v.Kind == yaml.ScalarNode && v.Tag == "!!str":
				m.shape = ShapeString
			default:
				m.shape = ShapeOther
			}
		}
	}
	return nil
}

// ToolInvocation is a model-issued request to run a named tool.
type ToolInvocation struct {
	ID    string         `yaml:"id" json:"id"`
	Name  string         `yaml:"name" json:"name"`
	Input map[string]any `yaml:"input" json:"input"`
}

// ToolResult is the outcome of running a ToolInvocation.
type ToolResult struct {
	ToolUseID string         `yaml:"tool_use_id" json:"tool_use_id"`
	Content   string         `yaml:"content" json:"content"`
	IsError   bool           `yaml:"is_error,omitempty" json:"is_error,omitempty"`
	Metadata  map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// StringArg returns a string-valued input field, or "" if absent or not a string.
func (ti ToolInvocation) StringArg(key string) string {
	if ti.Input == nil {
		return ""
	}
	s, _ := ti.Input[key].(string)
	return s
}

// HasArg reports whether key is present in the input with a non-empty value.
func (ti ToolInvocation) HasArg(key string) bool {
	if ti.Input == nil {
		return false
	}
	v, ok := ti.Input[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return true
}
