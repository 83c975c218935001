package turns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHistory_AcceptsWellFormedHistory(t *testing.T) {
	msgs := []Message{
		NewUserMessage("build me a page"),
		NewAssistantMessage(
			NewTextBlock("sure"),
			NewToolUseBlock(ToolInvocation{ID: "t1", Name: "create_file", Input: map[string]any{"path": "index.html"}}),
		),
		NewToolResultsMessage([]ToolResult{{ToolUseID: "t1", Content: "ok"}}),
	}
	require.NoError(t, ValidateHistory(msgs, ValidateOptions{}))
}

func TestValidateHistory_AllowsTrailingEmptyAssistant(t *testing.T) {
	msgs := []Message{NewUserMessage("hi"), {Role: RoleAssistant}}
	require.NoError(t, ValidateHistory(msgs, ValidateOptions{}))
}

func TestValidateHistory_RejectsEmptyContentInTheMiddle(t *testing.T) {
	msgs := []Message{NewUserMessage("hi"), {Role: RoleAssistant}, NewUserMessage("again")}
	err := ValidateHistory(msgs, ValidateOptions{})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Index)
	assert.Equal(t, RuleEmptyContent, verr.Rule)
}

func TestValidateHistory_RejectsTrailingEmptyUser(t *testing.T) {
	msgs := []Message{NewUserMessage("hi"), {Role: RoleUser}}
	err := ValidateHistory(msgs, ValidateOptions{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Index)
}

func TestValidateHistory_RejectsStringContentFromJSON(t *testing.T) {
	msgs, err := DecodeHistory([]byte(`[
		{"role": "user", "content": [{"type": "text", "text": "hi"}]},
		{"role": "assistant", "content": "hello"}
	]`))
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	err = ValidateHistory(msgs, ValidateOptions{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Index)
	assert.Equal(t, RuleContentNotList, verr.Rule)
	assert.Contains(t, err.Error(), "message 1")
	assert.Contains(t, err.Error(), "got string")
}

func TestValidateHistory_RejectsObjectContentFromYAML(t *testing.T) {
	msgs, err := DecodeHistory([]byte(`
- role: user
  content:
    type: text
    text: hi
`))
	require.NoError(t, err)

	err = ValidateHistory(msgs, ValidateOptions{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, verr.Index)
	assert.Contains(t, verr.Detail, "got object")
}

func TestValidateHistory_UnmatchedServerToolUse(t *testing.T) {
	msgs := []Message{
		NewUserMessage("search"),
		NewAssistantMessage(
			NewServerToolUseBlock("srv_1", "web_search", map[string]any{"query": "go"}),
			NewTextBlock("found nothing"),
		),
	}

	require.NoError(t, ValidateHistory(msgs, ValidateOptions{}), "lenient mode only warns")

	err := ValidateHistory(msgs, ValidateOptions{StrictServerToolResults: true})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleUnmatchedServerToolUse, verr.Rule)
	assert.Equal(t, 1, verr.Index)

	msgs[1].Content = append(msgs[1].Content, NewServerToolResultBlock("srv_1", "web_search_tool_result", []any{}))
	require.NoError(t, ValidateHistory(msgs, ValidateOptions{StrictServerToolResults: true}))
}

func TestValidateHistory_ToolUsePairing(t *testing.T) {
	use := NewAssistantMessage(
		NewTextBlock("writing"),
		NewToolUseBlock(ToolInvocation{ID: "t1", Name: "create_file", Input: map[string]any{"path": "a.js"}}),
		NewToolUseBlock(ToolInvocation{ID: "t2", Name: "create_file", Input: map[string]any{"path": "b.js"}}),
	)
	tests := []struct {
		name  string
		msgs  []Message
		rule  ValidationRule
		index int
	}{
		{
			name:  "tool use followed by plain user text",
			msgs:  []Message{NewUserMessage("go"), use, NewUserMessage("next")},
			rule:  RuleUnansweredToolUse,
			index: 1,
		},
		{
			name:  "one result missing",
			msgs:  []Message{NewUserMessage("go"), use, NewToolResultsMessage([]ToolResult{{ToolUseID: "t1", Content: "ok"}})},
			rule:  RuleUnansweredToolUse,
			index: 1,
		},
		{
			name:  "trailing tool use",
			msgs:  []Message{NewUserMessage("go"), use},
			rule:  RuleUnansweredToolUse,
			index: 1,
		},
		{
			name: "result for an unknown call",
			msgs: []Message{NewUserMessage("go"), use, NewToolResultsMessage([]ToolResult{
				{ToolUseID: "t1", Content: "ok"}, {ToolUseID: "t2", Content: "ok"}, {ToolUseID: "t9", Content: "ok"},
			})},
			rule:  RuleOrphanToolResult,
			index: 2,
		},
		{
			name:  "result without a preceding assistant message",
			msgs:  []Message{NewToolResultsMessage([]ToolResult{{ToolUseID: "t1", Content: "ok"}})},
			rule:  RuleOrphanToolResult,
			index: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHistory(tt.msgs, ValidateOptions{})
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.rule, verr.Rule)
			assert.Equal(t, tt.index, verr.Index)
		})
	}

	ok := []Message{NewUserMessage("go"), use, NewToolResultsMessage([]ToolResult{
		{ToolUseID: "t2", Content: "ok"}, {ToolUseID: "t1", Content: "failed", IsError: true},
	})}
	require.NoError(t, ValidateHistory(ok, ValidateOptions{}))
}

func TestHistory_CloneIsIndependent(t *testing.T) {
	h := NewHistory(NewAssistantMessage(
		NewToolUseBlock(ToolInvocation{ID: "a", Name: "edit_file", Input: map[string]any{"path": "x"}}),
	))
	c := h.Clone()
	c.Messages()[0].Content[0].Input["path"] = "y"

	orig, _ := h.Last()
	assert.Equal(t, "x", orig.Content[0].Input["path"])
	assert.Equal(t, 1, c.Len())
}
