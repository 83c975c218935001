package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/settings"
	"github.com/go-go-golems/codesmith/pkg/turns"
	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunks(data ...string) string {
	var sb strings.Builder
	for _, d := range data {
		sb.WriteString("data: " + d + "\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

var toolCallStream = chunks(
	`{"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{"role":"assistant","content":"Creating "}}]}`,
	`{"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{"content":"the file."}}]}`,
	`{"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"create_file","arguments":""}}]}}]}`,
	`{"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"path\":\"a.txt\","}}]}}]}`,
	`{"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"content\":\"hi\"}"}}]}}]}`,
	`{"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-test","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	`{"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-test","choices":[],"usage":{"prompt_tokens":40,"completion_tokens":12,"total_tokens":52}}`,
)

func newTestEngine(t *testing.T, url string, mutate func(*settings.StepSettings)) *OpenAIEngine {
	s := settings.NewStepSettings()
	key := "sk-test"
	s.OpenAI.APIKey = &key
	s.OpenAI.BaseURL = &url
	if mutate != nil {
		mutate(s)
	}
	e, err := NewOpenAIEngine(s)
	require.NoError(t, err)
	return e
}

type fileInput struct {
	Path    string `json:"path" jsonschema:"required"`
	Content string `json:"content"`
}

func TestOpenAIEngine_StreamsToolCall(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, toolCallStream)
	}))
	defer srv.Close()

	e := newTestEngine(t, srv.URL, nil)
	createTool, err := tools.NewTool("create_file", "Create a file", func(ctx context.Context, in fileInput, _ *tools.ExecutionContext) (tools.Output, error) {
		return tools.Output{}, nil
	})
	require.NoError(t, err)

	tap := engine.NewRecordingTap()
	ctx := engine.WithDebugTap(context.Background(), tap)

	var deltas []string
	resp, err := e.RunInference(ctx, &engine.Request{
		System:   "You are a coding agent.",
		Messages: []turns.Message{turns.NewUserMessage("make a.txt")},
		Tools:    []tools.ToolDefinition{*createTool},
	}, func(d engine.Delta) { deltas = append(deltas, d.Text) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Creating ", "the file."}, deltas)
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "Creating the file.", resp.Text())
	assert.Equal(t, engine.StopReasonToolUse, resp.StopReason)
	assert.Equal(t, 40, resp.Usage.InputTokens)
	assert.Equal(t, 12, resp.Usage.OutputTokens)
	invs := resp.ToolInvocations()
	require.Len(t, invs, 1)
	assert.Equal(t, "call_1", invs[0].ID)
	assert.Equal(t, "a.txt", invs[0].StringArg("path"))
	assert.Equal(t, "hi", invs[0].StringArg("content"))

	assert.Equal(t, DefaultModel, body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, "auto", body["tool_choice"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Contains(t, tap.Objects, "completion")
}

func TestOpenAIEngine_ReasoningModelRequest(t *testing.T) {
	e := newTestEngine(t, "http://unused", func(s *settings.StepSettings) {
		temp := 0.7
		s.Chat.Temperature = &temp
		effort := "high"
		s.OpenAI.ReasoningEffort = &effort
	})
	req, err := e.MakeCompletionRequest(&engine.Request{
		Model:     "o3-mini",
		Messages:  []turns.Message{turns.NewUserMessage("hi")},
		MaxTokens: 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, req.MaxTokens)
	assert.Equal(t, 2000, req.MaxCompletionTokens)
	assert.Zero(t, req.Temperature)
	assert.Equal(t, "high", req.ReasoningEffort)
	assert.Nil(t, req.ToolChoice, "no tools means no tool_choice")

	req, err = e.MakeCompletionRequest(&engine.Request{Model: "gpt-4o", Messages: []turns.Message{turns.NewUserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultMaxTokens, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	assert.Empty(t, req.ReasoningEffort)
}

func TestOpenAIEngine_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	e := newTestEngine(t, srv.URL, nil)
	_, err := e.RunInference(context.Background(), &engine.Request{Messages: []turns.Message{turns.NewUserMessage("hi")}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect API key")
}

func TestNewOpenAIEngine_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEngine(settings.NewStepSettings())
	require.Error(t, err)
}

func TestToolCallMerger_OrdersByIndex(t *testing.T) {
	one, zero := 1, 0
	m := NewToolCallMerger()
	m.AddToolCalls([]go_openai.ToolCall{
		{Index: &one, ID: "b", Function: go_openai.FunctionCall{Name: "list_files"}},
		{Index: &zero, ID: "a", Function: go_openai.FunctionCall{Name: "read_", Arguments: `{"pa`}},
	})
	m.AddToolCalls([]go_openai.ToolCall{
		{Index: &zero, Function: go_openai.FunctionCall{Name: "file", Arguments: `th":"x"}`}},
	})
	calls := m.GetToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ID)
	assert.Equal(t, "read_file", calls[0].Function.Name)
	assert.Equal(t, `{"path":"x"}`, calls[0].Function.Arguments)
	assert.Equal(t, "b", calls[1].ID)
}

func TestMessagesToOpenAI(t *testing.T) {
	msgs, err := MessagesToOpenAI("sys", []turns.Message{
		turns.NewUserMessage("build it"),
		turns.NewAssistantMessage(
			turns.NewThinkingBlock("hmm", "sig"),
			turns.NewTextBlock("Reading."),
			turns.NewToolUseBlock(turns.ToolInvocation{ID: "c1", Name: "read_file", Input: map[string]any{"path": "a"}}),
			turns.NewServerToolUseBlock("s1", "web_search", nil),
		),
		turns.NewToolResultsMessage([]turns.ToolResult{{ToolUseID: "c1", Content: "not found", IsError: true}}),
		turns.NewAssistantMessage(),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, go_openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Equal(t, "Reading.", msgs[2].Content)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.JSONEq(t, `{"path":"a"}`, msgs[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, go_openai.ChatMessageRoleTool, msgs[3].Role)
	assert.Equal(t, "c1", msgs[3].ToolCallID)
	assert.Equal(t, "Error: not found", msgs[3].Content)
}

func TestToolCallsToBlocks_BadArguments(t *testing.T) {
	blocks := ToolCallsToBlocks([]go_openai.ToolCall{
		{ID: "c1", Function: go_openai.FunctionCall{Name: "list_files", Arguments: ""}},
		{ID: "c2", Function: go_openai.FunctionCall{Name: "read_file", Arguments: "[1]"}},
	})
	require.Len(t, blocks, 2)
	assert.Empty(t, blocks[0].Input)
	assert.NotNil(t, blocks[1].Input)
	assert.Empty(t, blocks[1].Input)
}
