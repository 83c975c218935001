package openai

import (
	"context"
	"io"
	"strings"

	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/settings"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when neither the request nor the settings name a model.
const DefaultModel = "gpt-4o"

// OpenAIEngine implements engine.Engine on streaming chat completions. It also
// serves OpenAI-compatible providers through a custom base URL.
type OpenAIEngine struct {
	settings *settings.StepSettings
	client   *go_openai.Client
}

var _ engine.Engine = (*OpenAIEngine)(nil)

type Option func(*options)

type options struct {
	baseURL string
}

// WithBaseURL overrides the API base URL from the settings.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// NewOpenAIEngine creates a new OpenAI inference engine with the given settings.
func NewOpenAIEngine(s *settings.StepSettings, opts ...Option) (*OpenAIEngine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	client, err := MakeClient(s, o.baseURL)
	if err != nil {
		return nil, err
	}
	return &OpenAIEngine{settings: s, client: client}, nil
}

// MakeCompletionRequest builds the streaming chat completion request for req.
func (e *OpenAIEngine) MakeCompletionRequest(req *engine.Request) (*go_openai.ChatCompletionRequest, error) {
	msgs, err := MessagesToOpenAI(req.System, req.Messages)
	if err != nil {
		return nil, err
	}
	oaTools, err := ToolsToOpenAI(req.Tools)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" && e.settings.Chat != nil && e.settings.Chat.Engine != nil {
		model = *e.settings.Chat.Engine
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := engine.MergeInferenceConfig(req.Inference, e.settings.InferenceConfig())
	maxTokens := (&engine.Request{MaxTokens: req.MaxTokens, Inference: cfg}).MaxTokensOrDefault()
	reasoning := engine.IsReasoningModel(model)
	if reasoning {
		cfg = engine.SanitizeForReasoningModel(cfg)
	}

	out := &go_openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
		Stream:   true,
		Tools:    oaTools,
	}
	if !strings.Contains(model, "mistral") {
		out.StreamOptions = &go_openai.StreamOptions{IncludeUsage: true}
	}
	if len(oaTools) > 0 {
		out.ToolChoice = toolChoiceToOpenAI(req.ToolChoice)
	}
	if reasoning {
		out.MaxCompletionTokens = maxTokens
	} else {
		out.MaxTokens = maxTokens
	}
	if cfg != nil {
		if cfg.Temperature != nil {
			out.Temperature = float32(*cfg.Temperature)
		}
		if cfg.TopP != nil {
			out.TopP = float32(*cfg.TopP)
		}
		out.Stop = cfg.Stop
		out.Seed = cfg.Seed
		if reasoning && cfg.ReasoningEffort != nil {
			out.ReasoningEffort = *cfg.ReasoningEffort
		}
	}
	if o := e.settings.OpenAI; o != nil && !reasoning {
		if o.PresencePenalty != nil {
			out.PresencePenalty = float32(*o.PresencePenalty)
		}
		if o.FrequencyPenalty != nil {
			out.FrequencyPenalty = float32(*o.FrequencyPenalty)
		}
	}
	return out, nil
}

// RunInference streams one assistant message. Thinking deltas are not produced:
// chat completions do not expose reasoning text.
func (e *OpenAIEngine) RunInference(ctx context.Context, req *engine.Request, onDelta engine.DeltaHandler) (*engine.Response, error) {
	oaReq, err := e.MakeCompletionRequest(req)
	if err != nil {
		return nil, err
	}
	log.Debug().Object("request", req).Int("messages", len(oaReq.Messages)).Msg("openai: RunInference started")

	stream, err := e.client.CreateChatCompletionStream(ctx, *oaReq)
	if err != nil {
		return nil, errors.Wrap(err, "openai streaming request failed")
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn().Err(err).Msg("openai: failed to close stream")
		}
	}()

	var (
		text     strings.Builder
		merger   = NewToolCallMerger()
		resp     = &engine.Response{}
		finish   go_openai.FinishReason
		chunks   int
		sawUsage bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error().Err(err).Int("chunks_received", chunks).Msg("openai: stream receive failed")
			return nil, errors.Wrap(err, "openai stream")
		}
		chunks++
		if resp.ID == "" {
			resp.ID = chunk.ID
			resp.Model = chunk.Model
		}
		if chunk.Usage != nil {
			resp.Usage = usageFrom(chunk.Usage)
			sawUsage = true
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if d := choice.Delta.Content; d != "" {
			text.WriteString(d)
			onDelta.Notify(engine.Delta{Kind: engine.DeltaText, Text: d})
		}
		if len(choice.Delta.ToolCalls) > 0 {
			merger.AddToolCalls(choice.Delta.ToolCalls)
		}
		if choice.FinishReason != "" {
			finish = choice.FinishReason
		}
	}

	if tap, ok := engine.DebugTapFrom(ctx); ok {
		tap.OnProviderObject("completion", map[string]any{
			"id":            resp.ID,
			"model":         resp.Model,
			"text":          text.String(),
			"tool_calls":    merger.GetToolCalls(),
			"finish_reason": finish,
		})
	}

	if text.Len() > 0 {
		resp.Content = append(resp.Content, turns.NewTextBlock(text.String()))
	}
	calls := merger.GetToolCalls()
	resp.Content = append(resp.Content, ToolCallsToBlocks(calls)...)
	resp.StopReason = stopReason(finish)
	if len(calls) > 0 && resp.StopReason == engine.StopReasonEndTurn {
		resp.StopReason = engine.StopReasonToolUse
	}

	log.Debug().
		Int("chunks", chunks).
		Int("tool_calls", len(calls)).
		Str("finish_reason", string(finish)).
		Bool("usage", sawUsage).
		Int("input_tokens", resp.Usage.InputTokens).
		Int("output_tokens", resp.Usage.OutputTokens).
		Msg("openai: RunInference finished")
	return resp, nil
}
