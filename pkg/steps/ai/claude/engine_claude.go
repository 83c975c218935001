package claude

import (
	"context"

	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/claude/api"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultModel is used when neither the request nor the settings name a model.
const DefaultModel = "claude-sonnet-4-5"

// ClaudeEngine implements engine.Engine on the Anthropic Messages API with streaming.
type ClaudeEngine struct {
	settings *settings.StepSettings
	client   *api.Client
}

var _ engine.Engine = (*ClaudeEngine)(nil)

// NewClaudeEngine creates a new Claude inference engine with the given settings.
func NewClaudeEngine(s *settings.StepSettings) (*ClaudeEngine, error) {
	if s == nil || s.Claude == nil {
		return nil, errors.New("no claude settings")
	}
	apiKey := ""
	if s.Claude.APIKey != nil {
		apiKey = *s.Claude.APIKey
	}
	if apiKey == "" {
		return nil, errors.New("missing claude api key")
	}
	baseURL := ""
	if s.Claude.BaseURL != nil {
		baseURL = *s.Claude.BaseURL
	}
	client := api.NewClient(apiKey, baseURL, api.WithHTTPClient(s.Client.NewHTTPClient()))
	return &ClaudeEngine{settings: s, client: client}, nil
}

// MakeMessageRequest builds the API request for req.
func (e *ClaudeEngine) MakeMessageRequest(req *engine.Request) (*api.MessageRequest, error) {
	msgs, err := MessagesToClaude(req.Messages)
	if err != nil {
		return nil, err
	}
	claudeTools, err := ToolsToClaude(req.Tools)
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

	out := &api.MessageRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: maxTokens,
		System:    req.System,
		Tools:     claudeTools,
		Stream:    true,
	}
	if cfg != nil {
		out.StopSequences = cfg.Stop
		if cfg.ThinkingEnabled() {
			budget := *cfg.ThinkingBudget
			out.Thinking = api.NewThinking(budget)
			if out.MaxTokens <= budget {
				out.MaxTokens = budget + engine.DefaultMaxTokens
			}
			cfg = engine.SanitizeForReasoningModel(cfg)
		}
		out.Temperature = cfg.Temperature
		out.TopP = cfg.TopP
	}
	if out.Thinking == nil {
		out.ToolChoice = toolChoiceToClaude(req.ToolChoice)
		if c := e.settings.Claude; c.TopK != nil {
			out.TopK = c.TopK
		}
	}
	if c := e.settings.Claude; c.UserID != nil && *c.UserID != "" {
		out.Metadata = &api.Metadata{UserID: *c.UserID}
	}

	ws := req.WebSearch
	if ws == nil && e.settings.Claude.WebSearch {
		ws = &engine.WebSearchConfig{MaxUses: e.settings.Claude.WebSearchMaxUses}
	}
	if ws != nil {
		out.Tools = append(out.Tools, api.NewWebSearchTool(ws.MaxUses, ws.AllowedDomains, ws.BlockedDomains))
	}
	return out, nil
}

// RunInference streams one assistant message.
func (e *ClaudeEngine) RunInference(ctx context.Context, req *engine.Request, onDelta engine.DeltaHandler) (*engine.Response, error) {
	apiReq, err := e.MakeMessageRequest(req)
	if err != nil {
		return nil, err
	}
	log.Debug().Object("request", req).Bool("thinking", apiReq.Thinking != nil).Msg("claude: RunInference started")

	eventCh, err := e.client.StreamMessage(ctx, apiReq)
	if err != nil {
		return nil, errors.Wrap(err, "claude streaming request failed")
	}

	merger := NewContentBlockMerger(onDelta)
	eventCount := 0
	for event := range eventCh {
		eventCount++
		if err := merger.Add(event); err != nil {
			log.Error().Err(err).Int("event_count", eventCount).Msg("claude: ContentBlockMerger.Add failed")
			drain(eventCh)
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	response, err := merger.Response()
	if err != nil {
		return nil, err
	}
	if tap, ok := engine.DebugTapFrom(ctx); ok {
		tap.OnProviderObject("message", response)
	}

	log.Debug().
		Int("events", eventCount).
		Int("blocks", len(response.Content)).
		Str("stop_reason", response.StopReason).
		Int("input_tokens", response.Usage.InputTokens).
		Int("output_tokens", response.Usage.OutputTokens).
		Msg("claude: RunInference finished")

	return &engine.Response{
		ID:         response.ID,
		Model:      response.Model,
		Content:    ContentToBlocks(response.Content),
		StopReason: stopReason(response.StopReason),
		Usage:      usageFrom(response.Usage),
	}, nil
}

// drain consumes the rest of the stream so the reader goroutine can exit.
func drain(ch <-chan api.StreamingEvent) {
	go func() {
		for range ch {
		}
	}()
}
