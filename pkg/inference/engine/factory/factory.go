package factory

import (
	"strings"

	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/claude"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/openai"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/settings"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/types"
	"github.com/pkg/errors"
)

// EngineFactory creates inference engines based on provider settings.
type EngineFactory interface {
	// CreateEngine creates an Engine for the provider named in settings.Chat.ApiType.
	CreateEngine(settings *settings.StepSettings) (engine.Engine, error)
	SupportedProviders() []string
	DefaultProvider() string
}

// Base URLs used for OpenAI-compatible providers when none is configured.
var defaultBaseURLs = map[types.ApiType]string{
	types.ApiTypeAnyScale:  "https://api.endpoints.anyscale.com/v1",
	types.ApiTypeFireworks: "https://api.fireworks.ai/inference/v1",
}

// StandardEngineFactory dispatches on the configured provider. Claude is the default.
type StandardEngineFactory struct{}

func NewStandardEngineFactory() *StandardEngineFactory {
	return &StandardEngineFactory{}
}

func (f *StandardEngineFactory) CreateEngine(s *settings.StepSettings) (engine.Engine, error) {
	if s == nil {
		return nil, errors.New("settings cannot be nil")
	}
	provider := s.Provider()
	if err := f.validateSettings(s, provider); err != nil {
		return nil, errors.Wrapf(err, "invalid settings for provider %s", provider)
	}

	switch provider {
	case types.ApiTypeOpenAI:
		return openai.NewOpenAIEngine(s)

	case types.ApiTypeAnyScale, types.ApiTypeFireworks:
		baseURL := defaultBaseURLs[provider]
		if s.OpenAI.BaseURL != nil && *s.OpenAI.BaseURL != "" {
			baseURL = *s.OpenAI.BaseURL
		}
		return openai.NewOpenAIEngine(s, openai.WithBaseURL(baseURL))

	case types.ApiTypeClaude:
		return claude.NewClaudeEngine(s)

	default:
		return nil, errors.Errorf("unsupported provider %s. Supported providers: %s",
			provider, strings.Join(f.SupportedProviders(), ", "))
	}
}

func (f *StandardEngineFactory) SupportedProviders() []string {
	return []string{
		string(types.ApiTypeClaude),
		string(types.ApiTypeAnthropic), // alias for claude
		string(types.ApiTypeOpenAI),
		string(types.ApiTypeAnyScale),
		string(types.ApiTypeFireworks),
	}
}

func (f *StandardEngineFactory) DefaultProvider() string {
	return string(types.ApiTypeClaude)
}

func (f *StandardEngineFactory) validateSettings(s *settings.StepSettings, provider types.ApiType) error {
	if s.Chat == nil {
		return errors.New("chat settings cannot be nil")
	}
	switch provider {
	case types.ApiTypeOpenAI, types.ApiTypeAnyScale, types.ApiTypeFireworks:
		if s.OpenAI == nil || s.OpenAI.APIKey == nil || *s.OpenAI.APIKey == "" {
			return errors.Errorf("missing API key for %s", provider)
		}
	case types.ApiTypeClaude:
		if s.Claude == nil || s.Claude.APIKey == nil || *s.Claude.APIKey == "" {
			return errors.New("missing API key for claude")
		}
	}
	return nil
}

var _ EngineFactory = (*StandardEngineFactory)(nil)
