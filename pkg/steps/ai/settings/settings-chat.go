package settings

import (
	"github.com/go-go-golems/codesmith/pkg/steps/ai/types"
	"github.com/huandu/go-clone"
)

type ChatSettings struct {
	Engine            *string        `yaml:"engine,omitempty" mapstructure:"model"`
	ApiType           *types.ApiType `yaml:"api_type,omitempty" mapstructure:"provider"`
	MaxResponseTokens *int           `yaml:"max_response_tokens,omitempty" mapstructure:"max-response-tokens"`
	TopP              *float64       `yaml:"top_p,omitempty" mapstructure:"top-p"`
	Temperature       *float64       `yaml:"temperature,omitempty" mapstructure:"temperature"`
	Stop              []string       `yaml:"stop,omitempty" mapstructure:"stop"`
	// ThinkingBudget enables extended thinking on providers that support it.
	ThinkingBudget *int `yaml:"thinking_budget,omitempty" mapstructure:"thinking-budget"`
}

func NewChatSettings() *ChatSettings {
	return &ChatSettings{
		Engine:            nil,
		ApiType:           nil,
		MaxResponseTokens: nil,
		TopP:              nil,
		Temperature:       nil,
		Stop:              []string{},
	}
}

func (s *ChatSettings) Clone() *ChatSettings {
	return clone.Clone(s).(*ChatSettings)
}
