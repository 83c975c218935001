package settings

import (
	"io"
	"strings"

	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/settings/claude"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/settings/openai"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/types"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type factoryConfigFileWrapper struct {
	Factories *StepSettings
}

type StepSettings struct {
	Chat   *ChatSettings    `yaml:"chat,omitempty" mapstructure:"chat"`
	OpenAI *openai.Settings `yaml:"openai,omitempty" mapstructure:"openai"`
	Client *ClientSettings  `yaml:"client,omitempty" mapstructure:"client"`
	Claude *claude.Settings `yaml:"claude,omitempty" mapstructure:"claude"`
}

func NewStepSettings() *StepSettings {
	return &StepSettings{
		Chat:   NewChatSettings(),
		OpenAI: openai.NewSettings(),
		Client: NewClientSettings(),
		Claude: claude.NewSettings(),
	}
}

func NewStepSettingsFromYAML(s io.Reader) (*StepSettings, error) {
	settings_ := factoryConfigFileWrapper{
		Factories: NewStepSettings(),
	}
	if err := yaml.NewDecoder(s).Decode(&settings_); err != nil {
		return nil, err
	}

	return settings_.Factories, nil
}

// UpdateFromMap decodes a nested settings map (as returned by viper for a config
// section) over the current values. Keys use the dashed mapstructure names.
func (ss *StepSettings) UpdateFromMap(m map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           ss,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return errors.Wrap(err, "create settings decoder")
	}
	if err := dec.Decode(m); err != nil {
		return errors.Wrap(err, "decode settings")
	}
	return nil
}

// Provider returns the normalized provider, defaulting to claude.
func (ss *StepSettings) Provider() types.ApiType {
	if ss.Chat == nil || ss.Chat.ApiType == nil || *ss.Chat.ApiType == "" {
		return types.ApiTypeClaude
	}
	p := types.ApiType(strings.ToLower(string(*ss.Chat.ApiType)))
	if p == types.ApiTypeAnthropic {
		return types.ApiTypeClaude
	}
	return p
}

// InferenceConfig collects the sampling and reasoning settings for engine requests.
func (ss *StepSettings) InferenceConfig() *engine.InferenceConfig {
	cfg := &engine.InferenceConfig{}
	if ss.Chat != nil {
		cfg.Temperature = ss.Chat.Temperature
		cfg.TopP = ss.Chat.TopP
		cfg.MaxResponseTokens = ss.Chat.MaxResponseTokens
		cfg.ThinkingBudget = ss.Chat.ThinkingBudget
		if len(ss.Chat.Stop) > 0 {
			cfg.Stop = ss.Chat.Stop
		}
	}
	if ss.OpenAI != nil {
		cfg.ReasoningEffort = ss.OpenAI.ReasoningEffort
	}
	return cfg
}

func (ss *StepSettings) GetMetadata() map[string]interface{} {
	metadata := make(map[string]interface{})
	metadata["ai-provider"] = string(ss.Provider())

	if ss.Chat != nil {
		if ss.Chat.Engine != nil {
			metadata["ai-engine"] = *ss.Chat.Engine
		}
		if ss.Chat.MaxResponseTokens != nil {
			metadata["ai-max-response-tokens"] = *ss.Chat.MaxResponseTokens
		}
		if ss.Chat.TopP != nil && *ss.Chat.TopP != 1 {
			metadata["ai-top-p"] = *ss.Chat.TopP
		}
		if ss.Chat.Temperature != nil {
			metadata["ai-temperature"] = *ss.Chat.Temperature
		}
		if len(ss.Chat.Stop) > 0 {
			metadata["ai-stop"] = ss.Chat.Stop
		}
		if ss.Chat.ThinkingBudget != nil {
			metadata["ai-thinking-budget"] = *ss.Chat.ThinkingBudget
		}
	}

	if ss.OpenAI != nil {
		if ss.OpenAI.N != nil && *ss.OpenAI.N != 1 {
			metadata["openai-n"] = *ss.OpenAI.N
		}
		if ss.OpenAI.PresencePenalty != nil && *ss.OpenAI.PresencePenalty != 0 {
			metadata["openai-presence-penalty"] = *ss.OpenAI.PresencePenalty
		}
		if ss.OpenAI.FrequencyPenalty != nil && *ss.OpenAI.FrequencyPenalty != 0 {
			metadata["openai-frequency-penalty"] = *ss.OpenAI.FrequencyPenalty
		}
		if ss.OpenAI.BaseURL != nil {
			metadata["openai-base-url"] = *ss.OpenAI.BaseURL
		}
	}

	if ss.Client != nil {
		if ss.Client.TimeoutSeconds != nil {
			metadata["timeout_second"] = *ss.Client.TimeoutSeconds
		}
		if ss.Client.UserAgent != nil {
			metadata["user-agent"] = *ss.Client.UserAgent
		}
	}

	if ss.Claude != nil {
		if ss.Claude.TopK != nil && *ss.Claude.TopK != 1 {
			metadata["claude-top-k"] = *ss.Claude.TopK
		}
		if ss.Claude.UserID != nil && *ss.Claude.UserID != "" {
			metadata["claude-user-id"] = *ss.Claude.UserID
		}
		if ss.Claude.BaseURL != nil {
			metadata["claude-base-url"] = *ss.Claude.BaseURL
		}
		if ss.Claude.WebSearch {
			metadata["claude-web-search"] = true
		}
	}

	return metadata
}

func (s *StepSettings) Clone() *StepSettings {
	return &StepSettings{
		Chat:   s.Chat.Clone(),
		OpenAI: s.OpenAI.Clone(),
		Client: s.Client.Clone(),
		Claude: s.Claude.Clone(),
	}
}
