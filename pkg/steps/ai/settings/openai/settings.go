package openai

import (
	"github.com/huandu/go-clone"
)

type Settings struct {
	// How many choice to create for each prompt
	N *int `yaml:"n,omitempty" mapstructure:"n"`
	// PresencePenalty to use
	PresencePenalty *float64 `yaml:"presence_penalty,omitempty" mapstructure:"presence-penalty"`
	// FrequencyPenalty to use
	FrequencyPenalty *float64 `yaml:"frequency_penalty,omitempty" mapstructure:"frequency-penalty"`
	// ReasoningEffort for reasoning models (low|medium|high)
	ReasoningEffort *string `yaml:"reasoning_effort,omitempty" mapstructure:"reasoning-effort"`

	BaseURL *string `yaml:"base_url,omitempty" mapstructure:"base-url"`
	APIKey  *string `yaml:"api_key,omitempty" mapstructure:"api-key"`

	// ImageModel is used by the image generation tool.
	ImageModel string `yaml:"image_model,omitempty" mapstructure:"image-model"`
}

func NewSettings() *Settings {
	return &Settings{
		N:                nil,
		PresencePenalty:  nil,
		FrequencyPenalty: nil,
		ReasoningEffort:  nil,
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}
