package engine

import "strings"

// InferenceConfig holds sampling and reasoning overrides for a request.
//
// Fields use pointer types so that nil means "not set, use the provider default".
type InferenceConfig struct {
	// ThinkingBudget sets the token budget for extended thinking.
	// Maps to Claude thinking.budget_tokens. Zero or nil disables thinking.
	ThinkingBudget *int `json:"thinking_budget,omitempty" yaml:"thinking_budget,omitempty" mapstructure:"thinking-budget"`

	// ReasoningEffort controls reasoning depth on OpenAI reasoning models: "low", "medium", "high".
	ReasoningEffort *string `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty" mapstructure:"reasoning-effort"`

	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`
	TopP        *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty" mapstructure:"top-p"`

	// MaxResponseTokens overrides the max output tokens.
	MaxResponseTokens *int `json:"max_response_tokens,omitempty" yaml:"max_response_tokens,omitempty" mapstructure:"max-response-tokens"`

	Stop []string `json:"stop,omitempty" yaml:"stop,omitempty" mapstructure:"stop"`

	// Seed for reproducibility (OpenAI Chat Completions).
	Seed *int `json:"seed,omitempty" yaml:"seed,omitempty" mapstructure:"seed"`
}

// MergeInferenceConfig overlays the fields set in override onto def.
// It returns one of its arguments unchanged when the other is nil.
func MergeInferenceConfig(override, def *InferenceConfig) *InferenceConfig {
	if override == nil {
		return def
	}
	if def == nil {
		return override
	}
	merged := *def
	if override.ThinkingBudget != nil {
		merged.ThinkingBudget = override.ThinkingBudget
	}
	if override.ReasoningEffort != nil {
		merged.ReasoningEffort = override.ReasoningEffort
	}
	if override.Temperature != nil {
		merged.Temperature = override.Temperature
	}
	if override.TopP != nil {
		merged.TopP = override.TopP
	}
	if override.MaxResponseTokens != nil {
		merged.MaxResponseTokens = override.MaxResponseTokens
	}
	if override.Stop != nil {
		merged.Stop = override.Stop
	}
	if override.Seed != nil {
		merged.Seed = override.Seed
	}
	return &merged
}

// ThinkingEnabled reports whether a positive thinking budget is configured.
func (c *InferenceConfig) ThinkingEnabled() bool {
	return c != nil && c.ThinkingBudget != nil && *c.ThinkingBudget > 0
}

// SanitizeForReasoningModel returns a copy of cfg with sampling fields cleared.
// Reasoning models (e.g., o1/o3/o4/gpt-5) reject temperature and top_p, and Claude
// rejects them while extended thinking is on.
func SanitizeForReasoningModel(cfg *InferenceConfig) *InferenceConfig {
	if cfg == nil {
		return nil
	}
	sanitized := *cfg
	sanitized.Temperature = nil
	sanitized.TopP = nil
	return &sanitized
}

// IsReasoningModel reports whether an OpenAI model id names a reasoning model.
func IsReasoningModel(model string) bool {
	m := strings.ToLower(model)
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}
