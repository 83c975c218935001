package settings

import (
	"strings"
	"testing"

	"github.com/go-go-golems/codesmith/pkg/steps/ai/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateFromMap(t *testing.T) {
	s := NewStepSettings()
	err := s.UpdateFromMap(map[string]any{
		"chat": map[string]any{
			"provider":        "anthropic",
			"model":           "claude-sonnet-4-5",
			"thinking-budget": "2048",
			"temperature":     0.3,
		},
		"claude": map[string]any{
			"api-key":    "sk-test",
			"web-search": true,
		},
		"openai": map[string]any{
			"image-model": "dall-e-3",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, types.ApiTypeClaude, s.Provider())
	require.NotNil(t, s.Chat.Engine)
	assert.Equal(t, "claude-sonnet-4-5", *s.Chat.Engine)
	require.NotNil(t, s.Claude.APIKey)
	assert.Equal(t, "sk-test", *s.Claude.APIKey)
	assert.True(t, s.Claude.WebSearch)
	assert.Equal(t, 5, s.Claude.WebSearchMaxUses)
	assert.Equal(t, "dall-e-3", s.OpenAI.ImageModel)

	cfg := s.InferenceConfig()
	require.NotNil(t, cfg.ThinkingBudget)
	assert.Equal(t, 2048, *cfg.ThinkingBudget)
	assert.Equal(t, 0.3, *cfg.Temperature)
}

func TestProvider_Default(t *testing.T) {
	assert.Equal(t, types.ApiTypeClaude, NewStepSettings().Provider())
	p := types.ApiType("OpenAI")
	s := NewStepSettings()
	s.Chat.ApiType = &p
	assert.Equal(t, types.ApiTypeOpenAI, s.Provider())
}

func TestNewStepSettingsFromYAML(t *testing.T) {
	s, err := NewStepSettingsFromYAML(strings.NewReader(`
factories:
  chat:
    engine: gpt-4o
    api_type: openai
  client:
    timeout: 30
`))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", *s.Chat.Engine)
	require.NotNil(t, s.Client.TimeoutSeconds)
	assert.Equal(t, 30, *s.Client.TimeoutSeconds)
	assert.Equal(t, float64(30), s.Client.NewHTTPClient().Timeout.Seconds())

	md := s.GetMetadata()
	assert.Equal(t, "openai", md["ai-provider"])
	assert.Equal(t, "gpt-4o", md["ai-engine"])
}

func TestClone_IsIndependent(t *testing.T) {
	s := NewStepSettings()
	model := "a"
	s.Chat.Engine = &model
	c := s.Clone()
	other := "b"
	c.Chat.Engine = &other
	assert.Equal(t, "a", *s.Chat.Engine)
}
