package factory

import (
	"testing"

	"github.com/go-go-golems/codesmith/pkg/steps/ai/claude"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/openai"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/settings"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withProvider(p types.ApiType) *settings.StepSettings {
	s := settings.NewStepSettings()
	s.Chat.ApiType = &p
	key := "sk-test"
	s.Claude.APIKey = &key
	s.OpenAI.APIKey = &key
	return s
}

func TestCreateEngine_Dispatch(t *testing.T) {
	f := NewStandardEngineFactory()

	tests := []struct {
		provider types.ApiType
		claude   bool
	}{
		{types.ApiTypeClaude, true},
		{types.ApiTypeAnthropic, true},
		{types.ApiTypeOpenAI, false},
		{types.ApiTypeFireworks, false},
		{types.ApiTypeAnyScale, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			e, err := f.CreateEngine(withProvider(tt.provider))
			require.NoError(t, err)
			if tt.claude {
				assert.IsType(t, &claude.ClaudeEngine{}, e)
			} else {
				assert.IsType(t, &openai.OpenAIEngine{}, e)
			}
		})
	}
}

func TestCreateEngine_DefaultsToClaude(t *testing.T) {
	s := settings.NewStepSettings()
	key := "sk-test"
	s.Claude.APIKey = &key
	e, err := NewStandardEngineFactory().CreateEngine(s)
	require.NoError(t, err)
	assert.IsType(t, &claude.ClaudeEngine{}, e)
}

func TestCreateEngine_Errors(t *testing.T) {
	f := NewStandardEngineFactory()

	_, err := f.CreateEngine(nil)
	assert.Error(t, err)

	_, err = f.CreateEngine(withProvider("gemini"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider gemini")

	s := withProvider(types.ApiTypeOpenAI)
	s.OpenAI.APIKey = nil
	_, err = f.CreateEngine(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing API key")
}
