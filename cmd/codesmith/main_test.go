package main

import (
	"bytes"
	"testing"

	"github.com/go-go-golems/codesmith/pkg/inference/agent"
	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/inference/tools/workspace"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/types"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadStepSettings_FlagsOverrideConfigSection(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("ai", map[string]any{
		"chat":   map[string]any{"provider": "openai", "model": "gpt-4o-mini", "temperature": 0.2},
		"openai": map[string]any{"api-key": "sk-config"},
	})
	viper.Set("model", "gpt-4o")
	viper.Set("max-turns", 7)
	viper.Set("no-pacing", true)

	s, err := loadStepSettings()
	require.NoError(t, err)
	assert.Equal(t, types.ApiTypeOpenAI, s.Provider())
	require.NotNil(t, s.Chat.Engine)
	assert.Equal(t, "gpt-4o", *s.Chat.Engine)
	assert.Equal(t, "sk-config", *s.OpenAI.APIKey)

	cfg := loopConfigFrom(s)
	assert.Equal(t, 7, cfg.MaxTurns)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, agent.NoPacing(), cfg.Pacing)
	require.NotNil(t, cfg.Inference)
	require.NotNil(t, cfg.Inference.Temperature)
	assert.InDelta(t, 0.2, *cfg.Inference.Temperature, 1e-9)
	assert.Nil(t, cfg.WebSearch)
}

func TestToolsCommand_PrintsSchemas(t *testing.T) {
	cmd := newToolsCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--sql"})
	require.NoError(t, cmd.Execute())

	var descs []toolDescription
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &descs))
	names := map[string]bool{}
	for _, d := range descs {
		names[d.Name] = true
		assert.NotEmpty(t, d.Description)
	}
	assert.True(t, names["create_file"])
	assert.True(t, names["sql_query"])
}

func TestTranscriptCommand_RequiresStore(t *testing.T) {
	t.Cleanup(viper.Reset)
	cmd := newTranscriptCommand()
	cmd.SetArgs([]string{"list"})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--transcript-db")
}

func TestDisableTools(t *testing.T) {
	reg := tools.NewInMemoryToolRegistry()
	require.NoError(t, workspace.Register(reg))

	require.NoError(t, disableTools(reg, []string{workspace.DeleteFileName}))
	_, err := reg.GetTool(workspace.DeleteFileName)
	assert.ErrorIs(t, err, tools.ErrToolNotFound)
	_, err = reg.GetTool(workspace.ReadFileName)
	assert.NoError(t, err)

	err = disableTools(reg, []string{"no_such_tool"})
	assert.ErrorIs(t, err, tools.ErrToolNotFound)
}
