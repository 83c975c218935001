package prompts

import (
	"testing"

	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Default(t *testing.T) {
	out, err := Render("", Data{
		AppID: "todo",
		Files: []string{"src/main.ts", "index.html"},
		Tools: []tools.ToolDefinition{
			{Name: "read_file", Description: " Read a file "},
			{Name: "create_file", Description: "Create a file"},
		},
		WebSearch: true,
	})
	require.NoError(t, err)
	assert.Contains(t, out, `for the app "todo"`)
	assert.Contains(t, out, "- create_file: Create a file\n- read_file: Read a file")
	assert.Contains(t, out, "Existing files (2):\n- index.html\n- src/main.ts")
	assert.Contains(t, out, "search the web")
}

func TestRender_Minimal(t *testing.T) {
	out, err := Render("", Data{})
	require.NoError(t, err)
	assert.NotContains(t, out, "for the app")
	assert.NotContains(t, out, "Available tools")
	assert.NotContains(t, out, "search the web")
}

func TestRender_CustomTemplate(t *testing.T) {
	out, err := Render(`{{ .Extra.stack | upper }} in {{ .WorkspaceRoot | base }}`, Data{
		WorkspaceRoot: "/tmp/ws/app",
		Extra:         map[string]any{"stack": "vite"},
	})
	require.NoError(t, err)
	assert.Equal(t, "VITE in app", out)

	_, err = Render("{{ .Nope", Data{})
	assert.Error(t, err)
}
