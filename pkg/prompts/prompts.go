// Package prompts renders the agent system prompt.
package prompts

import (
	"bytes"
	"sort"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/pkg/errors"
)

// Data is what the system prompt template sees.
type Data struct {
	AppID         string
	WorkspaceRoot string
	// Files lists workspace-relative paths that already exist.
	Files []string
	Tools []tools.ToolDefinition
	// WebSearch reports whether the model may search the web.
	WebSearch bool
	Extra     map[string]any
}

const DefaultSystemPrompt = `You are a coding agent working inside a sandboxed workspace{{ with .AppID }} for the app "{{ . }}"{{ end }}.
You build and modify projects by calling tools. Paths are relative to the workspace root.

Rules:
- Read a file before you edit it. Edits replace old_string with new_string; pass an anchor when old_string may not be unique.
- Use create_file for new files and edit_file for small changes to existing ones.
- Make every reference you add (script src, link href, imports) point to a file that exists or that you create.
- Run tools one step at a time. When you are done, reply with a short summary of what you built and no tool calls.
{{- if .WebSearch }}
- You may search the web when you need current documentation.
{{- end }}
{{ if .Tools }}
Available tools:
{{- range .Tools }}
- {{ .Name }}: {{ .Description | trim }}
{{- end }}
{{ end -}}
{{ if .Files }}
Existing files ({{ len .Files }}):
{{- range (.Files | sortAlpha) }}
- {{ . }}
{{- end }}
{{ end -}}`

// Render executes tpl (DefaultSystemPrompt when empty) with sprig functions.
func Render(tpl string, data Data) (string, error) {
	if tpl == "" {
		tpl = DefaultSystemPrompt
	}
	t, err := template.New("system").Funcs(sprig.TxtFuncMap()).Parse(tpl)
	if err != nil {
		return "", errors.Wrap(err, "parse system prompt")
	}
	defs := append([]tools.ToolDefinition(nil), data.Tools...)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	data.Tools = defs

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "render system prompt")
	}
	return buf.String(), nil
}
