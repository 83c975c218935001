package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Text  string `json:"text" jsonschema:"required"`
	Times int    `json:"times,omitempty"`
}

func newEchoTool(t *testing.T) *ToolDefinition {
	def, err := NewTool("echo", "repeats text", func(_ context.Context, in echoInput, _ *ExecutionContext) (Output, error) {
		n := in.Times
		if n == 0 {
			n = 1
		}
		return Output{Content: strings.Repeat(in.Text, n)}, nil
	})
	require.NoError(t, err)
	return def
}

func newRunner(t *testing.T, defs ...*ToolDefinition) *Runner {
	reg := NewInMemoryToolRegistry()
	require.NoError(t, reg.Register(defs...))
	return NewRunner(reg)
}

func TestRunner_ExecutesTypedTool(t *testing.T) {
	r := newRunner(t, newEchoTool(t))
	res := r.Execute(context.Background(), turns.ToolInvocation{
		ID: "tu_1", Name: "echo", Input: map[string]any{"text": "ab", "times": float64(2)},
	})
	assert.False(t, res.IsError, res.Content)
	assert.Equal(t, "abab", res.Content)
	assert.Equal(t, "tu_1", res.ToolUseID)
}

func TestRunner_UnknownToolIsErrorResult(t *testing.T) {
	r := newRunner(t)
	res := r.Execute(context.Background(), turns.ToolInvocation{ID: "tu_1", Name: "nope"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "Unknown tool: nope")
	assert.Equal(t, "tu_1", res.ToolUseID)
}

func TestRunner_ExecutorErrorBecomesIsError(t *testing.T) {
	failing := &ToolDefinition{
		Name: "x",
		Executor: ExecutorFunc(func(context.Context, map[string]any, *ExecutionContext) (Output, error) {
			return Output{}, errors.New("disk full")
		}),
	}
	r := newRunner(t, failing, newEchoTool(t))

	results := r.ExecuteAll(context.Background(), []turns.ToolInvocation{
		{ID: "a", Name: "x", Input: map[string]any{}},
		{ID: "b", Name: "echo", Input: map[string]any{"text": "ok"}},
	})
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ToolUseID)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "disk full")
	assert.Equal(t, "b", results[1].ToolUseID)
	assert.False(t, results[1].IsError)
}

func TestRunner_PanicIsRecovered(t *testing.T) {
	panicky := &ToolDefinition{
		Name: "boom",
		Executor: ExecutorFunc(func(context.Context, map[string]any, *ExecutionContext) (Output, error) {
			panic("kaboom")
		}),
	}
	r := newRunner(t, panicky)
	res := r.Execute(context.Background(), turns.ToolInvocation{ID: "p", Name: "boom"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "kaboom")
	assert.Equal(t, 1, r.Metrics().PerTool["boom"].Errors)
}

func TestRunner_ValidatesInput(t *testing.T) {
	r := newRunner(t, newEchoTool(t))
	res := r.Execute(context.Background(), turns.ToolInvocation{ID: "v", Name: "echo", Input: map[string]any{"times": 3}})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "Invalid input for echo")

	// annotations from the read guard must not trip validation
	res = r.Execute(context.Background(), turns.ToolInvocation{
		ID: "w", Name: "echo", Input: map[string]any{"text": "hi", "_warning": "note"},
	})
	assert.False(t, res.IsError, res.Content)
}

func TestRunner_SkipsValidationWhenDisabled(t *testing.T) {
	reg := NewInMemoryToolRegistry()
	require.NoError(t, reg.Register(newEchoTool(t)))
	r := NewRunner(reg, WithToolConfig(DefaultToolConfig().WithValidateInputs(false)))

	// "text" is required by the schema but the executor still runs
	res := r.Execute(context.Background(), turns.ToolInvocation{ID: "v", Name: "echo", Input: map[string]any{"times": 3}})
	assert.False(t, res.IsError, res.Content)
	assert.Empty(t, res.Content)
}

func TestRunner_RespectsAllowedTools(t *testing.T) {
	reg := NewInMemoryToolRegistry()
	require.NoError(t, reg.Register(newEchoTool(t)))
	r := NewRunner(reg, WithToolConfig(DefaultToolConfig().WithAllowedTools([]string{"other"})))

	res := r.Execute(context.Background(), turns.ToolInvocation{ID: "1", Name: "echo", Input: map[string]any{"text": "x"}})
	assert.True(t, res.IsError)
	assert.Empty(t, r.Tools())
}

func TestRunner_TruncatesLargeOutput(t *testing.T) {
	reg := NewInMemoryToolRegistry()
	require.NoError(t, reg.Register(newEchoTool(t)))
	r := NewRunner(reg, WithToolConfig(DefaultToolConfig().WithMaxResultBytes(10)))

	res := r.Execute(context.Background(), turns.ToolInvocation{ID: "1", Name: "echo", Input: map[string]any{"text": "0123456789abcdef"}})
	assert.True(t, strings.HasPrefix(res.Content, "0123456789\n... [truncated 6 bytes]"), res.Content)
}

func TestRunner_MetricsAndClearCache(t *testing.T) {
	r := newRunner(t, newEchoTool(t))
	for i := 0; i < 3; i++ {
		r.Execute(context.Background(), turns.ToolInvocation{ID: "m", Name: "echo", Input: map[string]any{"text": "hello world"}})
	}
	snap := r.Metrics()
	assert.Equal(t, 3, snap.Total.Calls)
	assert.Equal(t, int64(33), snap.Total.OutputBytes)
	assert.Greater(t, snap.Total.OutputTokens, int64(0))
	assert.Contains(t, r.MetricsSummary(), "echo")

	r.ClearCache()
	assert.Equal(t, 0, r.Metrics().Total.Calls)
	assert.Equal(t, "No tool calls recorded.", r.MetricsSummary())
}

func TestRunner_SetContext(t *testing.T) {
	dir := t.TempDir()
	var seen *ExecutionContext
	inspect := &ToolDefinition{
		Name: "inspect",
		Executor: ExecutorFunc(func(_ context.Context, _ map[string]any, ec *ExecutionContext) (Output, error) {
			seen = ec
			return Output{Content: "ok"}, nil
		}),
	}
	r := newRunner(t, inspect)

	// works with nothing wired
	res := r.Execute(context.Background(), turns.ToolInvocation{ID: "1", Name: "inspect"})
	require.False(t, res.IsError)
	_, err := seen.Sandbox()
	assert.ErrorIs(t, err, ErrWorkspaceRootNotSet)

	require.NoError(t, r.SetContext(WithWorkspaceRoot(dir), WithAppID("app-1")))
	r.Execute(context.Background(), turns.ToolInvocation{ID: "2", Name: "inspect"})
	assert.Equal(t, "app-1", seen.AppID)
	sb, err := seen.Sandbox()
	require.NoError(t, err)
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Equal(t, resolved, sb.Root())

	// a failed update keeps the previous context
	err = r.SetContext(WithWorkspaceRoot(filepath.Join(dir, "missing")))
	assert.Error(t, err)
	assert.Equal(t, "app-1", r.Context().AppID)
	assert.Equal(t, resolved, r.Context().WorkspaceRoot)

	require.NoError(t, r.SetContext(WithSessionID("s")))
	assert.Equal(t, "app-1", r.Context().AppID)
	assert.Equal(t, "s", r.Context().SessionID)
}

func TestSandbox_Resolve(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "components"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "x"), 0o755))

	sb, err := NewSandbox(dir, nil, []string{"node_modules/", "*.env", "# comment"})
	require.NoError(t, err)

	_, rel, err := sb.Resolve("src/components/App.tsx")
	require.NoError(t, err)
	assert.Equal(t, "src/components/App.tsx", rel)

	_, _, err = sb.Resolve("../outside.txt")
	assert.ErrorIs(t, errors.Cause(err), ErrOutsideWorkspace)

	_, _, err = sb.Resolve("/etc/passwd")
	assert.ErrorIs(t, errors.Cause(err), ErrOutsideWorkspace)

	_, _, err = sb.Resolve("node_modules/x/index.js")
	assert.ErrorIs(t, errors.Cause(err), ErrPathDenied)

	_, _, err = sb.Resolve("config/prod.env")
	assert.ErrorIs(t, errors.Cause(err), ErrPathDenied)

	_, _, err = sb.Resolve(".git/config")
	assert.ErrorIs(t, errors.Cause(err), ErrPathDenied)
}

func TestSandbox_Symlinks(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "lib", "util.js"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))
	require.NoError(t, os.Symlink("src/lib", filepath.Join(dir, "inner")))
	require.NoError(t, os.Symlink("loop-b", filepath.Join(dir, "loop-a")))
	require.NoError(t, os.Symlink("loop-a", filepath.Join(dir, "loop-b")))
	require.NoError(t, os.Symlink(".git", filepath.Join(dir, "meta")))

	sb, err := NewSandbox(dir, nil, nil)
	require.NoError(t, err)

	_, _, err = sb.Resolve("link/secret.txt")
	assert.ErrorIs(t, errors.Cause(err), ErrOutsideWorkspace)
	_, _, err = sb.Resolve("link/new/deep.txt")
	assert.ErrorIs(t, errors.Cause(err), ErrOutsideWorkspace)
	_, _, err = sb.Resolve("link")
	assert.ErrorIs(t, errors.Cause(err), ErrOutsideWorkspace)

	abs, rel, err := sb.Resolve("inner/util.js")
	require.NoError(t, err)
	assert.Equal(t, "src/lib/util.js", rel)
	assert.Equal(t, filepath.Join(sb.Root(), "src", "lib", "util.js"), abs)

	_, _, err = sb.Resolve("loop-a/x")
	assert.ErrorIs(t, errors.Cause(err), ErrSymlinkLoop)

	_, _, err = sb.Resolve("meta/config")
	assert.ErrorIs(t, errors.Cause(err), ErrPathDenied)
}

func TestSandbox_AllowList(t *testing.T) {
	dir := t.TempDir()
	sb, err := NewSandbox(dir, []string{"src", "*.md"}, nil)
	require.NoError(t, err)

	_, _, err = sb.Resolve("src/deep/file.ts")
	assert.NoError(t, err)
	_, _, err = sb.Resolve("README.md")
	assert.NoError(t, err)
	_, _, err = sb.Resolve("scripts/deploy.sh")
	assert.ErrorIs(t, errors.Cause(err), ErrPathNotAllowed)
}

func TestNewTool_ReflectsSchema(t *testing.T) {
	def := newEchoTool(t)
	m, err := def.ParametersMap()
	require.NoError(t, err)
	assert.Equal(t, "object", m["type"])
	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "text")
	assert.Contains(t, props, "times")
	assert.NotContains(t, m, "$schema")

	assert.NoError(t, ValidateForProvider([]ToolDefinition{*def}, ClaudeLimits))
	long := *def
	long.Name = strings.Repeat("n", 65)
	assert.Error(t, ValidateForProvider([]ToolDefinition{long}, OpenAILimits))
}

func TestRegistry_ListToolsSorted(t *testing.T) {
	reg := NewInMemoryToolRegistry()
	noop := ExecutorFunc(func(context.Context, map[string]any, *ExecutionContext) (Output, error) { return Output{}, nil })
	require.NoError(t, reg.RegisterTool("zeta", ToolDefinition{Executor: noop}))
	require.NoError(t, reg.RegisterTool("alpha", ToolDefinition{Executor: noop}))
	assert.Error(t, reg.RegisterTool("bad", ToolDefinition{}))

	list := reg.ListTools()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, ToolKindOther, list[0].Kind)

	c := reg.Clone()
	require.NoError(t, c.UnregisterTool("zeta"))
	assert.Len(t, c.ListTools(), 1)
	assert.Len(t, reg.ListTools(), 2, "clone is independent")
	assert.ErrorIs(t, c.UnregisterTool("zeta"), ErrToolNotFound)
	_, err := reg.GetTool("missing")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestCountTokens_UsesEmbeddedVocabulary(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Equal(t, 2, CountTokens("hello world"))
	assert.Equal(t, 3, CountTokens("hello world!"))
}
