package readguard

import (
	"fmt"
	"testing"

	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/inference/tools/workspace"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T) *Guard {
	reg := tools.NewInMemoryToolRegistry()
	require.NoError(t, workspace.Register(reg))
	r := tools.NewRunner(reg)
	n := 0
	return New(r.Definition, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("%d", n)
	}))
}

func use(id, name string, input map[string]any) turns.Block {
	return turns.NewToolUseBlock(turns.ToolInvocation{ID: id, Name: name, Input: input})
}

func ids(invs []turns.ToolInvocation) []string {
	var out []string
	for _, inv := range invs {
		out = append(out, inv.ID)
	}
	return out
}

func TestApply_InjectsReadBeforeUnreadEdit(t *testing.T) {
	g := newGuard(t)
	blocks := []turns.Block{
		turns.NewTextBlock("Updating the app."),
		use("tu_1", "edit_file", map[string]any{"path": "src/App.tsx", "old_string": "a", "new_string": "b"}),
	}
	res := g.Apply(blocks)

	require.Len(t, res.Invocations, 2)
	assert.Equal(t, []string{"rbw_1", "tu_1"}, ids(res.Invocations))
	assert.Equal(t, "read_file", res.Invocations[0].Name)
	assert.Equal(t, "src/App.tsx", res.Invocations[0].StringArg("path"))
	assert.Equal(t, []string{"src/App.tsx"}, res.Injected)

	require.Len(t, res.Blocks, 3)
	assert.Equal(t, turns.BlockKindText, res.Blocks[0].Kind)
	assert.Equal(t, "rbw_1", res.Blocks[1].ID)
	assert.Equal(t, "tu_1", res.Blocks[2].ID)

	// the edit has no anchor, so it is annotated on a copy
	assert.Contains(t, res.Invocations[1].StringArg(WarningKey), "src/App.tsx")
	assert.Contains(t, res.Blocks[2].Input, WarningKey)
	assert.NotContains(t, blocks[1].Input, WarningKey)
	assert.True(t, IsSynthetic(res.Invocations[0].ID))
	assert.False(t, IsSynthetic(res.Invocations[1].ID))
}

func TestApply_ExplicitReadSuppressesInjection(t *testing.T) {
	g := newGuard(t)
	blocks := []turns.Block{
		use("tu_1", "read_file", map[string]any{"path": "./src/App.tsx"}),
		use("tu_2", "edit_file", map[string]any{"path": "src/App.tsx", "old_string": "a", "new_string": "b"}),
	}
	res := g.Apply(blocks)
	assert.Empty(t, res.Injected)
	assert.Equal(t, []string{"tu_1", "tu_2"}, ids(res.Invocations))
	if diff := cmp.Diff(blocks, res.Blocks); diff != "" {
		t.Errorf("blocks changed (-want +got):\n%s", diff)
	}
}

func TestApply_ReadAfterEditDoesNotCount(t *testing.T) {
	g := newGuard(t)
	res := g.Apply([]turns.Block{
		use("tu_1", "edit_file", map[string]any{"path": "a.js", "old_string": "x", "new_string": "y", "anchor": "fn"}),
		use("tu_2", "read_file", map[string]any{"path": "a.js"}),
	})
	assert.Equal(t, []string{"rbw_1", "tu_1", "tu_2"}, ids(res.Invocations))
	// anchored edits are not annotated
	assert.False(t, res.Invocations[1].HasArg(WarningKey))
}

func TestApply_OneInjectionPerPathPerTurn(t *testing.T) {
	g := newGuard(t)
	res := g.Apply([]turns.Block{
		use("e1", "edit_file", map[string]any{"path": "a.js", "old_string": "1", "new_string": "2"}),
		use("c1", "create_file", map[string]any{"path": "b.js", "content": ""}),
		use("e2", "edit_file", map[string]any{"path": "a.js", "old_string": "2", "new_string": "3"}),
		use("e3", "edit_file", map[string]any{"path": "b.js", "old_string": "", "new_string": "x"}),
	})
	assert.Equal(t, []string{"rbw_1", "e1", "c1", "e2", "rbw_2", "e3"}, ids(res.Invocations))
	assert.Equal(t, []string{"a.js", "b.js"}, res.Injected)

	// every injected read sits immediately before the edit that triggered it
	for i, inv := range res.Invocations {
		if IsSynthetic(inv.ID) {
			require.Less(t, i+1, len(res.Invocations))
			assert.Equal(t, "edit_file", res.Invocations[i+1].Name)
			assert.Equal(t, inv.StringArg("path"), res.Invocations[i+1].StringArg("path"))
		}
	}
}

func TestApply_CreateAndWriteNeverInject(t *testing.T) {
	g := newGuard(t)
	blocks := []turns.Block{
		use("c", "create_file", map[string]any{"path": "src/App.tsx", "content": "x"}),
		use("w", "write_file", map[string]any{"path": "src/index.ts", "content": "y"}),
		use("u", "unknown_tool", map[string]any{"path": "z"}),
		{Kind: turns.BlockKindThinking, Thinking: "hmm"},
	}
	res := g.Apply(blocks)
	assert.Empty(t, res.Injected)
	assert.Equal(t, []string{"c", "w", "u"}, ids(res.Invocations))
	if diff := cmp.Diff(blocks, res.Blocks); diff != "" {
		t.Errorf("blocks changed (-want +got):\n%s", diff)
	}
}

// A create in one turn does not count as a read in the next one.
func TestApply_ReadSetIsPerTurn(t *testing.T) {
	g := newGuard(t)
	first := g.Apply([]turns.Block{
		use("c", "create_file", map[string]any{"path": "src/App.tsx", "content": "x"}),
	})
	assert.Equal(t, []string{"c"}, ids(first.Invocations))

	second := g.Apply([]turns.Block{
		use("e", "edit_file", map[string]any{"path": "src/App.tsx", "old_string": "x", "new_string": "y"}),
	})
	assert.Equal(t, []string{"rbw_1", "e"}, ids(second.Invocations))
	assert.Equal(t, "src/App.tsx", second.Invocations[0].StringArg("path"))
}

func TestApply_AnchorArgSuppressesWarning(t *testing.T) {
	reg := tools.NewInMemoryToolRegistry()
	require.NoError(t, workspace.Register(reg))
	r := tools.NewRunner(reg)
	g := New(r.Definition, WithAnchorArg("near"))

	res := g.Apply([]turns.Block{
		use("tu_1", "edit_file", map[string]any{"path": "a.js", "old_string": "x", "new_string": "y", "near": "function a"}),
		use("tu_2", "edit_file", map[string]any{"path": "b.js", "old_string": "x", "new_string": "y", "anchor": "function b"}),
	})

	require.Len(t, res.Invocations, 4)
	assert.Equal(t, []string{"a.js", "b.js"}, res.Injected)
	assert.NotContains(t, res.Invocations[1].Input, WarningKey)
	// "anchor" is not the configured argument here
	assert.Contains(t, res.Invocations[3].StringArg(WarningKey), "No near was given")
}
