package filestore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/inference/tools/workspace"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "files.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Put(ctx, "app", "index.html", []byte("<p>one</p>")))
	require.NoError(t, s.Put(ctx, "app", "index.html", []byte("<p>two</p>")))
	require.NoError(t, s.Put(ctx, "app", "a.css", nil))
	require.NoError(t, s.Put(ctx, "other", "index.html", []byte("x")))

	f, err := s.Get(ctx, "app", "index.html")
	require.NoError(t, err)
	assert.Equal(t, "<p>two</p>", string(f.Content))
	assert.False(t, f.UpdatedAt.IsZero())

	paths, err := s.List(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.css", "index.html"}, paths)

	require.NoError(t, s.Delete(ctx, "app", "index.html"))
	require.NoError(t, s.Delete(ctx, "app", "never-stored"))
	_, err = s.Get(ctx, "app", "index.html")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	f, err = s.Get(ctx, "other", "index.html")
	require.NoError(t, err)
	assert.Equal(t, "x", string(f.Content))
}

func TestSQLiteStore_MirrorsWorkspaceTools(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	reg := tools.NewInMemoryToolRegistry()
	require.NoError(t, workspace.Register(reg))
	r := tools.NewRunner(reg)
	require.NoError(t, r.SetContext(tools.WithWorkspaceRoot(t.TempDir()), tools.WithFileStore(s), tools.WithAppID("demo")))

	res := r.Execute(ctx, turns.ToolInvocation{ID: "c1", Name: workspace.CreateFileName,
		Input: map[string]any{"path": "src/main.js", "content": "console.log(1)"}})
	require.False(t, res.IsError, res.Content)

	f, err := s.Get(ctx, "demo", "src/main.js")
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(f.Content))

	res = r.Execute(ctx, turns.ToolInvocation{ID: "d1", Name: workspace.DeleteFileName,
		Input: map[string]any{"path": "src/main.js"}})
	require.False(t, res.IsError, res.Content)

	paths, err := s.List(ctx, "demo")
	require.NoError(t, err)
	assert.Empty(t, paths)
}
