package transcript

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Recorder {
	sqlite, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	yamlStore, err := NewYAMLDirStore(filepath.Join(t.TempDir(), "transcripts"))
	require.NoError(t, err)

	return map[string]Recorder{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
		"yaml":   yamlStore,
	}
}

func TestRecorder_Lifecycle(t *testing.T) {
	ctx := context.Background()
	for name, r := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, err := r.Start(ctx, "sess-1", map[string]any{"model": "claude-test"})
			require.NoError(t, err)
			assert.Regexp(t, `^tr_`, id)

			idx, err := r.Append(ctx, id, Entry{Role: "user", Content: "build a todo app"})
			require.NoError(t, err)
			assert.Equal(t, 0, idx)
			idx, err = r.Append(ctx, id, Entry{
				Role:     "assistant",
				Content:  "Creating files.",
				Metadata: map[string]any{"tool_calls": float64(2)},
			})
			require.NoError(t, err)
			assert.Equal(t, 1, idx)

			got, err := r.Get(ctx, id)
			require.NoError(t, err)
			assert.False(t, got.Finalized())
			require.Len(t, got.Entries, 2)
			assert.Equal(t, "user", got.Entries[0].Role)
			assert.Equal(t, "Creating files.", got.Entries[1].Content)
			assert.EqualValues(t, 2, got.Entries[1].Metadata["tool_calls"])
			assert.WithinDuration(t, time.Now(), got.Entries[0].Timestamp, time.Minute)
			assert.Equal(t, "claude-test", got.Metadata["model"])

			require.NoError(t, r.Finalize(ctx, id, "Done."))
			got, err = r.Get(ctx, id)
			require.NoError(t, err)
			assert.True(t, got.Finalized())
			assert.Equal(t, "Done.", got.FinalResponse)

			_, err = r.Append(ctx, id, Entry{Role: "user", Content: "late"})
			assert.ErrorIs(t, err, ErrFinalized)
			assert.ErrorIs(t, r.Finalize(ctx, id, "again"), ErrFinalized)

			list, err := r.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, id, list[0].ID)
			assert.Equal(t, "sess-1", list[0].SessionID)
			assert.Equal(t, 2, list[0].Entries)
			assert.True(t, list[0].Finalized)
		})
	}
}

func TestRecorder_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, r := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := r.Get(ctx, "tr_missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = r.Append(ctx, "tr_missing", Entry{Role: "user"})
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, r.Finalize(ctx, "tr_missing", ""), ErrNotFound)
		})
	}
}

func TestYAMLDirStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, err := NewYAMLDirStore(dir)
	require.NoError(t, err)
	id, err := a.Start(ctx, "", nil)
	require.NoError(t, err)
	_, err = a.Append(ctx, id, Entry{Role: "user", Content: "hi"})
	require.NoError(t, err)

	b, err := NewYAMLDirStore(dir)
	require.NoError(t, err)
	got, err := b.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "hi", got.Entries[0].Content)

	_, err = b.Get(ctx, "../escape")
	assert.ErrorIs(t, err, ErrNotFound)
}
