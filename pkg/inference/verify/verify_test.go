package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root string, files map[string]string) {
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestCheck_PassAndFail(t *testing.T) {
	root := t.TempDir()
	write(t, root, map[string]string{
		"src/App.tsx":    "export default function App() { return <div className=\"x\">hi</div>; }\n",
		"src/broken.ts":  "const x: number = ;\nfunction (\n",
		"package.json":   `{"name": "demo", "private": true}`,
		"bad.json":       `{"name": }`,
		"config.yaml":    "a: 1\n---\nb: [1, 2]\n",
		"index.html":     "<!doctype html><html><body><div id=\"root\"></div></body></html>",
		"styles.css":     "body { color: red; } /* } */ a::after { content: \"}\"; }",
		"broken.css":     "body { color: red;",
		"main.go":        "package main\n\nfunc main() {}\n",
		"notes.txt":      "anything",
		"src/util.js":    "export const add = (a, b) => a + b;\n",
		"src/legacy.mjs": "import x from './x.js'\nexport default x\n",
	})

	v := New()
	report, err := v.Check(context.Background(), root, []string{
		"src/App.tsx", "src/broken.ts", "package.json", "bad.json", "config.yaml", "index.html",
		"styles.css", "broken.css", "main.go", "notes.txt", "src/util.js", "src/legacy.mjs",
		"deleted.js", "./src/App.tsx",
	})
	require.NoError(t, err)

	byPath := map[string]FileResult{}
	for _, f := range report.Files {
		byPath[f.Path] = f
	}
	assert.Len(t, report.Files, 13)
	assert.Equal(t, StatusPass, byPath["src/App.tsx"].Status, byPath["src/App.tsx"].Message)
	assert.Equal(t, StatusFail, byPath["src/broken.ts"].Status)
	assert.Contains(t, byPath["src/broken.ts"].Message, "syntax error at line")
	assert.Equal(t, StatusPass, byPath["package.json"].Status)
	assert.Equal(t, StatusFail, byPath["bad.json"].Status)
	assert.Equal(t, StatusPass, byPath["config.yaml"].Status)
	assert.Equal(t, StatusPass, byPath["index.html"].Status)
	assert.Equal(t, StatusPass, byPath["styles.css"].Status, byPath["styles.css"].Message)
	assert.Equal(t, StatusFail, byPath["broken.css"].Status)
	assert.Equal(t, StatusPass, byPath["main.go"].Status)
	assert.Equal(t, StatusSkipped, byPath["notes.txt"].Status)
	assert.Equal(t, StatusPass, byPath["src/util.js"].Status)
	assert.Equal(t, StatusPass, byPath["src/legacy.mjs"].Status)
	assert.Equal(t, StatusMissing, byPath["deleted.js"].Status)
	assert.False(t, report.Passed())

	summary := report.Summary()
	assert.Contains(t, summary, "Verification failed: 3 of 11 checked file(s) have problems, 1 skipped.")
	assert.Contains(t, summary, "FAIL bad.json")
}

func TestVerify_AllPass(t *testing.T) {
	root := t.TempDir()
	write(t, root, map[string]string{"a.json": "[]", "b.js": "let a = 1;"})

	v := New()
	assert.Equal(t, "Verification passed: 2 file(s) checked.", v.Verify(context.Background(), root, []string{"a.json", "b.js"}))
	assert.Equal(t, "", v.Verify(context.Background(), root, nil))
}

func TestWithChecker_Overrides(t *testing.T) {
	root := t.TempDir()
	write(t, root, map[string]string{"x.txt": "TODO"})
	v := New(WithChecker("no-todo", func(_ context.Context, _ string, content []byte) error {
		if string(content) == "TODO" {
			return errors.New("unfinished")
		}
		return nil
	}, ".txt"), WithConcurrency(1))

	report, err := v.Check(context.Background(), root, []string{"x.txt"})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, "no-todo", report.Files[0].Checker)
	assert.Equal(t, "unfinished", report.Files[0].Message)
}
