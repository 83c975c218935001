package refcheck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_HTML(t *testing.T) {
	html := `<!doctype html><html><head>
<link rel="stylesheet" href="styles.css?v=2">
<link rel="preconnect" href="https://fonts.example.com">
<script src="https://cdn.example.com/react.js"></script>
</head><body><script type="module" src="./main.js"></script></body></html>`

	refs, err := Extract(context.Background(), "public/index.html", []byte(html))
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, Reference{From: "public/index.html", Target: "styles.css", Kind: RefStylesheet}, refs[1])
	assert.Equal(t, "./main.js", refs[0].Target)
	assert.Equal(t, RefScript, refs[0].Kind)
}

func TestExtract_TypeScriptImports(t *testing.T) {
	src := `import React from 'react';
import { Button } from "./components/Button";
export { util } from '../lib/util';
import type { Props } from './types';
const Lazy = React.lazy(() => import('./pages/Lazy'));
const cfg = require('./config.json');
`
	refs, err := Extract(context.Background(), "src/App.tsx", []byte(src))
	require.NoError(t, err)

	var targets []string
	for _, r := range refs {
		targets = append(targets, r.Target)
		assert.Equal(t, RefImport, r.Kind)
	}
	assert.Equal(t, []string{"./components/Button", "../lib/util", "./types", "./pages/Lazy", "./config.json"}, targets)
	assert.Equal(t, 2, refs[0].Line)
}

func TestExtract_IgnoresOtherFiles(t *testing.T) {
	refs, err := Extract(context.Background(), "README.md", []byte(`see ./main.js`))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestCheck_ResolvesExtensionsIndexAndSourceRoot(t *testing.T) {
	c := New()
	files := map[string][]byte{
		"src/main.tsx": []byte(`import App from './App';
import { api } from './api';
import './index.css';
import { x } from './util.js';
import Missing from './Missing';
`),
		"index.html": []byte(`<script type="module" src="/main.tsx"></script>`),
	}
	known := map[string]bool{
		"src/main.tsx":     true,
		"src/App.tsx":      true,
		"src/api/index.ts": true,
		"src/index.css":    true,
		"src/util.ts":      true,
		"index.html":       true,
	}
	missing := c.Check(context.Background(), files, known)
	require.Len(t, missing, 1)
	assert.Equal(t, "./Missing", missing[0].Target)
	assert.Equal(t, "src/main.tsx", missing[0].From)
}

// A new HTML page pointing at a script nobody created.
func TestCheck_HTMLScriptNotCreated(t *testing.T) {
	c := New()
	files := map[string][]byte{
		"index.html": []byte(`<html><body><script src="main.js"></script></body></html>`),
	}
	missing := c.Check(context.Background(), files, map[string]bool{"index.html": true})
	require.Len(t, missing, 1)
	assert.Equal(t, "main.js", missing[0].Target)

	warning := FormatWarning(missing)
	assert.Contains(t, warning, "main.js")
	assert.Contains(t, warning, "index.html references main.js (script)")
	assert.Equal(t, "", FormatWarning(nil))
}

func TestCandidates(t *testing.T) {
	c := New(WithExtensions(".js"))
	got := c.Candidates(Reference{From: "web/index.html", Target: "app"})
	assert.Equal(t, []string{"web/app", "web/app.js", "web/app/index.js", "src/app", "src/app.js", "src/app/index.js"}, got)
}
