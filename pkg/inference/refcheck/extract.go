package refcheck

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// RefKind says where a reference was found.
type RefKind string

const (
	RefScript     RefKind = "script"
	RefStylesheet RefKind = "link"
	RefImport     RefKind = "import"
)

// Reference is one file a source file points at.
type Reference struct {
	From   string  `json:"from" yaml:"from"`
	Target string  `json:"target" yaml:"target"`
	Kind   RefKind `json:"kind" yaml:"kind"`
	Line   int     `json:"line,omitempty" yaml:"line,omitempty"`
}

// languageFor returns the tree-sitter grammar for a script file, nil for other files.
func languageFor(p string) *sitter.Language {
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	}
	return nil
}

func isHTML(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".html" || ext == ".htm"
}

// Extract returns the local references of one file. Files that are neither HTML nor
// JavaScript/TypeScript yield nothing.
func Extract(ctx context.Context, relPath string, content []byte) ([]Reference, error) {
	if isHTML(relPath) {
		return extractHTML(relPath, content)
	}
	if lang := languageFor(relPath); lang != nil {
		return extractScript(ctx, relPath, content, lang)
	}
	return nil, nil
}

// link rels that do not point at a local asset
var ignoredRels = map[string]bool{
	"preconnect":   true,
	"dns-prefetch": true,
	"canonical":    true,
	"alternate":    true,
}

func extractHTML(relPath string, content []byte) ([]Reference, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", relPath)
	}

	var refs []Reference
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && isLocal(src, true) {
			refs = append(refs, Reference{From: relPath, Target: cleanTarget(src), Kind: RefScript})
		}
	})
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		rel := strings.ToLower(strings.TrimSpace(s.AttrOr("rel", "")))
		if ignoredRels[rel] {
			return
		}
		if href, ok := s.Attr("href"); ok && isLocal(href, true) {
			refs = append(refs, Reference{From: relPath, Target: cleanTarget(href), Kind: RefStylesheet})
		}
	})
	return refs, nil
}

func extractScript(ctx context.Context, relPath string, content []byte, lang *sitter.Language) ([]Reference, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", relPath)
	}
	defer tree.Close()

	var refs []Reference
	add := func(n *sitter.Node) {
		if n == nil || n.Type() != "string" {
			return
		}
		spec := strings.Trim(n.Content(content), "\"'`")
		if isLocal(spec, false) {
			refs = append(refs, Reference{
				From:   relPath,
				Target: cleanTarget(spec),
				Kind:   RefImport,
				Line:   int(n.StartPoint().Row) + 1,
			})
		}
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement", "export_statement":
			add(n.ChildByFieldName("source"))
		case "call_expression":
			fn := n.ChildByFieldName("function")
			args := n.ChildByFieldName("arguments")
			if fn != nil && args != nil && args.NamedChildCount() > 0 &&
				(fn.Type() == "import" || (fn.Type() == "identifier" && fn.Content(content) == "require")) {
				add(args.NamedChild(0))
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(tree.RootNode())
	return refs, nil
}

// isLocal reports whether a reference points into the workspace. For HTML, bare names
// like "main.js" are relative paths; for scripts they are package imports.
func isLocal(ref string, html bool) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return false
	}
	lower := strings.ToLower(ref)
	for _, p := range []string{"http:", "https:", "//", "data:", "mailto:", "javascript:", "blob:"} {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	if strings.Contains(ref, "${") || strings.Contains(ref, "{{") {
		return false
	}
	if html {
		return true
	}
	return strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") ||
		strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "@/")
}

func cleanTarget(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	return ref
}
