// Package refcheck flags references from freshly written HTML and script files to
// files that do not exist yet. It is advisory: callers append the warning to a tool
// result so the model can fix the reference on its next turn.
package refcheck

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

var DefaultExtensions = []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs", ".json", ".css"}

type Checker struct {
	extensions  []string
	sourceRoots []string
}

type Option func(*Checker)

func WithExtensions(exts ...string) Option {
	return func(c *Checker) { c.extensions = exts }
}

// WithSourceRoots sets the directories tried when a reference does not resolve
// relative to the referencing file.
func WithSourceRoots(roots ...string) Option {
	return func(c *Checker) { c.sourceRoots = roots }
}

func New(opts ...Option) *Checker {
	c := &Checker{
		extensions:  DefaultExtensions,
		sourceRoots: []string{"src"},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Check extracts references from files (workspace-relative path to content) and returns
// those that resolve to none of the known paths. Files that fail to parse are skipped.
func (c *Checker) Check(ctx context.Context, files map[string][]byte, known map[string]bool) []Reference {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var missing []Reference
	for _, name := range names {
		refs, err := Extract(ctx, name, files[name])
		if err != nil {
			log.Debug().Err(err).Str("path", name).Msg("refcheck: skipping unparsable file")
			continue
		}
		for _, ref := range refs {
			if !c.resolves(ref, known) {
				missing = append(missing, ref)
			}
		}
	}
	return missing
}

func (c *Checker) resolves(ref Reference, known map[string]bool) bool {
	for _, cand := range c.Candidates(ref) {
		if known[cand] {
			return true
		}
	}
	return false
}

// Candidates lists the workspace paths a reference may resolve to, most specific first.
func (c *Checker) Candidates(ref Reference) []string {
	target := ref.Target
	var bases []string
	switch {
	case strings.HasPrefix(target, "@/"):
		bases = append(bases, strings.TrimPrefix(target, "@/"))
		for _, root := range c.sourceRoots {
			bases = append(bases, path.Join(root, strings.TrimPrefix(target, "@/")))
		}
	case strings.HasPrefix(target, "/"):
		bases = append(bases, strings.TrimPrefix(target, "/"), path.Join("public", target))
	default:
		bases = append(bases, path.Join(path.Dir(ref.From), target))
	}
	stripped := stripRelative(target)
	for _, root := range c.sourceRoots {
		bases = append(bases, path.Join(root, stripped))
	}

	seen := map[string]bool{}
	var out []string
	push := func(p string) {
		p = strings.TrimPrefix(path.Clean(p), "./")
		if p == "." || p == "" || strings.HasPrefix(p, "../") || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	for _, b := range bases {
		push(b)
		if ext := path.Ext(b); ext != "" {
			// "./x.js" may be compiled from x.ts or x.tsx
			noExt := strings.TrimSuffix(b, ext)
			for _, e := range c.extensions {
				push(noExt + e)
			}
		}
		for _, e := range c.extensions {
			push(b + e)
		}
		for _, e := range c.extensions {
			push(path.Join(b, "index"+e))
		}
	}
	return out
}

func stripRelative(p string) string {
	for {
		switch {
		case strings.HasPrefix(p, "./"):
			p = p[2:]
		case strings.HasPrefix(p, "../"):
			p = p[3:]
		case strings.HasPrefix(p, "/"):
			p = p[1:]
		case strings.HasPrefix(p, "@/"):
			p = p[2:]
		default:
			return p
		}
	}
}

// FormatWarning renders missing references for a tool result. It returns "" when
// nothing is missing.
func FormatWarning(missing []Reference) string {
	if len(missing) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nWARNING: missing file references (not created in this request):\n")
	for _, m := range missing {
		loc := m.From
		if m.Line > 0 {
			loc = fmt.Sprintf("%s:%d", m.From, m.Line)
		}
		fmt.Fprintf(&sb, "  - %s references %s (%s)\n", loc, m.Target, m.Kind)
	}
	sb.WriteString("Create the missing files or fix the references.")
	return sb.String()
}
