// Package verify runs cheap static checks over the files an agent request changed.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
	StatusMissing Status = "missing"
)

// FileResult is the outcome for one file.
type FileResult struct {
	Path    string `json:"path" yaml:"path"`
	Checker string `json:"checker,omitempty" yaml:"checker,omitempty"`
	Status  Status `json:"status" yaml:"status"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Report collects the results of one verification run, sorted by path.
type Report struct {
	Files []FileResult `json:"files" yaml:"files"`
}

func (r Report) Count(s Status) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == s {
			n++
		}
	}
	return n
}

func (r Report) Passed() bool {
	return r.Count(StatusFail) == 0
}

// Summary formats the report for appending to the final answer.
func (r Report) Summary() string {
	if len(r.Files) == 0 {
		return ""
	}
	var sb strings.Builder
	checked := len(r.Files) - r.Count(StatusSkipped) - r.Count(StatusMissing)
	if r.Passed() {
		fmt.Fprintf(&sb, "Verification passed: %d file(s) checked", checked)
	} else {
		fmt.Fprintf(&sb, "Verification failed: %d of %d checked file(s) have problems", r.Count(StatusFail), checked)
	}
	if n := r.Count(StatusSkipped); n > 0 {
		fmt.Fprintf(&sb, ", %d skipped", n)
	}
	sb.WriteString(".")
	for _, f := range r.Files {
		if f.Status == StatusFail {
			fmt.Fprintf(&sb, "\n  FAIL %s: %s", f.Path, f.Message)
		}
	}
	return sb.String()
}

// CheckFunc checks the content of one file and returns nil if it looks fine.
type CheckFunc func(ctx context.Context, path string, content []byte) error

type Verifier struct {
	checkers    map[string]namedCheck
	concurrency int
}

type namedCheck struct {
	name string
	fn   CheckFunc
}

type Option func(*Verifier)

// WithChecker registers fn for the given extensions (with leading dot).
func WithChecker(name string, fn CheckFunc, exts ...string) Option {
	return func(v *Verifier) {
		for _, e := range exts {
			v.checkers[strings.ToLower(e)] = namedCheck{name: name, fn: fn}
		}
	}
}

func WithConcurrency(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

func New(opts ...Option) *Verifier {
	v := &Verifier{
		checkers:    map[string]namedCheck{},
		concurrency: 4,
	}
	defaults := []Option{
		WithChecker("javascript", treeSitterCheck(javascript.GetLanguage()), ".js", ".jsx", ".mjs", ".cjs"),
		WithChecker("typescript", treeSitterCheck(typescript.GetLanguage()), ".ts", ".mts", ".cts"),
		WithChecker("tsx", treeSitterCheck(tsx.GetLanguage()), ".tsx"),
		WithChecker("json", checkJSON, ".json"),
		WithChecker("yaml", checkYAML, ".yaml", ".yml"),
		WithChecker("html", checkHTML, ".html", ".htm"),
		WithChecker("go", checkGo, ".go"),
		WithChecker("css", checkCSS, ".css"),
	}
	for _, o := range append(defaults, opts...) {
		o(v)
	}
	return v
}

// Check verifies the given workspace-relative paths below root.
func (v *Verifier) Check(ctx context.Context, root string, paths []string) (Report, error) {
	uniq := map[string]bool{}
	for _, p := range paths {
		uniq[filepath.ToSlash(filepath.Clean(p))] = true
	}
	sorted := make([]string, 0, len(uniq))
	for p := range uniq {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	results := make([]FileResult, len(sorted))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(v.concurrency)
	for i, p := range sorted {
		i, p := i, p
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = v.checkOne(ctx, root, p)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Report{}, errors.Wrap(err, "verification interrupted")
	}
	return Report{Files: results}, nil
}

// Verify runs Check and returns the summary string. Errors are folded into the summary.
func (v *Verifier) Verify(ctx context.Context, root string, paths []string) string {
	report, err := v.Check(ctx, root, paths)
	if err != nil {
		log.Warn().Err(err).Msg("verify: check failed")
		return fmt.Sprintf("Verification could not complete: %s", err)
	}
	log.Debug().
		Int("files", len(report.Files)).
		Int("failed", report.Count(StatusFail)).
		Msg("verify: done")
	return report.Summary()
}

func (v *Verifier) checkOne(ctx context.Context, root, rel string) FileResult {
	res := FileResult{Path: rel}
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			res.Status = StatusMissing
			return res
		}
		res.Status = StatusFail
		res.Message = err.Error()
		return res
	}

	check, ok := v.checkers[strings.ToLower(filepath.Ext(rel))]
	if !ok {
		res.Status = StatusSkipped
		return res
	}
	res.Checker = check.name
	if err := check.fn(ctx, rel, content); err != nil {
		res.Status = StatusFail
		res.Message = err.Error()
		return res
	}
	res.Status = StatusPass
	return res
}

func treeSitterCheck(lang *sitter.Language) CheckFunc {
	return func(ctx context.Context, _ string, content []byte) error {
		p := sitter.NewParser()
		p.SetLanguage(lang)
		tree, err := p.ParseCtx(ctx, nil, content)
		if err != nil {
			return err
		}
		defer tree.Close()
		root := tree.RootNode()
		if !root.HasError() {
			return nil
		}
		if n := firstError(root); n != nil {
			return errors.Errorf("syntax error at line %d", n.StartPoint().Row+1)
		}
		return errors.New("syntax error")
	}
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && c.HasError() {
			if e := firstError(c); e != nil {
				return e
			}
		}
	}
	return nil
}

func checkJSON(_ context.Context, _ string, content []byte) error {
	var v any
	if err := json.Unmarshal(content, &v); err != nil {
		return errors.Wrap(err, "invalid JSON")
	}
	return nil
}

func checkYAML(_ context.Context, _ string, content []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	for {
		var v any
		err := dec.Decode(&v)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "invalid YAML")
		}
	}
}

func checkHTML(_ context.Context, _ string, content []byte) error {
	if len(bytes.TrimSpace(content)) == 0 {
		return errors.New("empty HTML document")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return errors.Wrap(err, "invalid HTML")
	}
	if doc.Find("body").Children().Length() == 0 && doc.Find("head").Children().Length() == 0 {
		return errors.New("HTML document has no elements")
	}
	return nil
}

func checkGo(_ context.Context, path string, content []byte) error {
	_, err := parser.ParseFile(token.NewFileSet(), path, content, parser.AllErrors)
	return err
}

// checkCSS only verifies that braces balance outside comments and strings.
func checkCSS(_ context.Context, _ string, content []byte) error {
	depth, line := 0, 1
	var quote byte
	for i := 0; i < len(content); i++ {
		c := content[i]
		if c == '\n' {
			line++
		}
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '/' && i+1 < len(content) && content[i+1] == '*':
			end := bytes.Index(content[i+2:], []byte("*/"))
			if end < 0 {
				return errors.Errorf("unterminated comment at line %d", line)
			}
			line += bytes.Count(content[i:i+2+end], []byte("\n"))
			i += end + 3
		case c == '"' || c == '\'':
			quote = c
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth < 0 {
				return errors.Errorf("unexpected } at line %d", line)
			}
		}
	}
	if depth != 0 {
		return errors.Errorf("%d unclosed block(s)", depth)
	}
	return nil
}
