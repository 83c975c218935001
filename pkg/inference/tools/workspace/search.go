package workspace

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/mb0/glob"
	"github.com/pkg/errors"
)

const (
	maxListEntries   = 500
	maxSearchMatches = 200
)

type ListFilesInput struct {
	Path      string `json:"path,omitempty" jsonschema:"description=Directory relative to the workspace root (default: root)"`
	Recursive bool   `json:"recursive,omitempty"`
}

type SearchFilesInput struct {
	Pattern string `json:"pattern" jsonschema:"description=Regular expression (RE2 syntax)"`
	Path    string `json:"path,omitempty" jsonschema:"description=Directory to search in"`
	Glob    string `json:"glob,omitempty" jsonschema:"description=Only search files whose relative path matches this glob"`
}

// skipDirs are never descended into by list and search.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
}

func listFiles(_ context.Context, in ListFilesInput, execCtx *tools.ExecutionContext) (tools.Output, error) {
	sb, err := execCtx.Sandbox()
	if err != nil {
		return tools.Output{}, err
	}
	start := in.Path
	if start == "" {
		start = "."
	}
	abs, _, err := sb.Resolve(start)
	if err != nil {
		return tools.Output{}, err
	}

	var entries []string
	truncated := false
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == abs {
			return nil
		}
		rel := sb.Rel(p)
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			if _, _, err := sb.Resolve(rel); err != nil {
				return filepath.SkipDir
			}
			entries = append(entries, rel+"/")
			if !in.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if _, _, err := sb.Resolve(rel); err != nil {
			return nil
		}
		if len(entries) >= maxListEntries {
			truncated = true
			return filepath.SkipAll
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return tools.Output{}, errors.Wrapf(err, "list %s", start)
	}

	sort.Strings(entries)
	if len(entries) == 0 {
		return tools.Output{Content: "(empty)"}, nil
	}
	out := strings.Join(entries, "\n")
	if truncated {
		out += fmt.Sprintf("\n... (truncated at %d entries)", maxListEntries)
	}
	return tools.Output{Content: out, Metadata: map[string]any{"count": len(entries)}}, nil
}

func searchFiles(ctx context.Context, in SearchFilesInput, execCtx *tools.ExecutionContext) (tools.Output, error) {
	sb, err := execCtx.Sandbox()
	if err != nil {
		return tools.Output{}, err
	}
	re, err := regexp.Compile(in.Pattern)
	if err != nil {
		return tools.Output{Content: fmt.Sprintf("invalid pattern: %s", err), IsError: true}, nil
	}
	start := in.Path
	if start == "" {
		start = "."
	}
	abs, _, err := sb.Resolve(start)
	if err != nil {
		return tools.Output{}, err
	}

	var matches []string
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel := sb.Rel(p)
		if d.IsDir() {
			if p != abs && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if _, _, err := sb.Resolve(rel); err != nil {
			return nil
		}
		if in.Glob != "" {
			ok, gerr := glob.Match(in.Glob, rel)
			if gerr != nil {
				return errors.Wrapf(gerr, "bad glob %q", in.Glob)
			}
			if !ok {
				ok, _ = glob.Match(in.Glob, d.Name())
			}
			if !ok {
				return nil
			}
		}
		found, err := grepFile(p, rel, re, maxSearchMatches-len(matches))
		if err != nil {
			return nil
		}
		matches = append(matches, found...)
		if len(matches) >= maxSearchMatches {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return tools.Output{}, err
	}
	if len(matches) == 0 {
		return tools.Output{Content: "No matches found."}, nil
	}
	return tools.Output{
		Content:  strings.Join(matches, "\n"),
		Metadata: map[string]any{"matches": len(matches)},
	}, nil
}

func grepFile(abs, rel string, re *regexp.Regexp, limit int) ([]string, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() && len(out) < limit {
		line++
		text := scanner.Text()
		if strings.IndexByte(text, 0) >= 0 {
			// binary
			return nil, nil
		}
		if re.MatchString(text) {
			out = append(out, fmt.Sprintf("%s:%d: %s", rel, line, strings.TrimSpace(text)))
		}
	}
	return out, scanner.Err()
}
