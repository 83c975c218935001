package tools

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/mb0/glob"
	"github.com/pkg/errors"
)

var (
	ErrWorkspaceRootNotSet = errors.New("workspace root not set")
	ErrOutsideWorkspace    = errors.New("path escapes workspace")
	ErrPathDenied          = errors.New("path is denied")
	ErrPathNotAllowed      = errors.New("path is not in the allow list")
	ErrSymlinkLoop         = errors.New("too many levels of symbolic links")
)

const maxSymlinkHops = 40

// Sandbox confines file tools to a workspace root.
//
// Deny patterns use gitignore syntax. Allow patterns are globs matched against the
// slash-separated relative path; a plain directory name allows everything below it.
// An empty allow list allows every path that is not denied.
type Sandbox struct {
	root  string
	allow []string
	deny  gitignore.Matcher
}

// alwaysDenied is prepended to every deny list.
var alwaysDenied = []string{".git/"}

func NewSandbox(root string, allow, deny []string) (*Sandbox, error) {
	if root == "" {
		return nil, ErrWorkspaceRootNotSet
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve workspace root %s", root)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "workspace root %s", abs)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("workspace root %s is not a directory", abs)
	}

	var patterns []gitignore.Pattern
	for _, p := range append(append([]string{}, alwaysDenied...), deny...) {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}

	return &Sandbox{
		root:  abs,
		allow: append([]string{}, allow...),
		deny:  gitignore.NewMatcher(patterns),
	}, nil
}

func (s *Sandbox) Root() string {
	return s.root
}

// Resolve validates path against the workspace boundary and the allow/deny lists and
// returns the absolute path together with the slash-separated relative path.
func (s *Sandbox) Resolve(path string) (string, string, error) {
	if s == nil {
		return "", "", ErrWorkspaceRootNotSet
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", "", errors.New("empty path")
	}

	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Clean(filepath.Join(s.root, path))
	}
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", "", errors.Wrapf(ErrOutsideWorkspace, "%s", path)
	}

	if abs == s.root {
		return abs, "", nil
	}
	abs, err := s.followLinks(abs)
	if err != nil {
		return "", "", errors.Wrapf(err, "%s", path)
	}

	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", "", errors.Wrapf(ErrOutsideWorkspace, "%s", path)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return abs, "", nil
	}

	if s.isDenied(rel, abs) {
		return "", "", errors.Wrapf(ErrPathDenied, "%s", rel)
	}
	if !s.isAllowed(rel) {
		return "", "", errors.Wrapf(ErrPathNotAllowed, "%s", rel)
	}
	return abs, rel, nil
}

func (s *Sandbox) contains(abs string) bool {
	return abs == s.root || strings.HasPrefix(abs, s.root+string(filepath.Separator))
}

// followLinks walks abs below the root one component at a time and replaces every
// symlink with its target. Each intermediate path must stay inside the root. Missing
// components are kept as they are so files and directories can still be created.
func (s *Sandbox) followLinks(abs string) (string, error) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", ErrOutsideWorkspace
	}
	pending := strings.Split(rel, string(filepath.Separator))
	current := s.root
	hops := 0
	for len(pending) > 0 {
		part := pending[0]
		pending = pending[1:]
		switch part {
		case "", ".":
			continue
		case "..":
			current = filepath.Dir(current)
			if !s.contains(current) {
				return "", ErrOutsideWorkspace
			}
			continue
		}

		next := filepath.Join(current, part)
		info, err := os.Lstat(next)
		if err != nil {
			if os.IsNotExist(err) {
				rest := filepath.Join(append([]string{next}, pending...)...)
				if !s.contains(rest) {
					return "", ErrOutsideWorkspace
				}
				return rest, nil
			}
			return "", errors.Wrap(err, "lstat")
		}
		if info.Mode()&os.ModeSymlink == 0 {
			current = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", ErrSymlinkLoop
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", errors.Wrap(err, "readlink")
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(current, target)
		}
		target = filepath.Clean(target)
		if !s.contains(target) {
			return "", ErrOutsideWorkspace
		}
		// restart from the root with the target's components in front of the rest
		targetRel, err := filepath.Rel(s.root, target)
		if err != nil {
			return "", ErrOutsideWorkspace
		}
		pending = append(strings.Split(targetRel, string(filepath.Separator)), pending...)
		current = s.root
	}
	return current, nil
}

func (s *Sandbox) isDenied(rel, abs string) bool {
	parts := strings.Split(rel, "/")
	isDir := false
	if info, err := os.Stat(abs); err == nil {
		isDir = info.IsDir()
	}
	if s.deny.Match(parts, isDir) {
		return true
	}
	// a denied parent directory covers everything below it
	for i := 1; i < len(parts); i++ {
		if s.deny.Match(parts[:i], true) {
			return true
		}
	}
	return false
}

func (s *Sandbox) isAllowed(rel string) bool {
	if len(s.allow) == 0 {
		return true
	}
	for _, pattern := range s.allow {
		pattern = strings.TrimSuffix(filepath.ToSlash(pattern), "/")
		if pattern == "" {
			continue
		}
		if rel == pattern || strings.HasPrefix(rel, pattern+"/") {
			return true
		}
		if ok, err := glob.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// Rel returns the workspace-relative form of an absolute path inside the root.
func (s *Sandbox) Rel(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}
