// Package workspace provides the file tools the agent uses inside its sandboxed workspace.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	ReadFileName   = "read_file"
	CreateFileName = "create_file"
	WriteFileName  = "write_file"
	EditFileName   = "edit_file"
	DeleteFileName = "delete_file"
	ListFilesName  = "list_files"
	SearchName     = "search_files"
	SQLQueryName   = "sql_query"

	// AnchorArg is the optional disambiguation field of edit_file.
	AnchorArg = "anchor"

	maxReadBytes = 256 * 1024
)

type ReadFileInput struct {
	Path   string `json:"path" jsonschema:"description=Path relative to the workspace root"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=First line to return (1-based)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to return"`
}

type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"description=Path relative to the workspace root"`
	Content string `json:"content" jsonschema:"description=Full file content"`
}

type EditFileInput struct {
	Path       string `json:"path" jsonschema:"description=Path relative to the workspace root"`
	OldString  string `json:"old_string" jsonschema:"description=Exact text to replace"`
	NewString  string `json:"new_string" jsonschema:"description=Replacement text"`
	Anchor     string `json:"anchor,omitempty" jsonschema:"description=Unique text located before old_string used to pick the right occurrence"`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace every occurrence of old_string"`
}

type DeleteFileInput struct {
	Path string `json:"path" jsonschema:"description=Path relative to the workspace root"`
}

func resolve(execCtx *tools.ExecutionContext, path string) (string, string, error) {
	sb, err := execCtx.Sandbox()
	if err != nil {
		return "", "", err
	}
	return sb.Resolve(path)
}

func readFile(_ context.Context, in ReadFileInput, execCtx *tools.ExecutionContext) (tools.Output, error) {
	abs, rel, err := resolve(execCtx, in.Path)
	if err != nil {
		return tools.Output{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return tools.Output{Content: fmt.Sprintf("File not found: %s", rel), IsError: true}, nil
		}
		return tools.Output{}, err
	}
	if info.IsDir() {
		return tools.Output{Content: fmt.Sprintf("%s is a directory, use %s", rel, ListFilesName), IsError: true}, nil
	}
	if info.Size() > maxReadBytes && in.Limit == 0 {
		return tools.Output{Content: fmt.Sprintf("%s is %d bytes, read it with offset/limit", rel, info.Size()), IsError: true}, nil
	}

	b, err := os.ReadFile(abs)
	if err != nil {
		return tools.Output{}, errors.Wrapf(err, "read %s", rel)
	}
	content := string(b)
	if in.Offset > 0 || in.Limit > 0 {
		content = sliceLines(content, in.Offset, in.Limit)
	}
	return tools.Output{
		Content:  content,
		Metadata: map[string]any{"path": rel, "bytes": len(b)},
	}, nil
}

func sliceLines(content string, offset, limit int) string {
	lines := strings.SplitAfter(content, "\n")
	start := 0
	if offset > 1 {
		start = offset - 1
	}
	if start >= len(lines) {
		return ""
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return strings.Join(lines[start:end], "")
}

func createFile(ctx context.Context, in WriteFileInput, execCtx *tools.ExecutionContext) (tools.Output, error) {
	abs, rel, err := resolve(execCtx, in.Path)
	if err != nil {
		return tools.Output{}, err
	}
	if _, err := os.Stat(abs); err == nil {
		return tools.Output{
			Content: fmt.Sprintf("File already exists: %s. Use %s to change it.", rel, EditFileName),
			IsError: true,
		}, nil
	}
	if err := writeAndMirror(ctx, execCtx, abs, rel, []byte(in.Content)); err != nil {
		return tools.Output{}, err
	}
	return tools.Output{
		Content:  fmt.Sprintf("Created %s (%d bytes)", rel, len(in.Content)),
		Metadata: map[string]any{"path": rel, "bytes": len(in.Content), "created": true},
	}, nil
}

func writeFile(ctx context.Context, in WriteFileInput, execCtx *tools.ExecutionContext) (tools.Output, error) {
	abs, rel, err := resolve(execCtx, in.Path)
	if err != nil {
		return tools.Output{}, err
	}
	_, statErr := os.Stat(abs)
	created := os.IsNotExist(statErr)
	if err := writeAndMirror(ctx, execCtx, abs, rel, []byte(in.Content)); err != nil {
		return tools.Output{}, err
	}
	verb := "Wrote"
	if created {
		verb = "Created"
	}
	return tools.Output{
		Content:  fmt.Sprintf("%s %s (%d bytes)", verb, rel, len(in.Content)),
		Metadata: map[string]any{"path": rel, "bytes": len(in.Content), "created": created},
	}, nil
}

func editFile(ctx context.Context, in EditFileInput, execCtx *tools.ExecutionContext) (tools.Output, error) {
	abs, rel, err := resolve(execCtx, in.Path)
	if err != nil {
		return tools.Output{}, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return tools.Output{Content: fmt.Sprintf("File not found: %s. Use %s for new files.", rel, CreateFileName), IsError: true}, nil
		}
		return tools.Output{}, errors.Wrapf(err, "read %s", rel)
	}
	if in.OldString == "" {
		return tools.Output{Content: "old_string must not be empty", IsError: true}, nil
	}

	updated, n, msg := applyEdit(string(b), in)
	if msg != "" {
		return tools.Output{Content: fmt.Sprintf("%s: %s", rel, msg), IsError: true}, nil
	}
	if err := writeAndMirror(ctx, execCtx, abs, rel, []byte(updated)); err != nil {
		return tools.Output{}, err
	}
	return tools.Output{
		Content:  fmt.Sprintf("Edited %s (%d replacement(s))", rel, n),
		Metadata: map[string]any{"path": rel, "bytes": len(updated), "replacements": n},
	}, nil
}

// applyEdit returns the new content, the number of replacements, or a message explaining
// why the edit could not be applied.
func applyEdit(content string, in EditFileInput) (string, int, string) {
	count := strings.Count(content, in.OldString)
	if count == 0 {
		return "", 0, "old_string not found"
	}
	if in.ReplaceAll {
		return strings.ReplaceAll(content, in.OldString, in.NewString), count, ""
	}

	if in.Anchor != "" {
		if c := strings.Count(content, in.Anchor); c != 1 {
			return "", 0, fmt.Sprintf("anchor must occur exactly once, found %d", c)
		}
		from := strings.Index(content, in.Anchor)
		idx := strings.Index(content[from:], in.OldString)
		if idx < 0 {
			return "", 0, "old_string not found after anchor"
		}
		idx += from
		return content[:idx] + in.NewString + content[idx+len(in.OldString):], 1, ""
	}

	if count > 1 {
		return "", 0, fmt.Sprintf("old_string occurs %d times, add an anchor or set replace_all", count)
	}
	return strings.Replace(content, in.OldString, in.NewString, 1), 1, ""
}

func deleteFile(ctx context.Context, in DeleteFileInput, execCtx *tools.ExecutionContext) (tools.Output, error) {
	abs, rel, err := resolve(execCtx, in.Path)
	if err != nil {
		return tools.Output{}, err
	}
	if rel == "" {
		return tools.Output{Content: "refusing to delete the workspace root", IsError: true}, nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return tools.Output{Content: fmt.Sprintf("File not found: %s", rel), IsError: true}, nil
		}
		return tools.Output{}, err
	}
	if info.IsDir() {
		return tools.Output{Content: fmt.Sprintf("%s is a directory", rel), IsError: true}, nil
	}
	if err := os.Remove(abs); err != nil {
		return tools.Output{}, errors.Wrapf(err, "delete %s", rel)
	}
	if execCtx.FileStore != nil {
		if err := execCtx.FileStore.Delete(ctx, execCtx.AppID, rel); err != nil {
			log.Warn().Err(err).Str("path", rel).Msg("workspace: file store delete failed")
		}
	}
	return tools.Output{
		Content:  fmt.Sprintf("Deleted %s", rel),
		Metadata: map[string]any{"path": rel},
	}, nil
}

func writeAndMirror(ctx context.Context, execCtx *tools.ExecutionContext, abs, rel string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", rel)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", rel)
	}
	if execCtx.FileStore != nil {
		if err := execCtx.FileStore.Put(ctx, execCtx.AppID, rel, content); err != nil {
			// the workspace copy is authoritative
			log.Warn().Err(err).Str("path", rel).Msg("workspace: file store put failed")
		}
	}
	return nil
}
