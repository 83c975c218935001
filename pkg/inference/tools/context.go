package tools

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// FileStore mirrors workspace writes into durable storage keyed by app id.
type FileStore interface {
	Put(ctx context.Context, appID, path string, content []byte) error
	Delete(ctx context.Context, appID, path string) error
}

// ExecutionContext is the per-session state every executor receives. It is replaced as a
// whole by Runner.SetContext and must be treated as read-only by executors.
type ExecutionContext struct {
	WorkspaceRoot string
	AllowedPaths  []string
	DeniedPaths   []string
	DB            *sql.DB
	FileStore     FileStore
	AppID         string
	SessionID     string

	sandbox *Sandbox
}

// Sandbox returns the sandbox for WorkspaceRoot, or ErrWorkspaceRootNotSet.
func (c *ExecutionContext) Sandbox() (*Sandbox, error) {
	if c == nil || c.sandbox == nil {
		return nil, ErrWorkspaceRootNotSet
	}
	return c.sandbox, nil
}

func (c *ExecutionContext) clone() *ExecutionContext {
	if c == nil {
		return &ExecutionContext{}
	}
	ret := *c
	ret.AllowedPaths = append([]string(nil), c.AllowedPaths...)
	ret.DeniedPaths = append([]string(nil), c.DeniedPaths...)
	return &ret
}

// ContextUpdate changes one aspect of an ExecutionContext.
type ContextUpdate func(*ExecutionContext)

func WithWorkspaceRoot(root string) ContextUpdate {
	return func(c *ExecutionContext) { c.WorkspaceRoot = root }
}

func WithAllowedPaths(paths ...string) ContextUpdate {
	return func(c *ExecutionContext) { c.AllowedPaths = paths }
}

func WithDeniedPaths(paths ...string) ContextUpdate {
	return func(c *ExecutionContext) { c.DeniedPaths = paths }
}

func WithDB(db *sql.DB) ContextUpdate {
	return func(c *ExecutionContext) { c.DB = db }
}

func WithFileStore(fs FileStore) ContextUpdate {
	return func(c *ExecutionContext) { c.FileStore = fs }
}

func WithAppID(id string) ContextUpdate {
	return func(c *ExecutionContext) { c.AppID = id }
}

func WithSessionID(id string) ContextUpdate {
	return func(c *ExecutionContext) { c.SessionID = id }
}

// NewExecutionContext applies updates to an empty context and builds its sandbox.
func NewExecutionContext(updates ...ContextUpdate) (*ExecutionContext, error) {
	return applyUpdates(nil, updates...)
}

func applyUpdates(base *ExecutionContext, updates ...ContextUpdate) (*ExecutionContext, error) {
	next := base.clone()
	for _, u := range updates {
		if u != nil {
			u(next)
		}
	}
	next.sandbox = nil
	if next.WorkspaceRoot != "" {
		sb, err := NewSandbox(next.WorkspaceRoot, next.AllowedPaths, next.DeniedPaths)
		if err != nil {
			return nil, errors.Wrap(err, "failed to set execution context")
		}
		next.sandbox = sb
		next.WorkspaceRoot = sb.Root()
	}
	return next, nil
}
