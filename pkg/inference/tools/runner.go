package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Runner executes tool invocations one at a time against a registry. Executor failures
// never escape: they are turned into is_error results so the conversation can continue.
type Runner struct {
	registry ToolRegistry
	config   ToolConfig
	metrics  *Metrics

	mu      sync.RWMutex
	execCtx *ExecutionContext
	schemas map[string]*gojsonschema.Schema
}

type RunnerOption func(*Runner)

func WithToolConfig(cfg ToolConfig) RunnerOption {
	return func(r *Runner) { r.config = cfg }
}

// WithMetrics shares a metrics accumulator, e.g. between a runner and its replacement.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

func NewRunner(registry ToolRegistry, options ...RunnerOption) *Runner {
	if registry == nil {
		registry = NewInMemoryToolRegistry()
	}
	r := &Runner{
		registry: registry,
		config:   DefaultToolConfig(),
		metrics:  NewMetrics(),
		execCtx:  &ExecutionContext{},
		schemas:  map[string]*gojsonschema.Schema{},
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// SetContext applies updates to the current execution context. The previous context is
// kept if the update fails, e.g. because the workspace root does not exist.
func (r *Runner) SetContext(updates ...ContextUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := applyUpdates(r.execCtx, updates...)
	if err != nil {
		return err
	}
	r.execCtx = next
	log.Debug().
		Str("workspace", next.WorkspaceRoot).
		Str("app_id", next.AppID).
		Bool("db", next.DB != nil).
		Bool("file_store", next.FileStore != nil).
		Msg("tools: execution context updated")
	return nil
}

// Context returns the current execution context.
func (r *Runner) Context() *ExecutionContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.execCtx
}

// Definition looks up a registered tool.
func (r *Runner) Definition(name string) (*ToolDefinition, bool) {
	def, err := r.registry.GetTool(name)
	if err != nil {
		return nil, false
	}
	return def, true
}

// Tools returns the definitions offered to the model.
func (r *Runner) Tools() []ToolDefinition {
	return r.config.FilterTools(r.registry.ListTools())
}

// ExecuteAll runs invocations strictly in order and returns results in the same order.
func (r *Runner) ExecuteAll(ctx context.Context, invs []turns.ToolInvocation) []turns.ToolResult {
	results := make([]turns.ToolResult, 0, len(invs))
	for _, inv := range invs {
		results = append(results, r.Execute(ctx, inv))
	}
	return results
}

// Execute runs a single invocation.
func (r *Runner) Execute(ctx context.Context, inv turns.ToolInvocation) turns.ToolResult {
	start := time.Now()
	inputBytes := 0
	if b, err := json.Marshal(inv.Input); err == nil {
		inputBytes = len(b)
	}

	res := r.execute(ctx, inv)
	res.ToolUseID = inv.ID
	res.Content = truncate(res.Content, r.config.MaxResultBytes)

	d := time.Since(start)
	r.metrics.Record(inv.Name, inputBytes, res.Content, d, res.IsError)

	ev := log.Debug()
	if res.IsError {
		ev = log.Warn()
	}
	ev.Str("tool", inv.Name).
		Str("id", inv.ID).
		Dur("duration", d).
		Bool("is_error", res.IsError).
		Msg("tools: executed")
	return res
}

func (r *Runner) execute(ctx context.Context, inv turns.ToolInvocation) turns.ToolResult {
	def, err := r.registry.GetTool(inv.Name)
	if err != nil {
		return errorResult(fmt.Sprintf("Unknown tool: %s", inv.Name))
	}
	if !r.config.IsToolAllowed(inv.Name) {
		return errorResult(fmt.Sprintf("Tool not allowed: %s", inv.Name))
	}

	input := inv.Input
	if input == nil {
		input = map[string]any{}
	}

	if r.config.ValidateInputs {
		if err := r.validate(def, input); err != nil {
			return errorResult(fmt.Sprintf("Invalid input for %s: %s", inv.Name, err.Error()))
		}
	}

	out, err := r.safeExecute(ctx, def, input)
	if err != nil {
		return errorResult(fmt.Sprintf("Error executing %s: %s", inv.Name, err.Error()))
	}
	return turns.ToolResult{
		Content:  out.Content,
		IsError:  out.IsError,
		Metadata: out.Metadata,
	}
}

func (r *Runner) safeExecute(ctx context.Context, def *ToolDefinition, input map[string]any) (out Output, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Str("tool", def.Name).
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("tools: executor panicked")
			err = errors.Errorf("panic: %v", p)
		}
	}()
	return def.Executor.Execute(ctx, input, r.Context())
}

func (r *Runner) validate(def *ToolDefinition, input map[string]any) error {
	if def.Parameters == nil {
		return nil
	}
	schema, err := r.compiledSchema(def)
	if err != nil {
		// a broken schema is a registration bug, not the model's fault
		log.Warn().Err(err).Str("tool", def.Name).Msg("tools: skipping input validation")
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return errors.Wrap(err, "failed to validate input")
	}
	if result.Valid() {
		return nil
	}
	descs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		descs = append(descs, e.String())
	}
	return errors.New(strings.Join(descs, "; "))
}

func (r *Runner) compiledSchema(def *ToolDefinition) (*gojsonschema.Schema, error) {
	r.mu.RLock()
	s, ok := r.schemas[def.Name]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	raw, err := def.SchemaJSON()
	if err != nil {
		return nil, err
	}
	s, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "compile schema for %s", def.Name)
	}
	r.mu.Lock()
	r.schemas[def.Name] = s
	r.mu.Unlock()
	return s, nil
}

// Metrics returns a snapshot of the accumulated tool metrics.
func (r *Runner) Metrics() MetricsSnapshot {
	return r.metrics.Snapshot()
}

func (r *Runner) MetricsSummary() string {
	return r.metrics.Summary()
}

// ClearCache resets metrics and compiled schemas.
func (r *Runner) ClearCache() {
	r.metrics.Reset()
	r.mu.Lock()
	r.schemas = map[string]*gojsonschema.Schema{}
	r.mu.Unlock()
}

func errorResult(msg string) turns.ToolResult {
	return turns.ToolResult{Content: msg, IsError: true}
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	// do not split a UTF-8 sequence
	for cut > 0 && cut < len(s) && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n... [truncated %d bytes]", len(s)-cut)
}
