// Package agent runs the coding agent turn loop: it alternates model calls and tool
// execution until the model answers without tool calls, and streams phase and progress
// events to the sinks attached to the request context.
package agent

import (
	"context"
	"strings"
	"sync"

	"github.com/go-go-golems/codesmith/pkg/events"
	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/inference/readguard"
	"github.com/go-go-golems/codesmith/pkg/inference/refcheck"
	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/inference/tools/workspace"
	"github.com/go-go-golems/codesmith/pkg/inference/verify"
	"github.com/go-go-golems/codesmith/pkg/prompts"
	"github.com/go-go-golems/codesmith/pkg/transcript"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/lithammer/shortuuid/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoEngine = errors.New("agent: no engine configured")
	// ErrBusy is returned when ProcessRequest is called while another request is running.
	ErrBusy = errors.New("agent: a request is already in progress")
)

// Agent owns the conversation of one session. It is not meant to be shared between sessions.
type Agent struct {
	engine   engine.Engine
	registry tools.ToolRegistry
	runner   *tools.Runner
	guard    *readguard.Guard
	refs     *refcheck.Checker
	verifier *verify.Verifier
	recorder transcript.Recorder

	history   *turns.History
	config    LoopConfig
	toolCfg   tools.ToolConfig
	prompt    string
	sessionID string

	pendingContext []tools.ContextUpdate

	mu sync.Mutex
}

type Option func(*Agent) error

// WithClient sets the model client.
func WithClient(e engine.Engine) Option {
	return func(a *Agent) error {
		a.engine = e
		return nil
	}
}

// WithRegistry replaces the default workspace tool set.
func WithRegistry(reg tools.ToolRegistry) Option {
	return func(a *Agent) error {
		a.registry = reg
		return nil
	}
}

func WithLoopConfig(cfg LoopConfig) Option {
	return func(a *Agent) error {
		a.config = cfg
		return nil
	}
}

func WithToolConfig(cfg tools.ToolConfig) Option {
	return func(a *Agent) error {
		a.toolCfg = cfg
		return nil
	}
}

func WithRecorder(r transcript.Recorder) Option {
	return func(a *Agent) error {
		a.recorder = r
		return nil
	}
}

// WithVerifier overrides the verifier. Passing nil disables verification.
func WithVerifier(v *verify.Verifier) Option {
	return func(a *Agent) error {
		a.verifier = v
		return nil
	}
}

func WithReferenceChecker(c *refcheck.Checker) Option {
	return func(a *Agent) error {
		if c == nil {
			return errors.New("reference checker cannot be nil")
		}
		a.refs = c
		return nil
	}
}

// WithSystemPrompt sets the system prompt template, rendered with prompts.Data.
func WithSystemPrompt(tpl string) Option {
	return func(a *Agent) error {
		a.prompt = tpl
		return nil
	}
}

func WithSessionID(id string) Option {
	return func(a *Agent) error {
		a.sessionID = id
		return nil
	}
}

// WithContext queues execution context updates applied when the agent is built.
func WithContext(updates ...tools.ContextUpdate) Option {
	return func(a *Agent) error {
		a.pendingContext = append(a.pendingContext, updates...)
		return nil
	}
}

func New(options ...Option) (*Agent, error) {
	a := &Agent{
		history:   turns.NewHistory(),
		config:    DefaultLoopConfig(),
		toolCfg:   tools.DefaultToolConfig(),
		refs:      refcheck.New(),
		verifier:  verify.New(),
		sessionID: shortuuid.New(),
	}
	for _, opt := range options {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.engine == nil {
		return nil, ErrNoEngine
	}
	if err := a.config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid loop config")
	}
	if a.registry == nil {
		reg := tools.NewInMemoryToolRegistry()
		if err := workspace.Register(reg); err != nil {
			return nil, errors.Wrap(err, "register workspace tools")
		}
		a.registry = reg
	}

	// the agent keeps its own copy so a registry shared between sessions can change
	a.runner = tools.NewRunner(a.registry.Clone(), tools.WithToolConfig(a.toolCfg))
	a.guard = readguard.New(a.runner.Definition,
		readguard.WithReadTool(workspace.ReadFileName, "path"),
		readguard.WithAnchorArg(workspace.AnchorArg))
	updates := append([]tools.ContextUpdate{tools.WithSessionID(a.sessionID)}, a.pendingContext...)
	a.pendingContext = nil
	if err := a.runner.SetContext(updates...); err != nil {
		return nil, errors.Wrap(err, "set execution context")
	}
	return a, nil
}

// SetContext updates the execution context shared by all tool calls.
func (a *Agent) SetContext(updates ...tools.ContextUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runner.SetContext(updates...)
}

func (a *Agent) SessionID() string {
	return a.sessionID
}

func (a *Agent) Config() LoopConfig {
	return a.config
}

// Tools returns the tool definitions offered to the model.
func (a *Agent) Tools() []tools.ToolDefinition {
	return a.runner.Tools()
}

// History returns a deep copy of the conversation.
func (a *Agent) History() []turns.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history.Clone().Messages()
}

// LoadHistory replaces the conversation after validating it.
func (a *Agent) LoadHistory(msgs []turns.Message) error {
	if err := turns.ValidateHistory(msgs, a.config.Validation); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = turns.NewHistory(msgs...).Clone()
	return nil
}

func (a *Agent) ResetHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history.Reset()
}

func (a *Agent) Metrics() tools.MetricsSnapshot {
	return a.runner.Metrics()
}

func (a *Agent) MetricsSummary() string {
	return a.runner.MetricsSummary()
}

// ClearCache resets tool metrics and cached tool schemas.
func (a *Agent) ClearCache() {
	a.runner.ClearCache()
}

// ProcessRequest runs the turn loop for one user message and returns the final answer.
// Events go to sinks and to any sinks already attached to ctx.
func (a *Agent) ProcessRequest(ctx context.Context, message string, sinks ...events.EventSink) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("agent: empty message")
	}
	if !a.mu.TryLock() {
		return "", ErrBusy
	}
	defer a.mu.Unlock()

	ctx = events.WithEventSinks(ctx, sinks...)
	em := &emitter{ctx: ctx, sessionID: a.sessionID, requestID: shortuuid.New()}

	system, err := a.renderSystemPrompt()
	if err != nil {
		return "", err
	}

	l := &requestLoop{
		a:          a,
		cfg:        a.config,
		em:         em,
		sm:         newStateMachine(),
		system:     system,
		toolDefs:   a.runner.Tools(),
		created:    map[string]bool{},
		changedSet: map[string]bool{},
	}

	if a.recorder != nil {
		id, err := a.recorder.Start(ctx, a.sessionID, map[string]any{
			"request_id": em.requestID,
			"model":      a.config.Model,
			"dry_run":    a.config.DryRun,
		})
		if err != nil {
			log.Warn().Err(err).Msg("agent: could not start transcript")
			em.Warning("transcript could not be started: " + err.Error())
		} else {
			l.transcriptID = id
		}
	}

	a.history.Append(turns.NewUserMessage(message))
	l.record(ctx, string(turns.RoleUser), message, nil)

	log.Info().
		Str("session", a.sessionID).
		Str("request", em.requestID).
		Int("history", a.history.Len()).
		Bool("dry_run", a.config.DryRun).
		Msg("agent: processing request")

	final, runErr := l.run(ctx)

	if l.transcriptID != "" {
		text := final
		if runErr != nil {
			text = "error: " + runErr.Error()
		}
		if err := a.recorder.Finalize(context.WithoutCancel(ctx), l.transcriptID, text); err != nil {
			log.Warn().Err(err).Str("transcript", l.transcriptID).Msg("agent: could not finalize transcript")
		}
	}

	em.publish(events.NewRequestCompleteEvent(em.metadata(), l.usage, l.turns))
	log.Info().
		Str("request", em.requestID).
		Int("turns", l.turns).
		Int("input_tokens", l.usage.InputTokens).
		Int("output_tokens", l.usage.OutputTokens).
		Strs("states", statesToStrings(l.sm.History())).
		Err(runErr).
		Msg("agent: request finished")

	if runErr != nil {
		return "", runErr
	}
	return final, nil
}

func (a *Agent) renderSystemPrompt() (string, error) {
	execCtx := a.runner.Context()
	return prompts.Render(a.prompt, prompts.Data{
		AppID:         execCtx.AppID,
		WorkspaceRoot: execCtx.WorkspaceRoot,
		Tools:         a.runner.Tools(),
		WebSearch:     a.config.WebSearch != nil,
	})
}

func statesToStrings(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
