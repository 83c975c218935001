package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-go-golems/codesmith/pkg/events"
	"github.com/go-go-golems/codesmith/pkg/helpers"
	"github.com/go-go-golems/codesmith/pkg/inference/agent"
	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/inference/engine/factory"
	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/inference/tools/filestore"
	"github.com/go-go-golems/codesmith/pkg/inference/tools/imagegen"
	"github.com/go-go-golems/codesmith/pkg/inference/tools/workspace"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/openai"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/settings"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/types"
	"github.com/go-go-golems/codesmith/pkg/transcript"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// session bundles an agent with the resources opened for it.
type session struct {
	agent   *agent.Agent
	router  *events.EventRouter
	closers []func() error
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("codesmith: close failed")
		}
	}
}

// loadStepSettings reads the "ai" config section and applies the flag overrides on top.
func loadStepSettings() (*settings.StepSettings, error) {
	s := settings.NewStepSettings()
	if section := viper.GetStringMap("ai"); len(section) > 0 {
		if err := s.UpdateFromMap(section); err != nil {
			return nil, err
		}
	}

	if p := viper.GetString("provider"); p != "" {
		s.Chat.ApiType = helpers.ToPtr(types.ApiType(p))
	}
	if m := viper.GetString("model"); m != "" {
		s.Chat.Engine = helpers.ToPtr(m)
	}
	if k := viper.GetString("api-key"); k != "" {
		switch s.Provider() {
		case types.ApiTypeClaude:
			s.Claude.APIKey = helpers.ToPtr(k)
		default:
			s.OpenAI.APIKey = helpers.ToPtr(k)
		}
	}
	if k := firstNonEmpty(viper.GetString("anthropic-api-key"), os.Getenv("ANTHROPIC_API_KEY")); k != "" && s.Claude.APIKey == nil {
		s.Claude.APIKey = helpers.ToPtr(k)
	}
	if k := firstNonEmpty(viper.GetString("openai-api-key"), os.Getenv("OPENAI_API_KEY")); k != "" && s.OpenAI.APIKey == nil {
		s.OpenAI.APIKey = helpers.ToPtr(k)
	}
	if viper.GetBool("web-search") {
		s.Claude.WebSearch = true
	}
	return s, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func loopConfigFrom(s *settings.StepSettings) agent.LoopConfig {
	cfg := agent.DefaultLoopConfig().
		WithDryRun(viper.GetBool("dry-run")).
		WithVerify(!viper.GetBool("no-verify")).
		WithInference(s.InferenceConfig())
	if n := viper.GetInt("max-turns"); n > 0 {
		cfg = cfg.WithMaxTurns(n)
	}
	if n := viper.GetInt("max-tokens"); n > 0 {
		cfg = cfg.WithMaxTokens(n)
	}
	if s.Chat.Engine != nil {
		cfg = cfg.WithModel(*s.Chat.Engine)
	}
	if viper.GetBool("strict-server-tools") {
		cfg = cfg.WithStrictServerToolResults(true)
	}
	cfg = cfg.WithPacing(pacingFromConfig(cfg.Pacing))
	if s.Claude.WebSearch && s.Provider() == types.ApiTypeClaude {
		cfg = cfg.WithWebSearch(&engine.WebSearchConfig{MaxUses: s.Claude.WebSearchMaxUses})
	}
	return cfg
}

// pacingFromConfig applies the optional "pacing" config section over base.
func pacingFromConfig(base agent.PacingConfig) agent.PacingConfig {
	if viper.GetBool("no-pacing") {
		return agent.NoPacing()
	}
	p := base
	if viper.IsSet("pacing.chunk-size") {
		p = p.WithChunkSize(viper.GetInt("pacing.chunk-size"))
	}
	if viper.IsSet("pacing.chunk-delay") {
		p = p.WithChunkDelay(viper.GetDuration("pacing.chunk-delay"))
	}
	if viper.IsSet("pacing.thinking-to-reasoning") {
		p = p.WithThinkingToReasoning(viper.GetDuration("pacing.thinking-to-reasoning"))
	}
	if viper.IsSet("pacing.before-code-writing") {
		p = p.WithBeforeCodeWriting(viper.GetDuration("pacing.before-code-writing"))
	}
	return p
}

// disableTools removes the named tools so the model is never offered them.
func disableTools(reg tools.ToolRegistry, names []string) error {
	for _, name := range names {
		if err := reg.UnregisterTool(name); err != nil {
			return errors.Wrap(err, "disable tool")
		}
	}
	return nil
}

func openRecorder() (transcript.Recorder, func() error, error) {
	if dsn := viper.GetString("transcript-db"); dsn != "" {
		store, err := transcript.NewSQLiteStore(dsn)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	if dir := viper.GetString("transcript-dir"); dir != "" {
		store, err := transcript.NewYAMLDirStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
	return nil, nil, nil
}

// newSession builds the engine, tools, recorder and event router from the configuration.
// Events are printed to w.
func newSession(w io.Writer) (*session, error) {
	sess := &session{}
	ok := false
	defer func() {
		if !ok {
			sess.Close()
		}
	}()

	s, err := loadStepSettings()
	if err != nil {
		return nil, errors.Wrap(err, "load settings")
	}
	eng, err := factory.NewStandardEngineFactory().CreateEngine(s)
	if err != nil {
		return nil, errors.Wrap(err, "create engine")
	}

	root, err := filepath.Abs(viper.GetString("workspace"))
	if err != nil {
		return nil, errors.Wrap(err, "resolve workspace")
	}
	ctxUpdates := []tools.ContextUpdate{tools.WithWorkspaceRoot(root)}
	if id := viper.GetString("app-id"); id != "" {
		ctxUpdates = append(ctxUpdates, tools.WithAppID(id))
	}
	if allow := viper.GetStringSlice("allow"); len(allow) > 0 {
		ctxUpdates = append(ctxUpdates, tools.WithAllowedPaths(allow...))
	}
	if deny := viper.GetStringSlice("deny"); len(deny) > 0 {
		ctxUpdates = append(ctxUpdates, tools.WithDeniedPaths(deny...))
	}

	if dsn := viper.GetString("file-store-db"); dsn != "" {
		store, err := filestore.NewSQLiteStore(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "open file store")
		}
		sess.closers = append(sess.closers, store.Close)
		ctxUpdates = append(ctxUpdates, tools.WithFileStore(store))
	}

	var wsOpts []workspace.Option
	if dbPath := viper.GetString("sql-db"); dbPath != "" {
		db, err := sql.Open("sqlite3", dbPath)
		if err != nil {
			return nil, errors.Wrap(err, "open sql database")
		}
		sess.closers = append(sess.closers, db.Close)
		ctxUpdates = append(ctxUpdates, tools.WithDB(db))
		wsOpts = append(wsOpts, workspace.WithSQL(true))
	}
	reg := tools.NewInMemoryToolRegistry()
	if err := workspace.Register(reg, wsOpts...); err != nil {
		return nil, err
	}
	if viper.GetBool("images") {
		client, err := openai.MakeClient(s, "")
		if err != nil {
			return nil, errors.Wrap(err, "image generation")
		}
		var genOpts []imagegen.Option
		if s.OpenAI.ImageModel != "" {
			genOpts = append(genOpts, imagegen.WithModel(s.OpenAI.ImageModel))
		}
		def, err := imagegen.NewGenerator(client, genOpts...).Definition()
		if err != nil {
			return nil, err
		}
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}

	if err := disableTools(reg, viper.GetStringSlice("disable-tool")); err != nil {
		return nil, err
	}

	opts := []agent.Option{
		agent.WithClient(eng),
		agent.WithRegistry(reg),
		agent.WithLoopConfig(loopConfigFrom(s)),
		agent.WithContext(ctxUpdates...),
	}
	if path := viper.GetString("system-prompt"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read system prompt")
		}
		opts = append(opts, agent.WithSystemPrompt(string(b)))
	}
	rec, closeRec, err := openRecorder()
	if err != nil {
		return nil, errors.Wrap(err, "open transcript store")
	}
	if rec != nil {
		opts = append(opts, agent.WithRecorder(rec))
		if closeRec != nil {
			sess.closers = append(sess.closers, closeRec)
		}
	}

	sess.agent, err = agent.New(opts...)
	if err != nil {
		return nil, err
	}

	routerOpts := []events.EventRouterOption{}
	if viper.GetBool("verbose") {
		routerOpts = append(routerOpts, events.WithVerbose(true))
	}
	sess.router, err = events.NewEventRouter(routerOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create event router")
	}
	sess.closers = append(sess.closers, sess.router.Close)
	sess.router.AddHandler("printer", events.DefaultTopic, events.StepPrinterFunc(w, viper.GetBool("show-tool-inputs")))

	log.Debug().
		Str("provider", string(s.Provider())).
		Str("workspace", root).
		Int("tools", len(sess.agent.Tools())).
		Msg("codesmith: session ready")

	ok = true
	return sess, nil
}

// run starts the event router, waits until it is running and calls f. The router is
// stopped once f returns.
func (s *session) run(ctx context.Context, f func(ctx context.Context, sink events.EventSink) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var tap *engine.DiskTap
	if dir := viper.GetString("debug-tap"); dir != "" {
		var err error
		tap, err = engine.NewDiskTap(dir)
		if err != nil {
			return errors.Wrap(err, "create debug tap")
		}
		defer tap.Close()
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		select {
		case <-s.router.Running():
		case <-ctx.Done():
			return ctx.Err()
		}
		runCtx := ctx
		if tap != nil {
			runCtx = engine.WithDebugTap(ctx, tap)
		}
		return f(runCtx, s.router.Sink(events.DefaultTopic))
	})

	err := eg.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// the router stops with the cancellation that ends every run
		return nil
	}
	return err
}

func printMetrics(w io.Writer, a *agent.Agent) {
	if summary := a.MetricsSummary(); summary != "" {
		_, _ = fmt.Fprintln(w, summary)
	}
}
