package agent

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-go-golems/codesmith/pkg/events"
	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/inference/refcheck"
	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/transcript"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxEventResultBytes = 2000

// requestLoop holds the state of one ProcessRequest call.
type requestLoop struct {
	a            *Agent
	cfg          LoopConfig
	em           *emitter
	sm           *stateMachine
	system       string
	toolDefs     []tools.ToolDefinition
	transcriptID string

	turns         int
	usage         events.Usage
	// pending holds the tool calls of the last assistant message until their results are stored.
	pending       []turns.ToolInvocation
	toolsRan      bool
	partial       []string
	thinkingStart time.Time

	// created holds paths created during this request, changed every path written.
	created    map[string]bool
	changed    []string
	changedSet map[string]bool
}

func (l *requestLoop) run(ctx context.Context) (_ string, err error) {
	defer func() {
		if err != nil && len(l.pending) > 0 {
			l.abandonPending(err)
		}
	}()

	for l.turns < l.cfg.MaxTurns {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if cur := l.sm.Current(); cur != StateAwaitingModel {
			return "", errors.Errorf("model call in state %s", cur)
		}

		msgs := l.a.history.Messages()
		if err := turns.ValidateHistory(msgs, l.cfg.Validation); err != nil {
			return "", errors.Wrap(err, "refusing to call model")
		}

		resp, err := l.callModel(ctx, msgs)
		l.turns++
		if err != nil {
			return "", errors.Wrapf(err, "model call %d failed", l.turns)
		}
		l.usage.Add(resp.Usage)

		blocks := resp.Content
		if len(blocks) == 0 {
			log.Warn().Int("turn", l.turns).Str("stop_reason", string(resp.StopReason)).Msg("agent: model returned no content, storing placeholder")
			l.em.Warning("model returned an empty response")
			blocks = []turns.Block{turns.NewTextBlock(turns.PlaceholderText)}
		}

		guarded := l.a.guard.Apply(blocks)
		l.a.history.Append(turns.NewAssistantMessage(guarded.Blocks...))
		invs := guarded.Invocations
		l.pending = invs
		text := turns.TextOf(blocks)
		l.record(ctx, string(turns.RoleAssistant), text, map[string]any{
			"turn":        l.turns,
			"tool_calls":  len(invs),
			"stop_reason": string(resp.StopReason),
			"injected":    len(guarded.Injected),
		})

		if text != "" || len(invs) == 0 {
			// engines that do not stream still move the state machine
			if err := l.enterTextState(); err != nil {
				return "", err
			}
		}
		if strings.TrimSpace(text) != "" {
			l.partial = append(l.partial, text)
		}

		log.Debug().
			Int("turn", l.turns).
			Str("state", string(l.sm.Current())).
			Int("tool_calls", len(invs)).
			Int("injected_reads", len(guarded.Injected)).
			Msg("agent: model turn")

		if len(invs) == 0 {
			return l.finish(ctx, text)
		}

		if err := l.beforeTools(ctx, text); err != nil {
			return "", err
		}
		results := l.executeTools(ctx, invs)
		l.a.history.Append(turns.NewToolResultsMessage(results))
		l.pending = nil
		l.recordResults(ctx, invs, results)
		l.toolsRan = true
		if err := l.sm.To(StateAwaitingModel); err != nil {
			return "", err
		}
	}

	log.Warn().Int("max_turns", l.cfg.MaxTurns).Msg("agent: maximum turns reached, returning partial response")
	l.em.Warning(fmt.Sprintf("stopped after %d turns", l.cfg.MaxTurns))
	if err := l.sm.To(StateDone); err != nil {
		return "", err
	}
	l.em.Phase(events.PhaseCompleted)
	return strings.Join(l.partial, "\n\n"), nil
}

// abandonPending stores an error result for every tool call that never got one, so the
// history stays valid for the next request.
func (l *requestLoop) abandonPending(cause error) {
	results := make([]turns.ToolResult, 0, len(l.pending))
	for _, inv := range l.pending {
		results = append(results, turns.ToolResult{
			ToolUseID: inv.ID,
			Content:   "not executed: " + cause.Error(),
			IsError:   true,
		})
	}
	log.Debug().Int("tool_calls", len(results)).Err(cause).Msg("agent: storing results for abandoned tool calls")
	l.a.history.Append(turns.NewToolResultsMessage(results))
	l.pending = nil
}

func (l *requestLoop) callModel(ctx context.Context, msgs []turns.Message) (*engine.Response, error) {
	req := &engine.Request{
		Model:      l.cfg.Model,
		System:     l.system,
		Messages:   msgs,
		Tools:      l.toolDefs,
		ToolChoice: l.cfg.ToolChoice,
		MaxTokens:  l.cfg.MaxTokens,
		Inference:  l.cfg.Inference,
		WebSearch:  l.cfg.WebSearch,
	}
	onDelta := func(d engine.Delta) {
		if err := l.enterTextState(); err != nil {
			return
		}
		if d.Kind == engine.DeltaThinking {
			// thinking after a tool round belongs to the phase already shown
			l.em.publish(events.NewReasoningChunkEvent(l.em.metadata(), l.em.phase, d.Text))
		}
	}
	return l.a.engine.RunInference(ctx, req, onDelta)
}

// enterTextState moves out of awaiting_model on the first output of a turn: thinking
// before any tool ran in this request, summarizing after.
func (l *requestLoop) enterTextState() error {
	if l.sm.Current() != StateAwaitingModel {
		return nil
	}
	if l.toolsRan {
		return l.sm.To(StateSummarizing)
	}
	if err := l.sm.To(StateThinking); err != nil {
		return err
	}
	l.thinkingStart = time.Now()
	l.em.Phase(events.PhaseThinking)
	return nil
}

func (l *requestLoop) beforeTools(ctx context.Context, text string) error {
	pacing := l.cfg.Pacing
	switch l.sm.Current() {
	case StateThinking:
		l.em.publish(events.NewThinkingCompleteEvent(l.em.metadata(), time.Since(l.thinkingStart)))
		if err := sleep(ctx, pacing.ThinkingToReasoning); err != nil {
			return err
		}
		if err := l.sm.To(StateReasoning); err != nil {
			return err
		}
		l.em.Phase(events.PhaseReasoning)
		if err := l.em.Chunks(ctx, events.PhaseReasoning, text, pacing); err != nil {
			return err
		}
	case StateSummarizing:
		// narration between tool rounds
		if err := l.em.Chunks(ctx, events.PhaseCodeWriting, text, pacing); err != nil {
			return err
		}
	case StateAwaitingModel, StateReasoning, StateExecutingTools, StateDone:
	}

	if err := l.sm.To(StateExecutingTools); err != nil {
		return err
	}
	if err := sleep(ctx, pacing.BeforeCodeWriting); err != nil {
		return err
	}
	l.em.Phase(events.PhaseCodeWriting)
	return nil
}

func (l *requestLoop) finish(ctx context.Context, text string) (string, error) {
	final := text
	switch l.sm.Current() {
	case StateThinking:
		l.em.TextDelta(text)
	case StateSummarizing:
		l.em.Phase(events.PhaseBuilding)
		if err := l.em.Chunks(ctx, events.PhaseBuilding, text, l.cfg.Pacing); err != nil {
			return "", err
		}
	case StateAwaitingModel, StateReasoning, StateExecutingTools, StateDone:
	}
	if err := l.sm.To(StateDone); err != nil {
		return "", err
	}

	if l.toolsRan && !l.cfg.DryRun && l.cfg.Verify && l.a.verifier != nil && len(l.changed) > 0 {
		if summary := l.verify(ctx); summary != "" {
			if final != "" {
				final += "\n\n"
			}
			final += summary
			l.em.TextDelta(summary)
		}
	}
	l.em.Phase(events.PhaseCompleted)
	return final, nil
}

func (l *requestLoop) verify(ctx context.Context) string {
	sb, err := l.a.runner.Context().Sandbox()
	if err != nil {
		log.Debug().Err(err).Msg("agent: no workspace, skipping verification")
		return ""
	}
	return l.a.verifier.Verify(ctx, sb.Root(), l.changed)
}

func (l *requestLoop) executeTools(ctx context.Context, invs []turns.ToolInvocation) []turns.ToolResult {
	results := make([]turns.ToolResult, 0, len(invs))
	var written []string

	for _, inv := range invs {
		if err := ctx.Err(); err != nil {
			results = append(results, turns.ToolResult{ToolUseID: inv.ID, Content: "not executed: " + err.Error(), IsError: true})
			continue
		}
		def, _ := l.a.runner.Definition(inv.Name)
		kind := tools.ToolKindOther
		target := ""
		if def != nil {
			kind = def.Kind
			target = def.TargetPath(inv.Input)
		}

		var res turns.ToolResult
		switch {
		case l.cfg.DryRun:
			l.em.publish(events.NewToolStartEvent(l.em.metadata(), inv.ID, inv.Name, inv.Input))
			res = dryRunResult(inv)
			l.em.publish(events.NewToolEndEvent(l.em.metadata(), inv.ID, inv.Name, false, res.Content))

		case target != "" && kind.Mutates():
			rel := l.relPath(target)
			creating := l.created[rel] ||
				kind == tools.ToolKindCreate ||
				(kind == tools.ToolKindWrite && !l.exists(target))
			start, end := events.FileOpEditing, events.FileOpEdited
			if creating {
				start, end = events.FileOpCreating, events.FileOpCreated
			}
			l.em.publish(events.NewFileOperationEvent(l.em.metadata(), start, rel, inv.Name, inv.ID, false))
			res = l.a.runner.Execute(ctx, inv)
			l.em.publish(events.NewFileOperationEvent(l.em.metadata(), end, rel, inv.Name, inv.ID, res.IsError))

			if !res.IsError {
				if kind == tools.ToolKindDelete {
					delete(l.created, rel)
					l.unmarkChanged(rel)
				} else {
					if creating {
						l.created[rel] = true
					}
					l.markChanged(rel)
					written = append(written, rel)
				}
			}

		default:
			l.em.publish(events.NewToolStartEvent(l.em.metadata(), inv.ID, inv.Name, inv.Input))
			res = l.a.runner.Execute(ctx, inv)
			l.em.publish(events.NewToolEndEvent(l.em.metadata(), inv.ID, inv.Name, res.IsError, truncate(res.Content, maxEventResultBytes)))
		}
		results = append(results, res)
	}

	if l.cfg.CheckReferences && !l.cfg.DryRun && len(written) > 0 && len(results) > 0 {
		if warning := l.checkReferences(ctx, written); warning != "" {
			last := &results[len(results)-1]
			last.Content += warning
			l.em.Warning(strings.TrimSpace(warning))
		}
	}
	return results
}

func dryRunResult(inv turns.ToolInvocation) turns.ToolResult {
	keys := make([]string, 0, len(inv.Input))
	for k := range inv.Input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return turns.ToolResult{
		ToolUseID: inv.ID,
		Content: fmt.Sprintf("[dry run] %s was not executed (arguments: %s). Assume it succeeded.",
			inv.Name, strings.Join(keys, ", ")),
		Metadata: map[string]any{"dry_run": true},
	}
}

// checkReferences scans the files written in this turn and returns a warning for
// references that resolve neither to a file created in this request nor to a file on disk.
func (l *requestLoop) checkReferences(ctx context.Context, written []string) string {
	sb, err := l.a.runner.Context().Sandbox()
	if err != nil {
		return ""
	}
	files := map[string][]byte{}
	for _, rel := range written {
		abs, _, err := sb.Resolve(rel)
		if err != nil {
			continue
		}
		b, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		files[rel] = b
	}

	var missing []refcheck.Reference
	for _, ref := range l.a.refs.Check(ctx, files, l.created) {
		if !l.anyExists(l.a.refs.Candidates(ref)) {
			missing = append(missing, ref)
		}
	}
	if len(missing) > 0 {
		log.Debug().Int("missing", len(missing)).Msg("agent: missing references")
	}
	return refcheck.FormatWarning(missing)
}

func (l *requestLoop) anyExists(paths []string) bool {
	for _, p := range paths {
		if l.exists(p) {
			return true
		}
	}
	return false
}

func (l *requestLoop) exists(p string) bool {
	sb, err := l.a.runner.Context().Sandbox()
	if err != nil {
		return false
	}
	abs, _, err := sb.Resolve(p)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}

// relPath normalizes a tool path to the workspace-relative form used for bookkeeping.
func (l *requestLoop) relPath(p string) string {
	if sb, err := l.a.runner.Context().Sandbox(); err == nil {
		if _, rel, err := sb.Resolve(p); err == nil && rel != "" {
			return rel
		}
	}
	return strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "./")
}

func (l *requestLoop) markChanged(rel string) {
	if l.changedSet[rel] {
		return
	}
	l.changedSet[rel] = true
	l.changed = append(l.changed, rel)
}

func (l *requestLoop) unmarkChanged(rel string) {
	if !l.changedSet[rel] {
		return
	}
	delete(l.changedSet, rel)
	for i, p := range l.changed {
		if p == rel {
			l.changed = append(l.changed[:i], l.changed[i+1:]...)
			break
		}
	}
}

func (l *requestLoop) record(ctx context.Context, role, content string, metadata map[string]any) {
	if l.a.recorder == nil || l.transcriptID == "" {
		return
	}
	idx, err := l.a.recorder.Append(ctx, l.transcriptID, transcript.Entry{
		Timestamp: time.Now(),
		Role:      role,
		Content:   content,
		Metadata:  metadata,
	})
	if err != nil {
		log.Warn().Err(err).Str("transcript", l.transcriptID).Msg("agent: transcript append failed")
		l.em.Warning("transcript append failed: " + err.Error())
		return
	}
	l.em.publish(events.NewMessagePersistedEvent(l.em.metadata(), l.transcriptID, role, idx))
}

func (l *requestLoop) recordResults(ctx context.Context, invs []turns.ToolInvocation, results []turns.ToolResult) {
	var sb strings.Builder
	errorsCount := 0
	for i, r := range results {
		name := ""
		if i < len(invs) {
			name = invs[i].Name
		}
		status := "ok"
		if r.IsError {
			status = "error"
			errorsCount++
		}
		fmt.Fprintf(&sb, "[%s %s] %s\n", name, status, truncate(r.Content, 500))
	}
	l.record(ctx, "tool", strings.TrimRight(sb.String(), "\n"), map[string]any{
		"turn":    l.turns,
		"results": len(results),
		"errors":  errorsCount,
	})
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
