package agent

import (
	"context"
	"time"

	"github.com/go-go-golems/codesmith/pkg/events"
	"github.com/google/uuid"
)

// emitter stamps and publishes the events of one request to the sinks on its context.
type emitter struct {
	ctx       context.Context
	sessionID string
	requestID string
	seq       int64
	phase     events.Phase
}

func (e *emitter) metadata() events.EventMetadata {
	e.seq++
	return events.EventMetadata{
		ID:        uuid.New(),
		SessionID: e.sessionID,
		RequestID: e.requestID,
		Seq:       e.seq,
		Time:      time.Now(),
	}
}

func (e *emitter) publish(ev events.Event) {
	events.PublishEventToContext(e.ctx, ev)
}

func (e *emitter) Phase(p events.Phase) {
	e.phase = p
	e.publish(events.NewPhaseChangeEvent(e.metadata(), p))
}

func (e *emitter) TextDelta(s string) {
	if s == "" {
		return
	}
	e.publish(events.NewTextDeltaEvent(e.metadata(), s))
}

func (e *emitter) Warning(msg string) {
	e.publish(events.NewWarningEvent(e.metadata(), msg))
}

// Chunks replays text in pieces of at most p.ChunkSize runes, each followed by p.ChunkDelay.
func (e *emitter) Chunks(ctx context.Context, phase events.Phase, text string, p PacingConfig) error {
	for _, c := range chunkRunes(text, p.ChunkSize) {
		e.publish(events.NewReasoningChunkEvent(e.metadata(), phase, c))
		if err := sleep(ctx, p.ChunkDelay); err != nil {
			return err
		}
	}
	return nil
}

func chunkRunes(s string, size int) []string {
	if s == "" {
		return nil
	}
	if size <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	out := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
