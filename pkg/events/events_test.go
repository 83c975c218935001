package events

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func meta(seq int64) EventMetadata {
	return EventMetadata{ID: uuid.New(), SessionID: "s1", RequestID: "r1", Seq: seq, Time: time.Now()}
}

func TestChannelSink_PreservesOrderAndCloses(t *testing.T) {
	sink := NewChannelSink(8, false)
	require.NoError(t, sink.PublishEvent(NewPhaseChangeEvent(meta(1), PhaseThinking)))
	require.NoError(t, sink.PublishEvent(NewTextDeltaEvent(meta(2), "hi")))
	sink.Close()
	sink.Close()

	var got []EventType
	for ev := range sink.Events() {
		got = append(got, ev.Type())
	}
	assert.Equal(t, []EventType{EventTypePhaseChange, EventTypeTextDelta}, got)
	assert.ErrorIs(t, sink.PublishEvent(NewTextDeltaEvent(meta(3), "late")), ErrSinkClosed)
}

func TestChannelSink_DropWhenFull(t *testing.T) {
	sink := NewChannelSink(1, true)
	require.NoError(t, sink.PublishEvent(NewTextDeltaEvent(meta(1), "a")))
	require.NoError(t, sink.PublishEvent(NewTextDeltaEvent(meta(2), "b")))
	assert.Equal(t, 1, sink.Dropped())
	sink.Close()
}

func TestNewEventFromJSON_RoundTrip(t *testing.T) {
	orig := NewFileOperationEvent(meta(4), FileOpEditing, "src/App.tsx", "edit_file", "tu_1", false)
	b, err := json.Marshal(orig)
	require.NoError(t, err)

	ev, err := NewEventFromJSON(b)
	require.NoError(t, err)
	fo, ok := ev.(*EventFileOperation)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, FileOpEditing, fo.Operation)
	assert.Equal(t, "src/App.tsx", fo.Path)
	assert.Equal(t, int64(4), fo.Metadata().Seq)
	assert.Equal(t, b, fo.Payload())

	tc := NewThinkingCompleteEvent(meta(5), 1500*time.Millisecond)
	b, err = json.Marshal(tc)
	require.NoError(t, err)
	ev, err = NewEventFromJSON(b)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, ev.(*EventThinkingComplete).Duration())

	_, err = NewEventFromJSON([]byte(`{"type":"nope"}`))
	assert.Error(t, err)
}

type capturingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *capturingSink) PublishEvent(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func TestPublishEventToContext(t *testing.T) {
	a, b := &capturingSink{}, &capturingSink{}
	ctx := WithEventSinks(context.Background(), a)
	ctx = WithEventSinks(ctx, b, nil)

	PublishEventToContext(ctx, NewWarningEvent(meta(1), "careful"))
	PublishEventToContext(context.Background(), NewWarningEvent(meta(2), "nobody listens"))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestPrinter_RendersPhasesAndText(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)
	require.NoError(t, p.PrintEvent(NewPhaseChangeEvent(meta(1), PhaseReasoning)))
	require.NoError(t, p.PrintEvent(NewReasoningChunkEvent(meta(2), PhaseReasoning, "let me ")))
	require.NoError(t, p.PrintEvent(NewReasoningChunkEvent(meta(3), PhaseReasoning, "look")))
	require.NoError(t, p.PrintEvent(NewFileOperationEvent(meta(4), FileOpCreated, "index.html", "create_file", "t", false)))

	assert.Equal(t, "== reasoning\nlet me look\n   created index.html\n", buf.String())
}

func TestEventRouter_DeliversToHandler(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)

	var (
		mu  sync.Mutex
		got []EventType
	)
	done := make(chan struct{})
	router.AddEventHandler("collect", DefaultTopic, func(e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Type())
		if e.Type() == EventTypeRequestComplete {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- router.Run(ctx) }()
	<-router.Running()

	sink := router.Sink(DefaultTopic)
	require.NoError(t, sink.PublishEvent(NewPhaseChangeEvent(meta(1), PhaseBuilding)))
	require.NoError(t, sink.PublishEvent(NewRequestCompleteEvent(meta(2), Usage{InputTokens: 3}, 1)))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for events")
	}
	require.NoError(t, router.Close())
	cancel()
	<-runDone

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventType{EventTypePhaseChange, EventTypeRequestComplete}, got)
}
