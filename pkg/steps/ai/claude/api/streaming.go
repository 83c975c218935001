package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type StreamingEventType string

const (
	PingType              StreamingEventType = "ping"
	MessageStartType      StreamingEventType = "message_start"
	ContentBlockStartType StreamingEventType = "content_block_start"
	ContentBlockDeltaType StreamingEventType = "content_block_delta"
	ContentBlockStopType  StreamingEventType = "content_block_stop"
	MessageDeltaType      StreamingEventType = "message_delta"
	MessageStopType       StreamingEventType = "message_stop"
	ErrorType             StreamingEventType = "error"
)

type StreamingDeltaType string

const (
	TextDeltaType      StreamingDeltaType = "text_delta"
	InputJSONDeltaType StreamingDeltaType = "input_json_delta"
	ThinkingDeltaType  StreamingDeltaType = "thinking_delta"
	SignatureDeltaType StreamingDeltaType = "signature_delta"
	CitationsDeltaType StreamingDeltaType = "citations_delta"
)

// StreamErrorType marks errors produced locally while reading the stream.
const StreamErrorType = "stream_error"

type StreamingEvent struct {
	Type         StreamingEventType `json:"type"`
	Message      *MessageResponse   `json:"message,omitempty"`
	Delta        *Delta             `json:"delta,omitempty"`
	Error        *Error             `json:"error,omitempty"`
	Index        int                `json:"index,omitempty"`
	Usage        *Usage             `json:"usage,omitempty"`
	ContentBlock *ContentBlock      `json:"content_block,omitempty"`
}

func (s StreamingEvent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(s.Type))

	if s.Message != nil {
		e.Object("message", s.Message)
	}
	if s.Delta != nil {
		e.Object("delta", s.Delta)
	}
	if s.Error != nil {
		e.Object("error", s.Error)
	}
	if s.Index != 0 {
		e.Int("index", s.Index)
	}
	if s.Usage != nil {
		e.Object("usage", s.Usage)
	}
	if s.ContentBlock != nil {
		e.Object("content_block", s.ContentBlock)
	}
}

var _ zerolog.LogObjectMarshaler = StreamingEvent{}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Delta struct {
	Type         StreamingDeltaType `json:"type"`
	Text         string             `json:"text,omitempty"`
	PartialJSON  string             `json:"partial_json,omitempty"`
	Thinking     string             `json:"thinking,omitempty"`
	Signature    string             `json:"signature,omitempty"`
	Citation     json.RawMessage    `json:"citation,omitempty"`
	StopReason   string             `json:"stop_reason,omitempty"`
	StopSequence string             `json:"stop_sequence,omitempty"`
}

func (err Error) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", err.Type)
	e.Str("message", err.Message)
}

func (d Delta) MarshalZerologObject(e *zerolog.Event) {
	if d.Type != "" {
		e.Str("type", string(d.Type))
	}
	if d.Text != "" {
		e.Str("text", d.Text)
	}
	if d.PartialJSON != "" {
		e.Str("partial_json", d.PartialJSON)
	}
	if d.Thinking != "" {
		e.Int("thinking_len", len(d.Thinking))
	}
	if d.StopReason != "" {
		e.Str("stop_reason", d.StopReason)
	}
	if d.StopSequence != "" {
		e.Str("stop_sequence", d.StopSequence)
	}
}

// streamEvents reads SSE events from resp until EOF and sends them on events, which it
// closes when done. A read error is delivered as a final ErrorType event.
func streamEvents(ctx context.Context, resp *http.Response, events chan<- StreamingEvent) {
	defer close(events)
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	tap, _ := engine.DebugTapFrom(ctx)
	send := func(event StreamingEvent) bool {
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			log.Debug().Msg("claude: context cancelled, stopping stream")
			return false
		}
	}

	reader := bufio.NewReader(resp.Body)
	var eventLines [][]byte
	eventCount := 0
	flush := func() bool {
		if len(eventLines) == 0 {
			return true
		}
		name, data := splitSSEEvent(eventLines)
		eventLines = eventLines[:0]
		if tap != nil {
			tap.OnSSE(name, data)
		}
		var event StreamingEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Debug().Err(err).Str("event", name).Msg("claude: failed to parse SSE event")
			return true
		}
		eventCount++
		log.Trace().Int("event_number", eventCount).Object("event", event).Msg("claude: streaming event")
		return send(event)
	}

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && len(bytes.TrimSpace(line)) > 0 {
			eventLines = append(eventLines, line)
		} else if len(line) > 0 {
			// an empty line terminates an event
			if !flush() {
				return
			}
		}
		if err != nil {
			if !flush() {
				return
			}
			if err == io.EOF || ctx.Err() != nil {
				log.Debug().Int("total_events", eventCount).Msg("claude: stream finished")
				return
			}
			log.Warn().Err(err).Msg("claude: error reading stream")
			send(StreamingEvent{Type: ErrorType, Error: &Error{Type: StreamErrorType, Message: err.Error()}})
			return
		}
	}
}

// splitSSEEvent returns the event name and the joined data lines of one SSE event.
func splitSSEEvent(lines [][]byte) (string, []byte) {
	name := ""
	var data [][]byte
	for _, line := range lines {
		line = bytes.TrimRight(line, "\r\n")
		field, value, found := bytes.Cut(line, []byte(":"))
		if !found {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "event":
			name = string(value)
		case "data":
			data = append(data, value)
		}
	}
	return name, bytes.Join(data, []byte("\n"))
}
