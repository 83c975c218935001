package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// Raw model text shown as-is
	EventTypeTextDelta EventType = "text-delta"
	// Buffered text replayed in paced chunks (reasoning and summary phases)
	EventTypeReasoningChunk EventType = "reasoning-chunk"

	EventTypePhaseChange      EventType = "phase-change"
	EventTypeThinkingComplete EventType = "thinking-complete"

	EventTypeFileOperation EventType = "file-operation"
	EventTypeToolStart     EventType = "tool-start"
	EventTypeToolEnd       EventType = "tool-end"

	EventTypeRequestComplete  EventType = "request-complete"
	EventTypeMessagePersisted EventType = "message-persisted"
	EventTypeWarning          EventType = "warning"
)

// Phase is the coarse progress label shown to the user.
type Phase string

const (
	PhaseThinking    Phase = "thinking"
	PhaseReasoning   Phase = "reasoning"
	PhaseCodeWriting Phase = "code-writing"
	PhaseBuilding    Phase = "building"
	PhaseCompleted   Phase = "completed"
)

// FileOperation is the progress state of a tool call that targets a file.
type FileOperation string

const (
	FileOpCreating FileOperation = "creating"
	FileOpEditing  FileOperation = "editing"
	FileOpCreated  FileOperation = "created"
	FileOpEdited   FileOperation = "edited"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventMetadata struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	SessionID string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	RequestID string    `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	// Seq orders events within one request.
	Seq  int64     `json:"seq" yaml:"seq"`
	Time time.Time `json:"time" yaml:"time"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", em.ID.String())
	if em.SessionID != "" {
		e.Str("session_id", em.SessionID)
	}
	if em.RequestID != "" {
		e.Str("request_id", em.RequestID)
	}
	e.Int64("seq", em.Seq)
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`

	// set when decoded through NewEventFromJSON
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) SetPayload(b []byte) {
	e.payload = b
}

var _ Event = &EventImpl{}

type EventTextDelta struct {
	EventImpl
	Delta string `json:"delta"`
}

func NewTextDeltaEvent(metadata EventMetadata, delta string) *EventTextDelta {
	return &EventTextDelta{
		EventImpl: EventImpl{Type_: EventTypeTextDelta, Metadata_: metadata},
		Delta:     delta,
	}
}

type EventReasoningChunk struct {
	EventImpl
	Phase Phase  `json:"phase"`
	Chunk string `json:"chunk"`
}

func NewReasoningChunkEvent(metadata EventMetadata, phase Phase, chunk string) *EventReasoningChunk {
	return &EventReasoningChunk{
		EventImpl: EventImpl{Type_: EventTypeReasoningChunk, Metadata_: metadata},
		Phase:     phase,
		Chunk:     chunk,
	}
}

type EventPhaseChange struct {
	EventImpl
	Phase Phase `json:"phase"`
}

func NewPhaseChangeEvent(metadata EventMetadata, phase Phase) *EventPhaseChange {
	return &EventPhaseChange{
		EventImpl: EventImpl{Type_: EventTypePhaseChange, Metadata_: metadata},
		Phase:     phase,
	}
}

type EventThinkingComplete struct {
	EventImpl
	DurationMs int64 `json:"duration_ms"`
}

func NewThinkingCompleteEvent(metadata EventMetadata, d time.Duration) *EventThinkingComplete {
	return &EventThinkingComplete{
		EventImpl:  EventImpl{Type_: EventTypeThinkingComplete, Metadata_: metadata},
		DurationMs: d.Milliseconds(),
	}
}

func (e *EventThinkingComplete) Duration() time.Duration {
	return time.Duration(e.DurationMs) * time.Millisecond
}

type EventFileOperation struct {
	EventImpl
	Operation FileOperation `json:"operation"`
	Path      string        `json:"path"`
	ToolName  string        `json:"tool_name"`
	ToolUseID string        `json:"tool_use_id"`
	IsError   bool          `json:"is_error,omitempty"`
}

func NewFileOperationEvent(metadata EventMetadata, op FileOperation, path, toolName, toolUseID string, isError bool) *EventFileOperation {
	return &EventFileOperation{
		EventImpl: EventImpl{Type_: EventTypeFileOperation, Metadata_: metadata},
		Operation: op,
		Path:      path,
		ToolName:  toolName,
		ToolUseID: toolUseID,
		IsError:   isError,
	}
}

type EventToolStart struct {
	EventImpl
	ToolUseID string         `json:"tool_use_id"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input,omitempty"`
}

func NewToolStartEvent(metadata EventMetadata, toolUseID, name string, input map[string]any) *EventToolStart {
	return &EventToolStart{
		EventImpl: EventImpl{Type_: EventTypeToolStart, Metadata_: metadata},
		ToolUseID: toolUseID,
		Name:      name,
		Input:     input,
	}
}

type EventToolEnd struct {
	EventImpl
	ToolUseID string `json:"tool_use_id"`
	Name      string `json:"name"`
	IsError   bool   `json:"is_error,omitempty"`
	Result    string `json:"result,omitempty"`
}

func NewToolEndEvent(metadata EventMetadata, toolUseID, name string, isError bool, result string) *EventToolEnd {
	return &EventToolEnd{
		EventImpl: EventImpl{Type_: EventTypeToolEnd, Metadata_: metadata},
		ToolUseID: toolUseID,
		Name:      name,
		IsError:   isError,
		Result:    result,
	}
}

type EventRequestComplete struct {
	EventImpl
	Usage Usage `json:"usage"`
	Turns int   `json:"turns"`
}

func NewRequestCompleteEvent(metadata EventMetadata, usage Usage, turns int) *EventRequestComplete {
	return &EventRequestComplete{
		EventImpl: EventImpl{Type_: EventTypeRequestComplete, Metadata_: metadata},
		Usage:     usage,
		Turns:     turns,
	}
}

type EventMessagePersisted struct {
	EventImpl
	TranscriptID string `json:"transcript_id"`
	Role         string `json:"role"`
	Index        int    `json:"index"`
}

func NewMessagePersistedEvent(metadata EventMetadata, transcriptID, role string, index int) *EventMessagePersisted {
	return &EventMessagePersisted{
		EventImpl:    EventImpl{Type_: EventTypeMessagePersisted, Metadata_: metadata},
		TranscriptID: transcriptID,
		Role:         role,
		Index:        index,
	}
}

type EventWarning struct {
	EventImpl
	Message string `json:"message"`
}

func NewWarningEvent(metadata EventMetadata, msg string) *EventWarning {
	return &EventWarning{
		EventImpl: EventImpl{Type_: EventTypeWarning, Metadata_: metadata},
		Message:   msg,
	}
}

var (
	_ Event = &EventTextDelta{}
	_ Event = &EventReasoningChunk{}
	_ Event = &EventPhaseChange{}
	_ Event = &EventThinkingComplete{}
	_ Event = &EventFileOperation{}
	_ Event = &EventToolStart{}
	_ Event = &EventToolEnd{}
	_ Event = &EventRequestComplete{}
	_ Event = &EventMessagePersisted{}
	_ Event = &EventWarning{}
)

func decodeAs[T any, PT interface {
	*T
	Event
	SetPayload([]byte)
}](b []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	p := PT(&v)
	p.SetPayload(b)
	return p, nil
}

// NewEventFromJSON decodes an event previously serialized with json.Marshal.
func NewEventFromJSON(b []byte) (Event, error) {
	var hdr struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, err
	}

	switch hdr.Type {
	case EventTypeTextDelta:
		return decodeAs[EventTextDelta](b)
	case EventTypeReasoningChunk:
		return decodeAs[EventReasoningChunk](b)
	case EventTypePhaseChange:
		return decodeAs[EventPhaseChange](b)
	case EventTypeThinkingComplete:
		return decodeAs[EventThinkingComplete](b)
	case EventTypeFileOperation:
		return decodeAs[EventFileOperation](b)
	case EventTypeToolStart:
		return decodeAs[EventToolStart](b)
	case EventTypeToolEnd:
		return decodeAs[EventToolEnd](b)
	case EventTypeRequestComplete:
		return decodeAs[EventRequestComplete](b)
	case EventTypeMessagePersisted:
		return decodeAs[EventMessagePersisted](b)
	case EventTypeWarning:
		return decodeAs[EventWarning](b)
	}
	return nil, fmt.Errorf("unknown event type: %q", hdr.Type)
}
