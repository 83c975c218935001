package claude

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/go-go-golems/codesmith/pkg/steps/ai/claude/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ContentBlockMerger reconstructs a complete message from Claude streaming events.
//
// Usage:
//  1. Create a new merger with NewContentBlockMerger()
//  2. For each streaming event, call Add() to update the internal state
//  3. Once the stream is closed, call Response() for the merged message
//
// Text and thinking deltas are forwarded to the DeltaHandler as they arrive.
// Blocks are ordered by their stream index, not by the order in which they finish.
type ContentBlockMerger struct {
	onDelta  engine.DeltaHandler
	response *api.MessageResponse
	error    *api.Error
	stopped  bool

	open     map[int]*pendingBlock
	finished map[int]api.ContentBlock
}

type pendingBlock struct {
	block       api.ContentBlock
	text        strings.Builder
	partialJSON strings.Builder
	thinking    strings.Builder
	signature   strings.Builder
	citations   []json.RawMessage
}

func NewContentBlockMerger(onDelta engine.DeltaHandler) *ContentBlockMerger {
	return &ContentBlockMerger{
		onDelta:  onDelta,
		open:     map[int]*pendingBlock{},
		finished: map[int]api.ContentBlock{},
	}
}

// Text returns the text accumulated so far, including blocks still streaming.
func (cbm *ContentBlockMerger) Text() string {
	var sb strings.Builder
	for _, idx := range cbm.indices() {
		if b, ok := cbm.finished[idx]; ok {
			if b.Type == api.ContentTypeText {
				sb.WriteString(b.Text)
			}
			continue
		}
		if p := cbm.open[idx]; p != nil && p.block.Type == api.ContentTypeText {
			sb.WriteString(p.text.String())
		}
	}
	return sb.String()
}

// Error returns the error event received on the stream, if any.
func (cbm *ContentBlockMerger) Error() *api.Error {
	return cbm.error
}

// Stopped reports whether message_stop was received.
func (cbm *ContentBlockMerger) Stopped() bool {
	return cbm.stopped
}

func (cbm *ContentBlockMerger) indices() []int {
	idx := make([]int, 0, len(cbm.open)+len(cbm.finished))
	for i := range cbm.finished {
		idx = append(idx, i)
	}
	for i := range cbm.open {
		if _, done := cbm.finished[i]; !done {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	return idx
}

// Add processes one streaming event.
func (cbm *ContentBlockMerger) Add(event api.StreamingEvent) error {
	switch event.Type {
	case api.PingType:
		return nil

	case api.MessageStartType:
		if event.Message == nil {
			return errors.New("message_start event must have a message")
		}
		msg := *event.Message
		msg.Content = nil
		cbm.response = &msg
		return nil

	case api.MessageDeltaType:
		if cbm.response == nil {
			return errors.New("message_delta before message_start")
		}
		if event.Delta != nil {
			if event.Delta.StopReason != "" {
				cbm.response.StopReason = event.Delta.StopReason
			}
			if event.Delta.StopSequence != "" {
				cbm.response.StopSequence = event.Delta.StopSequence
			}
		}
		// usage on message_delta is cumulative
		if event.Usage != nil {
			cbm.response.Usage.OutputTokens = event.Usage.OutputTokens
			if event.Usage.InputTokens > 0 {
				cbm.response.Usage.InputTokens = event.Usage.InputTokens
			}
		}
		return nil

	case api.MessageStopType:
		if cbm.response == nil {
			return errors.New("message_stop before message_start")
		}
		cbm.stopped = true
		return nil

	case api.ContentBlockStartType:
		if cbm.response == nil {
			return errors.New("content_block_start before message_start")
		}
		if event.ContentBlock == nil {
			return errors.New("content_block_start event must have a content block")
		}
		if event.Index < 0 {
			return errors.New("content_block_start event must have a positive index")
		}
		if _, exists := cbm.open[event.Index]; exists {
			return errors.Errorf("content block with index %d already exists", event.Index)
		}
		p := &pendingBlock{block: *event.ContentBlock}
		p.text.WriteString(event.ContentBlock.Text)
		p.thinking.WriteString(event.ContentBlock.Thinking)
		p.signature.WriteString(event.ContentBlock.Signature)
		cbm.open[event.Index] = p
		cbm.onDelta.Notify(engine.Delta{Kind: engine.DeltaText, Text: event.ContentBlock.Text})
		return nil

	case api.ContentBlockDeltaType:
		if event.Delta == nil {
			return errors.New("content_block_delta event must have a delta")
		}
		p, exists := cbm.open[event.Index]
		if !exists {
			return errors.Errorf("content block with index %d does not exist", event.Index)
		}
		switch event.Delta.Type {
		case api.TextDeltaType:
			p.text.WriteString(event.Delta.Text)
			cbm.onDelta.Notify(engine.Delta{Kind: engine.DeltaText, Text: event.Delta.Text})
		case api.InputJSONDeltaType:
			p.partialJSON.WriteString(event.Delta.PartialJSON)
		case api.ThinkingDeltaType:
			p.thinking.WriteString(event.Delta.Thinking)
			cbm.onDelta.Notify(engine.Delta{Kind: engine.DeltaThinking, Text: event.Delta.Thinking})
		case api.SignatureDeltaType:
			p.signature.WriteString(event.Delta.Signature)
		case api.CitationsDeltaType:
			if len(event.Delta.Citation) > 0 {
				p.citations = append(p.citations, event.Delta.Citation)
			}
		default:
			log.Debug().Str("type", string(event.Delta.Type)).Int("index", event.Index).Msg("claude: skipping unknown delta type")
		}
		return nil

	case api.ContentBlockStopType:
		p, exists := cbm.open[event.Index]
		if !exists {
			return errors.Errorf("content block with index %d does not exist", event.Index)
		}
		block, err := p.finish()
		if err != nil {
			return err
		}
		cbm.finished[event.Index] = block
		return nil

	case api.ErrorType:
		if event.Error == nil {
			return errors.New("error event must have an error")
		}
		cbm.error = event.Error
		return nil

	default:
		return errors.Errorf("unknown event type: %s", event.Type)
	}
}

func (p *pendingBlock) finish() (api.ContentBlock, error) {
	b := p.block
	switch b.Type {
	case api.ContentTypeText:
		b.Text = p.text.String()
		b.Citations = append(b.Citations, p.citations...)
	case api.ContentTypeThinking:
		b.Thinking = p.thinking.String()
		b.Signature = p.signature.String()
	case api.ContentTypeToolUse, api.ContentTypeServerToolUse:
		if partial := strings.TrimSpace(p.partialJSON.String()); partial != "" {
			if !json.Valid([]byte(partial)) {
				return b, errors.Errorf("invalid input JSON for tool %s", b.Name)
			}
			b.Input = json.RawMessage(partial)
		}
		if len(b.Input) == 0 {
			b.Input = json.RawMessage("{}")
		}
	case api.ContentTypeRedactedThinking, api.ContentTypeWebSearchToolResult:
		// complete in content_block_start
	default:
		return b, errors.Errorf("unknown content block type: %s", b.Type)
	}
	return b, nil
}

// Response returns the merged message. It fails if the stream reported an error, never
// started, or ended before message_stop.
func (cbm *ContentBlockMerger) Response() (*api.MessageResponse, error) {
	if cbm.error != nil {
		return nil, &api.APIError{Type: cbm.error.Type, Message: cbm.error.Message}
	}
	if cbm.response == nil {
		return nil, errors.New("stream ended without a message")
	}
	if !cbm.stopped {
		return nil, errors.New("stream ended before message_stop")
	}
	resp := *cbm.response
	resp.Content = nil
	idx := make([]int, 0, len(cbm.finished))
	for i := range cbm.finished {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		resp.Content = append(resp.Content, cbm.finished[i])
	}
	return &resp, nil
}
