package events

import (
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventSink receives events published by the agent loop.
type EventSink interface {
	PublishEvent(event Event) error
}

var ErrSinkClosed = errors.New("event sink closed")

// ChannelSink delivers events over a buffered channel to a single consumer.
//
// PublishEvent blocks while the buffer is full so that no event is lost and ordering
// is kept, unless the sink was created with dropWhenFull.
type ChannelSink struct {
	mu           sync.Mutex
	ch           chan Event
	closed       bool
	dropWhenFull bool
	dropped      int
}

func NewChannelSink(bufferSize int, dropWhenFull bool) *ChannelSink {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &ChannelSink{
		ch:           make(chan Event, bufferSize),
		dropWhenFull: dropWhenFull,
	}
}

func (c *ChannelSink) PublishEvent(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSinkClosed
	}
	if !c.dropWhenFull {
		c.ch <- event
		return nil
	}
	select {
	case c.ch <- event:
	default:
		c.dropped++
		log.Warn().Str("event_type", string(event.Type())).Msg("events: channel sink full, dropping event")
	}
	return nil
}

// Events returns the receive side of the sink. It is closed by Close.
func (c *ChannelSink) Events() <-chan Event {
	return c.ch
}

// Dropped returns the number of events discarded because the buffer was full.
func (c *ChannelSink) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close closes the event channel. Safe to call multiple times.
func (c *ChannelSink) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// NullSink discards everything.
type NullSink struct{}

func (NullSink) PublishEvent(Event) error { return nil }

// WatermillSink publishes events to a watermill Publisher as JSON messages.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) PublishEvent(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event to JSON")
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	err = w.publisher.Publish(w.topic, msg)
	if err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish event to watermill")
		return err
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(event.Type())).Msg("Published event to watermill")
	return nil
}

var (
	_ EventSink = (*ChannelSink)(nil)
	_ EventSink = NullSink{}
	_ EventSink = (*WatermillSink)(nil)
)
