package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSSEEvent(t *testing.T) {
	name, data := splitSSEEvent([][]byte{
		[]byte(": comment\n"),
		[]byte("event: content_block_delta\r\n"),
		[]byte("data: {\"a\":\n"),
		[]byte("data:1}\n"),
	})
	assert.Equal(t, "content_block_delta", name)
	assert.Equal(t, "{\"a\":\n1}", string(data))
}

type failingReader struct {
	r   io.Reader
	err error
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		return n, f.err
	}
	return n, err
}

func collect(t *testing.T, body io.Reader) []StreamingEvent {
	t.Helper()
	resp := &http.Response{Body: io.NopCloser(body)}
	ch := make(chan StreamingEvent)
	go streamEvents(context.Background(), resp, ch)
	var out []StreamingEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestStreamEvents_ParsesAndSkipsGarbage(t *testing.T) {
	body := "event: ping\ndata: {\"type\":\"ping\"}\n\n" +
		"event: bogus\ndata: not json\n\n" +
		"event: message_stop\ndata: {\"type\":\"message_stop\"}"
	events := collect(t, strings.NewReader(body))
	require.Len(t, events, 2)
	assert.Equal(t, PingType, events[0].Type)
	assert.Equal(t, MessageStopType, events[1].Type, "last event without trailing blank line is flushed")
}

func TestStreamEvents_ReadErrorBecomesErrorEvent(t *testing.T) {
	body := &failingReader{
		r:   strings.NewReader("data: {\"type\":\"ping\"}\n\n"),
		err: errors.New("connection reset"),
	}
	events := collect(t, body)
	require.Len(t, events, 2)
	assert.Equal(t, ErrorType, events[1].Type)
	assert.Equal(t, StreamErrorType, events[1].Error.Type)
	assert.Contains(t, events[1].Error.Message, "connection reset")
}

func TestAPIError_Message(t *testing.T) {
	err := decodeAPIError(529, []byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	assert.Equal(t, "claude api error (529 overloaded_error): Overloaded", err.Error())

	err = decodeAPIError(502, []byte("Bad Gateway"))
	assert.Contains(t, err.Error(), "Bad Gateway")
}
