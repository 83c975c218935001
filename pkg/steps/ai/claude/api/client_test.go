package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendsVersionAndKeyHeaders(t *testing.T) {
	var versions []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		versions = append(versions, r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(MessageResponse{
			ID: "msg_1", Type: "message", Role: "assistant",
			Content: []ContentBlock{NewTextContent("hi")},
		})
	}))
	defer srv.Close()

	req := &MessageRequest{
		Model:     "claude-test",
		MaxTokens: 16,
		Messages:  []Message{{Role: "user", Content: []ContentBlock{NewTextContent("hello")}}},
	}

	resp, err := NewClient("sk-test", srv.URL+"/").SendMessage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.FullText())

	_, err = NewClient("sk-test", srv.URL, WithAPIVersion("2099-01-01")).SendMessage(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{defaultAPIVersion, "2099-01-01"}, versions)
}
