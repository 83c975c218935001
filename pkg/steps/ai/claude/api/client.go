package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/codesmith/pkg/inference/engine"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"
)

// ErrorResponse represents the API's error response.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// APIError is returned for non-200 responses and for errors reported inside the stream.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("claude api error (%d %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("claude api error (%s): %s", e.Type, e.Message)
}

// Client represents the Claude API client.
type Client struct {
	httpClient *http.Client
	apiKey     string
	APIVersion string
	BaseURL    string
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

func WithAPIVersion(v string) ClientOption {
	return func(cl *Client) { cl.APIVersion = v }
}

// NewClient initializes and returns a new API client. An empty baseURL uses DefaultBaseURL.
func NewClient(apiKey string, baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: http.DefaultClient,
		apiKey:     apiKey,
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		APIVersion: defaultAPIVersion,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Helper function to set necessary headers
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.APIVersion)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) post(ctx context.Context, req *MessageRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal message request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build message request")
	}
	c.setHeaders(httpReq)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	tap, _ := engine.DebugTapFrom(ctx)
	if tap != nil {
		tap.OnHTTP(httpReq, body)
	}

	log.Debug().Str("model", req.Model).Int("messages", len(req.Messages)).Int("tools", len(req.Tools)).
		Bool("stream", req.Stream).Msg("claude: sending message request")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "send message request")
	}

	if resp.StatusCode != http.StatusOK {
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)
		respBody, _ := io.ReadAll(resp.Body)
		if tap != nil {
			tap.OnHTTPResponse(resp, respBody)
		}
		return nil, decodeAPIError(resp.StatusCode, respBody)
	}
	if tap != nil {
		tap.OnHTTPResponse(resp, nil)
	}
	return resp, nil
}

func decodeAPIError(status int, body []byte) error {
	var errorResp ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error.Message == "" {
		return &APIError{StatusCode: status, Type: http.StatusText(status), Message: strings.TrimSpace(string(body))}
	}
	return &APIError{StatusCode: status, Type: errorResp.Error.Type, Message: errorResp.Error.Message}
}

// SendMessage sends a non-streaming message request and returns the response.
func (c *Client) SendMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	r := *req
	r.Stream = false
	resp, err := c.post(ctx, &r)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	var messageResp MessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&messageResp); err != nil {
		return nil, errors.Wrap(err, "decode message response")
	}
	return &messageResp, nil
}

// StreamMessage sends a streaming message request. The returned channel is closed when
// the stream ends or ctx is cancelled.
func (c *Client) StreamMessage(ctx context.Context, req *MessageRequest) (<-chan StreamingEvent, error) {
	r := *req
	r.Stream = true
	resp, err := c.post(ctx, &r)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamingEvent)
	go streamEvents(ctx, resp, events)
	return events, nil
}
