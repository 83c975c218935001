package imagegen

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImages struct {
	req  openai.ImageRequest
	resp openai.ImageResponse
	err  error
}

func (f *fakeImages) CreateImage(_ context.Context, req openai.ImageRequest) (openai.ImageResponse, error) {
	f.req = req
	return f.resp, f.err
}

func runner(t *testing.T, client ImageClient) (*tools.Runner, string) {
	dir := t.TempDir()
	def, err := NewGenerator(client).Definition()
	require.NoError(t, err)
	reg := tools.NewInMemoryToolRegistry()
	require.NoError(t, reg.Register(def))
	r := tools.NewRunner(reg)
	require.NoError(t, r.SetContext(tools.WithWorkspaceRoot(dir)))
	return r, dir
}

func TestGenerate_SavesPNG(t *testing.T) {
	png := []byte("\x89PNG fake")
	fake := &fakeImages{resp: openai.ImageResponse{Data: []openai.ImageResponseDataInner{
		{B64JSON: base64.StdEncoding.EncodeToString(png), RevisedPrompt: "a red fox, watercolor"},
	}}}
	r, dir := runner(t, fake)

	res := r.Execute(context.Background(), turns.ToolInvocation{
		ID: "img", Name: ToolName, Input: map[string]any{"prompt": "a fox", "path": "public/fox"},
	})
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "public/fox.png")
	assert.Contains(t, res.Content, "watercolor")
	assert.Equal(t, openai.CreateImageResponseFormatB64JSON, fake.req.ResponseFormat)
	assert.Equal(t, openai.CreateImageSize1024x1024, fake.req.Size)

	b, err := os.ReadFile(filepath.Join(dir, "public", "fox.png"))
	require.NoError(t, err)
	assert.Equal(t, png, b)
}

func TestGenerate_APIErrorIsToolError(t *testing.T) {
	r, _ := runner(t, &fakeImages{err: errors.New("rate limited")})
	res := r.Execute(context.Background(), turns.ToolInvocation{
		ID: "img", Name: ToolName, Input: map[string]any{"prompt": "x", "path": "x.png"},
	})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "rate limited")
}
