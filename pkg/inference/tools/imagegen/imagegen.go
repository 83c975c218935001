// Package imagegen exposes image generation as a workspace tool.
package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const ToolName = "generate_image"

// ImageClient is the subset of *openai.Client the tool needs.
type ImageClient interface {
	CreateImage(ctx context.Context, request openai.ImageRequest) (openai.ImageResponse, error)
}

var _ ImageClient = (*openai.Client)(nil)

type Input struct {
	Prompt string `json:"prompt" jsonschema:"description=What the image should show"`
	Path   string `json:"path" jsonschema:"description=Where to save the PNG inside the workspace"`
	Size   string `json:"size,omitempty" jsonschema:"enum=256x256,enum=512x512,enum=1024x1024"`
}

type Generator struct {
	client ImageClient
	model  string
}

type Option func(*Generator)

func WithModel(model string) Option {
	return func(g *Generator) { g.model = model }
}

func NewGenerator(client ImageClient, opts ...Option) *Generator {
	g := &Generator{client: client, model: openai.CreateImageModelDallE3}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Definition returns the tool definition. The saved file counts as a created file.
func (g *Generator) Definition() (*tools.ToolDefinition, error) {
	return tools.NewTool(ToolName,
		"Generate an image from a text prompt and save it as a PNG in the workspace.",
		g.generate,
		tools.WithKind(tools.ToolKindWrite),
		tools.WithPathArg("path"),
		tools.WithTags("media"),
	)
}

func (g *Generator) generate(ctx context.Context, in Input, execCtx *tools.ExecutionContext) (tools.Output, error) {
	if g.client == nil {
		return tools.Output{Content: "Image generation is not configured.", IsError: true}, nil
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return tools.Output{Content: "prompt must not be empty", IsError: true}, nil
	}
	sb, err := execCtx.Sandbox()
	if err != nil {
		return tools.Output{}, err
	}
	path := in.Path
	if filepath.Ext(path) == "" {
		path += ".png"
	}
	abs, rel, err := sb.Resolve(path)
	if err != nil {
		return tools.Output{}, err
	}
	size := in.Size
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}

	log.Debug().Str("model", g.model).Str("size", size).Str("path", rel).Msg("imagegen: generating")
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         in.Prompt,
		Model:          g.model,
		N:              1,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return tools.Output{}, errors.Wrap(err, "image request failed")
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return tools.Output{Content: "The image API returned no image.", IsError: true}, nil
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return tools.Output{}, errors.Wrap(err, "decode image")
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return tools.Output{}, errors.Wrapf(err, "create directory for %s", rel)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return tools.Output{}, errors.Wrapf(err, "write %s", rel)
	}
	if execCtx.FileStore != nil {
		if err := execCtx.FileStore.Put(ctx, execCtx.AppID, rel, data); err != nil {
			log.Warn().Err(err).Str("path", rel).Msg("imagegen: file store put failed")
		}
	}

	out := fmt.Sprintf("Saved image to %s (%d bytes)", rel, len(data))
	if rp := resp.Data[0].RevisedPrompt; rp != "" {
		out += "\nRevised prompt: " + rp
	}
	return tools.Output{
		Content:  out,
		Metadata: map[string]any{"path": rel, "bytes": len(data), "created": true},
	}, nil
}
