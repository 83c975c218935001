package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// ToolKind classifies what a tool does to the workspace. The agent uses it to
// decide on read-before-write injection and file progress events.
type ToolKind string

const (
	ToolKindRead   ToolKind = "read"
	ToolKindEdit   ToolKind = "edit"   // patches an existing file
	ToolKindCreate ToolKind = "create" // creates a new file, fails if it exists
	ToolKindWrite  ToolKind = "write"  // creates or overwrites
	ToolKindDelete ToolKind = "delete"
	ToolKindOther  ToolKind = "other"
)

// Mutates reports whether the tool changes files on disk.
func (k ToolKind) Mutates() bool {
	switch k {
	case ToolKindEdit, ToolKindCreate, ToolKindWrite, ToolKindDelete:
		return true
	case ToolKindRead, ToolKindOther:
		return false
	}
	return false
}

// ToolDefinition represents a tool that can be called by the model.
type ToolDefinition struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Parameters  *jsonschema.Schema `json:"parameters" yaml:"parameters"`
	Kind        ToolKind           `json:"kind" yaml:"kind"`
	// PathArg names the input field that holds the target file path, empty if the tool has none.
	PathArg  string   `json:"path_arg,omitempty" yaml:"path_arg,omitempty"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Executor Executor `json:"-" yaml:"-"`
}

// TargetPath extracts the file path an invocation operates on.
func (d *ToolDefinition) TargetPath(input map[string]any) string {
	if d == nil || d.PathArg == "" || input == nil {
		return ""
	}
	s, _ := input[d.PathArg].(string)
	return s
}

// SchemaJSON returns the parameter schema serialized for model APIs.
func (d *ToolDefinition) SchemaJSON() (json.RawMessage, error) {
	if d.Parameters == nil {
		return json.RawMessage(`{"type":"object","properties":{}}`), nil
	}
	b, err := json.Marshal(d.Parameters)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal schema for %s", d.Name)
	}
	return b, nil
}

// Output is what an executor hands back to the runner.
type Output struct {
	Content  string
	IsError  bool
	Metadata map[string]any
}

// Executor runs one tool.
type Executor interface {
	Execute(ctx context.Context, input map[string]any, execCtx *ExecutionContext) (Output, error)
}

type ExecutorFunc func(ctx context.Context, input map[string]any, execCtx *ExecutionContext) (Output, error)

func (f ExecutorFunc) Execute(ctx context.Context, input map[string]any, execCtx *ExecutionContext) (Output, error) {
	return f(ctx, input, execCtx)
}

// ToolOption tweaks a definition built by NewTool.
type ToolOption func(*ToolDefinition)

func WithKind(kind ToolKind) ToolOption {
	return func(d *ToolDefinition) { d.Kind = kind }
}

func WithPathArg(arg string) ToolOption {
	return func(d *ToolDefinition) { d.PathArg = arg }
}

func WithTags(tags ...string) ToolOption {
	return func(d *ToolDefinition) { d.Tags = append(d.Tags, tags...) }
}

// NewTool builds a ToolDefinition from a typed function. The parameter schema is
// reflected from In and the raw input map is decoded into In before fn runs.
func NewTool[In any](
	name, description string,
	fn func(ctx context.Context, in In, execCtx *ExecutionContext) (Output, error),
	opts ...ToolOption,
) (*ToolDefinition, error) {
	if name == "" {
		return nil, errors.New("tool name cannot be empty")
	}
	if fn == nil {
		return nil, errors.Errorf("tool %s: nil function", name)
	}

	var zero In
	schema, err := reflectSchema(reflect.TypeOf(zero))
	if err != nil {
		return nil, errors.Wrapf(err, "tool %s", name)
	}

	def := &ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Kind:        ToolKindOther,
		Executor: ExecutorFunc(func(ctx context.Context, input map[string]any, execCtx *ExecutionContext) (Output, error) {
			var in In
			if err := DecodeInput(input, &in); err != nil {
				return Output{}, err
			}
			return fn(ctx, in, execCtx)
		}),
	}
	for _, opt := range opts {
		opt(def)
	}
	return def, nil
}

// DecodeInput decodes a tool input map into a struct using its json tags.
func DecodeInput(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return errors.Wrap(err, "failed to decode arguments")
	}
	return nil
}

func reflectSchema(t reflect.Type) (*jsonschema.Schema, error) {
	if t == nil {
		return &jsonschema.Schema{Type: "object"}, nil
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("tool input must be a struct, got %s", t.Kind())
	}

	reflector := jsonschema.Reflector{
		// Expand definitions inline instead of using $refs
		DoNotReference: true,
		// annotations such as _warning ride along in the input map
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(reflect.New(t).Elem().Interface())
	// top level $schema/$id confuse some providers
	schema.Version = ""
	schema.ID = ""
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema, nil
}
