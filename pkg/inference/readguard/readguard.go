// Package readguard makes sure every edit of a file is preceded by a read of that
// file within the same assistant turn.
//
// The guard works on the raw content blocks of one turn. When an edit targets a path
// that has not been read earlier in the turn, a synthetic read invocation is inserted
// right before it. It only guarantees that a read was requested; it does not check
// the outcome.
package readguard

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/huandu/go-clone"
	"github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog/log"
)

const (
	// SyntheticIDPrefix marks invocations injected by the guard.
	SyntheticIDPrefix = "rbw_"
	// WarningKey is added to the input of edits that carry no anchor.
	WarningKey = "_warning"
)

// Lookup resolves a tool name to its definition. (*tools.Runner).Definition satisfies it.
type Lookup func(name string) (*tools.ToolDefinition, bool)

type Guard struct {
	lookup      Lookup
	readTool    string
	readPathArg string
	anchorArg   string
	newID       func() string
}

type Option func(*Guard)

// WithReadTool sets the tool injected for safety reads and its path argument.
func WithReadTool(name, pathArg string) Option {
	return func(g *Guard) {
		g.readTool = name
		g.readPathArg = pathArg
	}
}

func WithAnchorArg(name string) Option {
	return func(g *Guard) { g.anchorArg = name }
}

// WithIDGenerator overrides the suffix generator for synthetic ids.
func WithIDGenerator(f func() string) Option {
	return func(g *Guard) { g.newID = f }
}

func New(lookup Lookup, opts ...Option) *Guard {
	g := &Guard{
		lookup:      lookup,
		readTool:    "read_file",
		readPathArg: "path",
		anchorArg:   "anchor",
		newID:       shortuuid.New,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Result is the outcome of guarding one turn.
type Result struct {
	// Blocks is what gets stored in history: the original blocks plus injected reads.
	Blocks []turns.Block
	// Invocations is the executable list in block order.
	Invocations []turns.ToolInvocation
	// Injected lists the paths for which a read was injected, in order.
	Injected []string
}

// IsSynthetic reports whether an invocation id was generated by the guard.
func IsSynthetic(id string) bool {
	return strings.HasPrefix(id, SyntheticIDPrefix)
}

// Apply guards one assistant turn. The input slice and the inputs of its blocks are not modified.
func (g *Guard) Apply(blocks []turns.Block) Result {
	res := Result{Blocks: make([]turns.Block, 0, len(blocks))}
	read := map[string]bool{}

	for _, b := range blocks {
		inv, ok := b.AsInvocation()
		if !ok {
			res.Blocks = append(res.Blocks, b)
			continue
		}

		def, known := g.lookup(inv.Name)
		if !known {
			res.Blocks = append(res.Blocks, b)
			res.Invocations = append(res.Invocations, inv)
			continue
		}

		p := normalize(def.TargetPath(inv.Input))
		switch def.Kind {
		case tools.ToolKindRead:
			if p != "" {
				read[p] = true
			}

		case tools.ToolKindEdit:
			if p == "" || read[p] {
				break
			}
			synthetic := turns.ToolInvocation{
				ID:    SyntheticIDPrefix + g.newID(),
				Name:  g.readTool,
				Input: map[string]any{g.readPathArg: def.TargetPath(inv.Input)},
			}
			res.Blocks = append(res.Blocks, turns.NewToolUseBlock(synthetic))
			res.Invocations = append(res.Invocations, synthetic)
			res.Injected = append(res.Injected, p)
			read[p] = true

			if !inv.HasArg(g.anchorArg) {
				inv = g.annotate(inv, p)
				b = turns.NewToolUseBlock(inv)
			}
			log.Debug().
				Str("path", p).
				Str("edit_id", inv.ID).
				Str("read_id", synthetic.ID).
				Msg("readguard: injected read before edit")

		case tools.ToolKindCreate, tools.ToolKindWrite, tools.ToolKindDelete, tools.ToolKindOther:
		}

		res.Blocks = append(res.Blocks, b)
		res.Invocations = append(res.Invocations, inv)
	}
	return res
}

func (g *Guard) annotate(inv turns.ToolInvocation, p string) turns.ToolInvocation {
	input, _ := clone.Clone(inv.Input).(map[string]any)
	if input == nil {
		input = map[string]any{}
	}
	input[WarningKey] = fmt.Sprintf(
		"No %s was given for this edit of %s, so a read of the file was issued first. "+
			"Check that old_string matches the current content before relying on the result.",
		g.anchorArg, p)
	inv.Input = input
	return inv
}

func normalize(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "./")
}
