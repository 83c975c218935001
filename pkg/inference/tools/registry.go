package tools

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrToolNotFound = errors.New("tool not found")

// ToolRegistry holds the tools a Runner can offer and execute.
type ToolRegistry interface {
	RegisterTool(name string, def ToolDefinition) error
	GetTool(name string) (*ToolDefinition, error)
	ListTools() []ToolDefinition
	UnregisterTool(name string) error

	// Clone returns an independent copy, so a runner is not affected by later changes.
	Clone() ToolRegistry
}

// InMemoryToolRegistry is a ToolRegistry safe for concurrent use.
type InMemoryToolRegistry struct {
	mu   sync.RWMutex
	defs map[string]ToolDefinition
}

var _ ToolRegistry = (*InMemoryToolRegistry)(nil)

func NewInMemoryToolRegistry() *InMemoryToolRegistry {
	return &InMemoryToolRegistry{defs: map[string]ToolDefinition{}}
}

// RegisterTool stores def under name. A tool registered twice keeps the last definition.
func (r *InMemoryToolRegistry) RegisterTool(name string, def ToolDefinition) error {
	switch {
	case name == "":
		return errors.New("tool name cannot be empty")
	case def.Name != "" && def.Name != name:
		return errors.Errorf("tool %s registered under name %s", def.Name, name)
	case def.Executor == nil:
		return errors.Errorf("tool %s has no executor", name)
	}
	if def.Kind == "" {
		def.Kind = ToolKindOther
	}
	def.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[name]; exists {
		log.Debug().Str("tool", name).Msg("tools: replacing registered tool")
	}
	r.defs[name] = def
	return nil
}

// Register is a shorthand for RegisterTool(def.Name, *def).
func (r *InMemoryToolRegistry) Register(defs ...*ToolDefinition) error {
	for _, def := range defs {
		if def == nil {
			continue
		}
		if err := r.RegisterTool(def.Name, *def); err != nil {
			return err
		}
	}
	return nil
}

// GetTool returns a copy of the named definition.
func (r *InMemoryToolRegistry) GetTool(name string) (*ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return nil, errors.Wrap(ErrToolNotFound, name)
	}
	return &def, nil
}

// ListTools returns every definition sorted by name, which keeps the tool list sent to
// the model stable between requests.
func (r *InMemoryToolRegistry) ListTools() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *InMemoryToolRegistry) UnregisterTool(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[name]; !ok {
		return errors.Wrap(ErrToolNotFound, name)
	}
	delete(r.defs, name)
	return nil
}

func (r *InMemoryToolRegistry) Clone() ToolRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewInMemoryToolRegistry()
	for name, def := range r.defs {
		c.defs[name] = def
	}
	return c
}
