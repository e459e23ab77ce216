package tools

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dojoai/dojo/internal/ast"
)

// ErrUnknownToolType is returned when a tool reference names a type
// that neither the built-in registry nor the catalog resolved.
var ErrUnknownToolType = errors.New("unknown tool type")

// Constructor builds a tool instance from its module reference. The
// reference's config has already been through variable binding.
type Constructor func(ref *ast.ToolRef) (Tool, error)

// Registry maps tool type names to constructors. Built-in types are
// registered at start-up; catalog specs are layered on top without
// shadowing them.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
	impls map[string]ImplFactory
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register binds a type name to a constructor. Registering a type twice
// is an error so catalog specs cannot silently replace built-ins.
func (r *Registry) Register(typeName string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[typeName]; exists {
		return fmt.Errorf("tool type %s already registered", typeName)
	}
	r.ctors[typeName] = ctor
	return nil
}

// Lookup returns the constructor for a type name.
func (r *Registry) Lookup(typeName string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctor, ok := r.ctors[typeName]
	return ctor, ok
}

// Types returns all registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// New instantiates a tool for a single reference.
func (r *Registry) New(ref *ast.ToolRef) (Tool, error) {
	ctor, ok := r.Lookup(ref.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToolType, ref.Type)
	}

	tool, err := ctor(ref)
	if err != nil {
		return nil, fmt.Errorf("constructing tool %q: %w", ref.Name, err)
	}
	return tool, nil
}

// FromEnvironment instantiates every tool the environment declares, one
// instance per reference, keyed by reference name. Any unresolvable
// type fails the whole construction so a session never starts with a
// partial toolset.
func (r *Registry) FromEnvironment(env *ast.Environment) (map[string]Tool, error) {
	instances := make(map[string]Tool)
	if env == nil {
		return instances, nil
	}

	for _, ref := range env.Tools {
		if _, exists := instances[ref.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", ref.Name)
		}

		tool, err := r.New(ref)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", ref.Name, err)
		}
		instances[ref.Name] = tool
	}
	return instances, nil
}
