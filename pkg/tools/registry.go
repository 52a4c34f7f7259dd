package tools

import (
	"sync"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
)

// Registry manages the tools an agent may dispatch. Implementations
// must be safe for concurrent use.
type Registry interface {
	Register(def Definition) error
	Get(name string) (*Definition, error)
	List() []Definition
	Declarations() []Declaration
	Unregister(name string) error
	Has(name string) bool
	Count() int

	Clone() Registry
	Merge(other Registry) Registry
}

// InMemoryRegistry is a mutex-guarded map of tool definitions. Names
// are normalized to snake_case at registration so declarations match
// what models emit.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		tools: make(map[string]Definition),
	}
}

var _ Registry = &InMemoryRegistry{}

// NormalizeName converts a tool name to the snake_case form used on the
// wire.
func NormalizeName(name string) string {
	return strcase.ToSnake(name)
}

func (r *InMemoryRegistry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.Name == "" {
		return errors.New("tool name cannot be empty")
	}
	if def.Handler == nil {
		return errors.Errorf("tool %s has no handler", def.Name)
	}

	def.Name = NormalizeName(def.Name)
	r.tools[def.Name] = def
	return nil
}

func (r *InMemoryRegistry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.tools[name]
	if !exists {
		return nil, errors.Errorf("tool not found: %s", name)
	}

	// copy so callers cannot mutate the registered definition
	defCopy := def
	return &defCopy, nil
}

func (r *InMemoryRegistry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, def)
	}
	return defs
}

func (r *InMemoryRegistry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decls := make([]Declaration, 0, len(r.tools))
	for _, def := range r.tools {
		decls = append(decls, def.Declaration)
	}
	return decls
}

func (r *InMemoryRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return errors.Errorf("tool not found: %s", name)
	}
	delete(r.tools, name)
	return nil
}

func (r *InMemoryRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

func (r *InMemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}

func (r *InMemoryRegistry) Clone() Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cloned := NewInMemoryRegistry()
	for name, def := range r.tools {
		cloned.tools[name] = def
	}
	return cloned
}

// Merge returns a new registry containing tools from both registries.
// On name conflicts the other registry wins.
func (r *InMemoryRegistry) Merge(other Registry) Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := NewInMemoryRegistry()
	for name, def := range r.tools {
		merged.tools[name] = def
	}
	for _, def := range other.List() {
		merged.tools[def.Name] = def
	}
	return merged
}

// ValidateDeclared checks at startup that every declared tool resolves
// to a registered handler. An agent configured with a tool nobody
// registered is a wiring bug, not a runtime condition.
func ValidateDeclared(r Registry, declared []Declaration) error {
	for _, d := range declared {
		if !r.Has(NormalizeName(d.Name)) {
			return errors.Errorf("declared tool %s is not registered", d.Name)
		}
	}
	return nil
}
