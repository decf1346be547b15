package workflow

import (
	"fmt"
	"log/slog"
	"sync"
)

// Descriptor declares a node type: its constructor plus the static metadata
// the HTTP surface publishes. Port schemas live on the descriptor so the
// catalog endpoint never has to instantiate a node to learn its shape.
type Descriptor struct {
	// Type is the registered type name, e.g. "SwitchNode".
	Type string `json:"name"`

	// Category groups related node types for editor tooling.
	Category string `json:"category"`

	// NullTolerant mirrors the constructor's declaration for introspection.
	NullTolerant bool `json:"null_tolerant,omitempty"`

	// InputPorts and OutputPorts are the static port schemas.
	InputPorts  map[string]Port `json:"input_ports"`
	OutputPorts map[string]Port `json:"output_ports"`

	// New constructs a node instance. An empty id means generate one.
	New func(id string) Node `json:"-"`
}

// Registry holds the catalog of node types. It is populated at startup
// (built-ins plus any custom node directory) and treated as immutable
// afterwards; reads take the lock only because registration order is
// preserved for the catalog listing.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]Descriptor
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty node type registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		types:  make(map[string]Descriptor),
		logger: logger,
	}
}

// Register adds a node type. Registering a name twice replaces the earlier
// entry with a warning, so custom nodes can shadow built-ins.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[d.Type]; exists {
		r.logger.Warn("replacing registered node type",
			slog.String("type", d.Type),
			slog.String("category", d.Category))
	} else {
		r.order = append(r.order, d.Type)
	}
	r.types[d.Type] = d
}

// New constructs a node instance of the named type. An empty id is replaced
// with a fresh UUID by the constructor.
func (r *Registry) New(typeName, id string) (Node, error) {
	r.mu.RLock()
	d, ok := r.types[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, typeName)
	}
	return d.New(id), nil
}

// Descriptor returns the descriptor registered under typeName.
func (r *Registry) Descriptor(typeName string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[typeName]
	return d, ok
}

// Has reports whether the type name is registered.
func (r *Registry) Has(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[typeName]
	return ok
}

// Descriptors returns all registered node types in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// Categories returns registered type names grouped by category, preserving
// registration order within each group.
func (r *Registry) Categories() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string)
	for _, name := range r.order {
		d := r.types[name]
		out[d.Category] = append(out[d.Category], name)
	}
	return out
}
