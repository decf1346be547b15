// Package workflow implements the graph engine at the heart of weft: typed
// nodes with named input/output ports, validated connections, topological
// execution with null-propagated branch skipping, and a registry of node
// types for introspection and construction.
package workflow

// Well-known port types. Port types are symbolic tags used for compatibility
// checking at graph construction time; they never coerce runtime values.
const (
	TypeAny     = "any"
	TypeObject  = "object"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
)

// Port describes one named, typed input or output on a node.
type Port struct {
	// Name is the port identifier, unique per direction within a node.
	Name string `json:"name"`

	// Type is the symbolic port type tag (TypeString, TypeAny, ...).
	Type string `json:"port_type"`

	// Required marks an input that must hold a value before the node runs.
	// Ignored for outputs.
	Required bool `json:"required"`

	// Default is substituted for a missing required input when non-nil.
	Default any `json:"default_value,omitempty"`

	// Options enumerates accepted values for editor tooling.
	Options []any `json:"options,omitempty"`

	// Tooltip is a human-readable hint for editor tooling.
	Tooltip string `json:"tooltip,omitempty"`
}

// CompatiblePortTypes reports whether a producer port of type from may feed a
// consumer port of type to. "any" is compatible with everything in both
// directions. "object" may feed any specific type: a loosely typed producer
// can feed a more specific consumer, but not the reverse. All other pairs
// must match exactly.
func CompatiblePortTypes(from, to string) bool {
	if from == to {
		return true
	}
	if from == TypeAny || to == TypeAny {
		return true
	}
	if from == TypeObject {
		return true
	}
	return false
}

// IsNull reports whether a port value carries the branch-dead tag. The engine
// uses the untyped nil interface value as the tag: a SwitchNode emits nil on
// non-selected outputs and the executor skips every downstream node that
// receives it. Nodes must never emit nil as a legitimate result; empty
// strings, zero numbers and empty collections are all non-null.
func IsNull(v any) bool {
	return v == nil
}
