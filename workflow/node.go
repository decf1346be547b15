package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Node is a typed unit of computation with named input and output ports. A
// node instance belongs to exactly one workflow execution and is never
// reused across runs.
type Node interface {
	// ID returns the node instance identifier, unique within its graph.
	ID() string

	// Type returns the registered node type name.
	Type() string

	// InputPorts returns the declared input ports keyed by name.
	InputPorts() map[string]Port

	// OutputPorts returns the declared output ports keyed by name.
	OutputPorts() map[string]Port

	// SetInput stores a value for the named input port.
	SetInput(name string, value any)

	// Input returns the stored value for the named input port.
	Input(name string) (any, bool)

	// NullTolerant reports whether this node type executes even when a
	// connected upstream delivered the null tag. Only null-tolerant nodes
	// may observe null inputs; every other node is skipped instead.
	NullTolerant() bool

	// Process computes the node outputs from its inputs. The returned map
	// is keyed by output port name; declared ports missing from the map
	// default to null.
	Process(ctx context.Context) (map[string]any, error)
}

// BaseNode supplies the port and value plumbing shared by all node
// implementations. Concrete nodes embed it and declare their ports in their
// constructor.
type BaseNode struct {
	id           string
	typeName     string
	inputPorts   map[string]Port
	outputPorts  map[string]Port
	inputs       map[string]any
	nullTolerant bool
}

// NewBaseNode creates the embedded base for a node of the given type. An
// empty id is replaced with a fresh UUID.
func NewBaseNode(typeName, id string) BaseNode {
	if id == "" {
		id = uuid.New().String()
	}
	return BaseNode{
		id:          id,
		typeName:    typeName,
		inputPorts:  make(map[string]Port),
		outputPorts: make(map[string]Port),
		inputs:      make(map[string]any),
	}
}

// ID returns the node instance identifier.
func (b *BaseNode) ID() string { return b.id }

// Type returns the node type name.
func (b *BaseNode) Type() string { return b.typeName }

// InputPorts returns the declared input ports.
func (b *BaseNode) InputPorts() map[string]Port { return b.inputPorts }

// OutputPorts returns the declared output ports.
func (b *BaseNode) OutputPorts() map[string]Port { return b.outputPorts }

// SetInput stores a value for the named input port.
func (b *BaseNode) SetInput(name string, value any) { b.inputs[name] = value }

// Input returns the stored value for the named input port.
func (b *BaseNode) Input(name string) (any, bool) {
	v, ok := b.inputs[name]
	return v, ok
}

// NullTolerant reports whether the node type opted out of skip propagation.
func (b *BaseNode) NullTolerant() bool { return b.nullTolerant }

// AddInputPort declares an input port.
func (b *BaseNode) AddInputPort(p Port) { b.inputPorts[p.Name] = p }

// AddOutputPort declares an output port.
func (b *BaseNode) AddOutputPort(p Port) { b.outputPorts[p.Name] = p }

// MarkNullTolerant declares the node type as exempt from skip propagation.
// Call it from the constructor: null tolerance is a property of the type,
// not a runtime attribute.
func (b *BaseNode) MarkNullTolerant() { b.nullTolerant = true }

// ValidateInputs checks that every required input port of n holds a value,
// substituting declared defaults where available. It returns a
// *MissingInputError for the first required port left without a value.
func ValidateInputs(n Node) error {
	for name, port := range n.InputPorts() {
		if !port.Required {
			continue
		}
		if _, ok := n.Input(name); ok {
			continue
		}
		if port.Default != nil {
			n.SetInput(name, port.Default)
			continue
		}
		return &MissingInputError{NodeID: n.ID(), NodeType: n.Type(), Port: name}
	}
	return nil
}

// NormalizeOutputs fills declared output ports absent from result with the
// null tag so every execution records a value for every port.
func NormalizeOutputs(n Node, result map[string]any) map[string]any {
	if result == nil {
		result = make(map[string]any, len(n.OutputPorts()))
	}
	for name := range n.OutputPorts() {
		if _, ok := result[name]; !ok {
			result[name] = nil
		}
	}
	return result
}

// NullOutputs returns an output map with every declared port of n set to the
// null tag. Used when a node is skipped.
func NullOutputs(n Node) map[string]any {
	out := make(map[string]any, len(n.OutputPorts()))
	for name := range n.OutputPorts() {
		out[name] = nil
	}
	return out
}

// String implements fmt.Stringer for log output.
func (b *BaseNode) String() string {
	return fmt.Sprintf("%s[%s]", b.typeName, b.id)
}
