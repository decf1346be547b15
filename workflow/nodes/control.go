package nodes

import (
	"context"
	"fmt"

	"github.com/threadloop/weft/workflow"
)

// defaultMergeInputs is the input port count before a graph definition
// overrides it via the input_count input value.
const defaultMergeInputs = 2

// MergeNode rejoins the branches a SwitchNode fanned out: it selects the
// first non-null value among input_0..input_{n-1}. It is null tolerant, the
// whole point being to run after dead branches delivered the null tag.
type MergeNode struct {
	workflow.BaseNode
	inputCount int
}

func NewMergeNode(id string) *MergeNode {
	n := &MergeNode{BaseNode: workflow.NewBaseNode("MergeNode", id)}
	n.MarkNullTolerant()
	n.AddInputPort(workflow.Port{Name: "input_count", Type: workflow.TypeNumber, Required: false,
		Tooltip: "Number of merged input ports (default: 2)"})
	n.declareInputs(defaultMergeInputs)
	n.AddOutputPort(workflow.Port{Name: "output", Type: workflow.TypeAny,
		Tooltip: "First non-null input value"})
	n.AddOutputPort(workflow.Port{Name: "selected_index", Type: workflow.TypeNumber,
		Tooltip: "Index of the selected input, -1 when all were null"})
	n.AddOutputPort(workflow.Port{Name: "has_result", Type: workflow.TypeBoolean})
	return n
}

func (n *MergeNode) declareInputs(count int) {
	for i := n.inputCount; i < count; i++ {
		n.AddInputPort(workflow.Port{Name: fmt.Sprintf("input_%d", i), Type: workflow.TypeAny, Required: false})
	}
	if count > n.inputCount {
		n.inputCount = count
	}
}

// SetInput grows the merged input ports when input_count is seeded, before
// connection validation sees them.
func (n *MergeNode) SetInput(name string, value any) {
	n.BaseNode.SetInput(name, value)
	if name == "input_count" {
		if count, ok := toFloat(value); ok && int(count) > 0 {
			n.declareInputs(int(count))
		}
	}
}

func (n *MergeNode) Process(ctx context.Context) (map[string]any, error) {
	for i := 0; i < n.inputCount; i++ {
		value, ok := n.Input(fmt.Sprintf("input_%d", i))
		if ok && !workflow.IsNull(value) {
			return map[string]any{
				"output":         value,
				"selected_index": float64(i),
				"has_result":     true,
			}, nil
		}
	}
	return map[string]any{
		"output":         nil,
		"selected_index": float64(-1),
		"has_result":     false,
	}, nil
}

// PassThroughNode forwards data only while its control input is live: a null
// control gate emits null instead, unless pass_on_empty is set. Null
// tolerant so it can observe the gate's state.
type PassThroughNode struct {
	workflow.BaseNode
}

func NewPassThroughNode(id string) *PassThroughNode {
	n := &PassThroughNode{BaseNode: workflow.NewBaseNode("PassThroughNode", id)}
	n.MarkNullTolerant()
	n.AddInputPort(workflow.Port{Name: "data", Type: workflow.TypeAny, Required: false,
		Tooltip: "Value to forward"})
	n.AddInputPort(workflow.Port{Name: "control", Type: workflow.TypeAny, Required: false,
		Tooltip: "Gate: data is forwarded only while this is non-null"})
	n.AddInputPort(workflow.Port{Name: "pass_on_empty", Type: workflow.TypeBoolean, Required: false,
		Tooltip: "Forward data even when the gate is null (default: false)"})
	n.AddOutputPort(workflow.Port{Name: "data", Type: workflow.TypeAny})
	return n
}

func (n *PassThroughNode) Process(ctx context.Context) (map[string]any, error) {
	control, _ := n.Input("control")
	if workflow.IsNull(control) && !boolInput(n, "pass_on_empty", false) {
		return map[string]any{"data": nil}, nil
	}
	data, _ := n.Input("data")
	return map[string]any{"data": data}, nil
}
