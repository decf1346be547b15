package nodes

import (
	"context"
	"fmt"
	"math"

	"github.com/threadloop/weft/workflow"
)

// TextInputNode passes a text value through unchanged. It serves as the entry
// point workflow templates seed with request parameters.
type TextInputNode struct {
	workflow.BaseNode
}

func NewTextInputNode(id string) *TextInputNode {
	n := &TextInputNode{BaseNode: workflow.NewBaseNode("TextInputNode", id)}
	n.AddInputPort(workflow.Port{Name: "text", Type: workflow.TypeString, Required: true})
	n.AddOutputPort(workflow.Port{Name: "text", Type: workflow.TypeString})
	return n
}

func (n *TextInputNode) Process(ctx context.Context) (map[string]any, error) {
	text, _ := n.Input("text")
	return map[string]any{"text": text}, nil
}

// IntInputNode validates that its input is an integer value.
type IntInputNode struct {
	workflow.BaseNode
}

func NewIntInputNode(id string) *IntInputNode {
	n := &IntInputNode{BaseNode: workflow.NewBaseNode("IntInputNode", id)}
	n.AddInputPort(workflow.Port{Name: "value", Type: workflow.TypeNumber, Required: true, Tooltip: "Integer value"})
	n.AddOutputPort(workflow.Port{Name: "value", Type: workflow.TypeNumber})
	return n
}

func (n *IntInputNode) Process(ctx context.Context) (map[string]any, error) {
	v, _ := n.Input("value")
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("value %v cannot be converted to integer", v)
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("value %v is not an integer", v)
	}
	return map[string]any{"value": f}, nil
}

// FloatInputNode validates that its input is a numeric value.
type FloatInputNode struct {
	workflow.BaseNode
}

func NewFloatInputNode(id string) *FloatInputNode {
	n := &FloatInputNode{BaseNode: workflow.NewBaseNode("FloatInputNode", id)}
	n.AddInputPort(workflow.Port{Name: "value", Type: workflow.TypeNumber, Required: true, Tooltip: "Float value"})
	n.AddOutputPort(workflow.Port{Name: "value", Type: workflow.TypeNumber})
	return n
}

func (n *FloatInputNode) Process(ctx context.Context) (map[string]any, error) {
	v, _ := n.Input("value")
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("value %v cannot be converted to float", v)
	}
	return map[string]any{"value": f}, nil
}

// BoolInputNode validates that its input is a boolean value.
type BoolInputNode struct {
	workflow.BaseNode
}

func NewBoolInputNode(id string) *BoolInputNode {
	n := &BoolInputNode{BaseNode: workflow.NewBaseNode("BoolInputNode", id)}
	n.AddInputPort(workflow.Port{Name: "value", Type: workflow.TypeBoolean, Required: true, Tooltip: "Boolean value"})
	n.AddOutputPort(workflow.Port{Name: "value", Type: workflow.TypeBoolean})
	return n
}

func (n *BoolInputNode) Process(ctx context.Context) (map[string]any, error) {
	v, _ := n.Input("value")
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("value %v is not a boolean", v)
	}
	return map[string]any{"value": b}, nil
}
