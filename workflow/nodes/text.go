package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/threadloop/weft/workflow"
)

// TextStripNode trims leading and trailing whitespace from its input.
type TextStripNode struct {
	workflow.BaseNode
}

func NewTextStripNode(id string) *TextStripNode {
	n := &TextStripNode{BaseNode: workflow.NewBaseNode("TextStripNode", id)}
	n.AddInputPort(workflow.Port{Name: "text", Type: workflow.TypeString, Required: true})
	n.AddOutputPort(workflow.Port{Name: "text", Type: workflow.TypeString})
	return n
}

func (n *TextStripNode) Process(ctx context.Context) (map[string]any, error) {
	return map[string]any{"text": strings.TrimSpace(stringInput(n, "text", ""))}, nil
}

// TextCombinerNode fills a template prompt containing {text_a}, {text_b} and
// {text_c} placeholders, reporting which placeholders the template used.
type TextCombinerNode struct {
	workflow.BaseNode
}

func NewTextCombinerNode(id string) *TextCombinerNode {
	n := &TextCombinerNode{BaseNode: workflow.NewBaseNode("TextCombinerNode", id)}
	n.AddInputPort(workflow.Port{Name: "prompt", Type: workflow.TypeString, Required: true,
		Tooltip: "Template with variables like {text_a}, {text_b}, {text_c}"})
	n.AddInputPort(workflow.Port{Name: "text_a", Type: workflow.TypeString, Required: false, Default: ""})
	n.AddInputPort(workflow.Port{Name: "text_b", Type: workflow.TypeString, Required: false, Default: ""})
	n.AddInputPort(workflow.Port{Name: "text_c", Type: workflow.TypeString, Required: false, Default: ""})
	n.AddOutputPort(workflow.Port{Name: "combined_text", Type: workflow.TypeString})
	n.AddOutputPort(workflow.Port{Name: "used_variables", Type: workflow.TypeObject})
	return n
}

func (n *TextCombinerNode) Process(ctx context.Context) (map[string]any, error) {
	prompt := stringInput(n, "prompt", "")
	used := make(map[string]any, 3)
	combined := prompt
	for _, name := range []string{"text_a", "text_b", "text_c"} {
		placeholder := "{" + name + "}"
		used[name] = strings.Contains(prompt, placeholder)
		combined = strings.ReplaceAll(combined, placeholder, stringInput(n, name, ""))
	}
	return map[string]any{
		"combined_text":  combined,
		"used_variables": used,
	}, nil
}

// TextToListNode wraps a text value into a list, optionally repeated.
type TextToListNode struct {
	workflow.BaseNode
}

func NewTextToListNode(id string) *TextToListNode {
	n := &TextToListNode{BaseNode: workflow.NewBaseNode("TextToListNode", id)}
	n.AddInputPort(workflow.Port{Name: "text", Type: workflow.TypeString, Required: true})
	n.AddInputPort(workflow.Port{Name: "repeat_count", Type: workflow.TypeNumber, Required: false,
		Tooltip: "Number of times to repeat the text (default: 1)"})
	n.AddOutputPort(workflow.Port{Name: "list", Type: workflow.TypeArray})
	return n
}

func (n *TextToListNode) Process(ctx context.Context) (map[string]any, error) {
	text, _ := n.Input("text")
	count := intInput(n, "repeat_count", 1)
	if count < 1 {
		return nil, fmt.Errorf("repeat_count must be a positive integer, got %d", count)
	}
	list := make([]any, count)
	for i := range list {
		list[i] = text
	}
	return map[string]any{"list": list}, nil
}

// ListToTextNode takes the first element of a list as its text output.
type ListToTextNode struct {
	workflow.BaseNode
}

func NewListToTextNode(id string) *ListToTextNode {
	n := &ListToTextNode{BaseNode: workflow.NewBaseNode("ListToTextNode", id)}
	n.AddInputPort(workflow.Port{Name: "list", Type: workflow.TypeArray, Required: true})
	n.AddOutputPort(workflow.Port{Name: "text", Type: workflow.TypeString})
	return n
}

func (n *ListToTextNode) Process(ctx context.Context) (map[string]any, error) {
	list, ok := listInput(n, "list")
	if !ok {
		return nil, fmt.Errorf("input must be a list")
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("input list is empty")
	}
	return map[string]any{"text": list[0]}, nil
}
