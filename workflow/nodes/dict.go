package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/threadloop/weft/workflow"
)

// DictGetNode reads one key out of an object, with an optional default.
type DictGetNode struct {
	workflow.BaseNode
}

func NewDictGetNode(id string) *DictGetNode {
	n := &DictGetNode{BaseNode: workflow.NewBaseNode("DictGetNode", id)}
	n.AddInputPort(workflow.Port{Name: "dict", Type: workflow.TypeObject, Required: true})
	n.AddInputPort(workflow.Port{Name: "key", Type: workflow.TypeString, Required: true})
	n.AddInputPort(workflow.Port{Name: "default_value", Type: workflow.TypeAny, Required: false,
		Tooltip: "Returned when the key is absent"})
	n.AddOutputPort(workflow.Port{Name: "value", Type: workflow.TypeAny})
	n.AddOutputPort(workflow.Port{Name: "exists", Type: workflow.TypeBoolean})
	return n
}

func (n *DictGetNode) Process(ctx context.Context) (map[string]any, error) {
	dict := mapInput(n, "dict")
	if dict == nil {
		return nil, fmt.Errorf("dict input must be an object")
	}
	key := stringInput(n, "key", "")
	value, exists := dict[key]
	if !exists {
		value, _ = n.Input("default_value")
	}
	return map[string]any{"value": value, "exists": exists}, nil
}

// DictSetNode writes one key into a copy of an object.
type DictSetNode struct {
	workflow.BaseNode
}

func NewDictSetNode(id string) *DictSetNode {
	n := &DictSetNode{BaseNode: workflow.NewBaseNode("DictSetNode", id)}
	n.AddInputPort(workflow.Port{Name: "dict", Type: workflow.TypeObject, Required: true})
	n.AddInputPort(workflow.Port{Name: "key", Type: workflow.TypeString, Required: true})
	n.AddInputPort(workflow.Port{Name: "value", Type: workflow.TypeAny, Required: true})
	n.AddOutputPort(workflow.Port{Name: "updated_dict", Type: workflow.TypeObject})
	return n
}

func (n *DictSetNode) Process(ctx context.Context) (map[string]any, error) {
	dict := mapInput(n, "dict")
	if dict == nil {
		return nil, fmt.Errorf("dict input must be an object")
	}
	value, _ := n.Input("value")
	updated := make(map[string]any, len(dict)+1)
	for k, v := range dict {
		updated[k] = v
	}
	updated[stringInput(n, "key", "")] = value
	return map[string]any{"updated_dict": updated}, nil
}

// DictMergeNode merges two or three objects. Later inputs win on duplicate
// keys unless overwrite=false.
type DictMergeNode struct {
	workflow.BaseNode
}

func NewDictMergeNode(id string) *DictMergeNode {
	n := &DictMergeNode{BaseNode: workflow.NewBaseNode("DictMergeNode", id)}
	n.AddInputPort(workflow.Port{Name: "dict1", Type: workflow.TypeObject, Required: true})
	n.AddInputPort(workflow.Port{Name: "dict2", Type: workflow.TypeObject, Required: true})
	n.AddInputPort(workflow.Port{Name: "dict3", Type: workflow.TypeObject, Required: false})
	n.AddInputPort(workflow.Port{Name: "overwrite", Type: workflow.TypeBoolean, Required: false,
		Tooltip: "Overwrite duplicate keys (default: true)"})
	n.AddOutputPort(workflow.Port{Name: "merged_dict", Type: workflow.TypeObject})
	return n
}

func (n *DictMergeNode) Process(ctx context.Context) (map[string]any, error) {
	dict1 := mapInput(n, "dict1")
	dict2 := mapInput(n, "dict2")
	if dict1 == nil || dict2 == nil {
		return nil, fmt.Errorf("dict1 and dict2 inputs must be objects")
	}
	overwrite := boolInput(n, "overwrite", true)

	merged := make(map[string]any, len(dict1)+len(dict2))
	for k, v := range dict1 {
		merged[k] = v
	}
	for _, extra := range []map[string]any{dict2, mapInput(n, "dict3")} {
		for k, v := range extra {
			if _, exists := merged[k]; exists && !overwrite {
				continue
			}
			merged[k] = v
		}
	}
	return map[string]any{"merged_dict": merged}, nil
}

// JSONParseNode parses a JSON string into an object, tolerating markdown
// code fences around the payload (LLM outputs commonly carry them).
type JSONParseNode struct {
	workflow.BaseNode
}

func NewJSONParseNode(id string) *JSONParseNode {
	n := &JSONParseNode{BaseNode: workflow.NewBaseNode("JSONParseNode", id)}
	n.AddInputPort(workflow.Port{Name: "json_string", Type: workflow.TypeString, Required: true})
	n.AddOutputPort(workflow.Port{Name: "json_object", Type: workflow.TypeObject})
	return n
}

func (n *JSONParseNode) Process(ctx context.Context) (map[string]any, error) {
	text := strings.TrimSpace(stringInput(n, "json_string", ""))
	if strings.HasPrefix(text, "```") {
		if i := strings.Index(text, "\n"); i != -1 {
			text = strings.TrimSpace(text[i:])
			text = strings.TrimSpace(strings.TrimSuffix(text, "```"))
		}
	}
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON string: %w", err)
	}
	return map[string]any{"json_object": parsed}, nil
}
