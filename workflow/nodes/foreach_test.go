package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadloop/weft/workflow"
)

func builtinRegistry(t *testing.T) *workflow.Registry {
	t.Helper()
	reg := workflow.NewRegistry(nil)
	RegisterBuiltins(Services{Registry: reg})
	return reg
}

func TestSimpleForEachSequential(t *testing.T) {
	n := NewSimpleForEachNode("fe", builtinRegistry(t), nil)
	n.SetInput("items", []any{" a ", " b ", " c "})
	n.SetInput("node_type", "TextStripNode")
	n.SetInput("item_port_name", "text")
	n.SetInput("result_port_name", "text")

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, out["results"])
	assert.Equal(t, float64(3), out["success_count"])
	assert.Equal(t, float64(0), out["error_count"])
}

func TestSimpleForEachParallelPreservesOrder(t *testing.T) {
	items := make([]any, 20)
	for i := range items {
		items[i] = string(rune('a' + i%26))
	}
	n := NewSimpleForEachNode("fe", builtinRegistry(t), nil)
	n.SetInput("items", items)
	n.SetInput("node_type", "TextStripNode")
	n.SetInput("item_port_name", "text")
	n.SetInput("result_port_name", "text")
	n.SetInput("parallel", true)
	n.SetInput("max_workers", float64(4))

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, items, out["results"], "parallel results keep item order")
}

func TestSimpleForEachEmptyItems(t *testing.T) {
	n := NewSimpleForEachNode("fe", builtinRegistry(t), nil)
	n.SetInput("items", []any{})
	n.SetInput("node_type", "TextStripNode")

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out["results"])
	assert.Equal(t, float64(0), out["success_count"])
}

func TestSimpleForEachUnknownNodeType(t *testing.T) {
	n := NewSimpleForEachNode("fe", builtinRegistry(t), nil)
	n.SetInput("items", []any{"x"})
	n.SetInput("node_type", "NoSuchNode")

	_, err := n.Process(context.Background())
	assert.Error(t, err)
}

func TestSimpleForEachCollectsIterationErrors(t *testing.T) {
	// ListToTextNode fails on empty lists, so the middle item errors.
	n := NewSimpleForEachNode("fe", builtinRegistry(t), nil)
	n.SetInput("items", []any{
		[]any{"ok-1"},
		[]any{},
		[]any{"ok-2"},
	})
	n.SetInput("node_type", "ListToTextNode")
	n.SetInput("item_port_name", "list")
	n.SetInput("result_port_name", "text")

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"ok-1", "ok-2"}, out["results"])
	assert.Equal(t, float64(2), out["success_count"])
	assert.Equal(t, float64(1), out["error_count"])

	errs := out["errors"].([]any)
	require.Len(t, errs, 1)
	entry := errs[0].(map[string]any)
	assert.Equal(t, float64(1), entry["index"])
}

func TestSimpleForEachStopsWithoutContinueOnError(t *testing.T) {
	n := NewSimpleForEachNode("fe", builtinRegistry(t), nil)
	n.SetInput("items", []any{
		[]any{},
		[]any{"never reached"},
	})
	n.SetInput("node_type", "ListToTextNode")
	n.SetInput("item_port_name", "list")
	n.SetInput("result_port_name", "text")
	n.SetInput("continue_on_error", false)

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(0), out["success_count"])
	assert.Equal(t, float64(1), out["error_count"], "iteration stops at the first failure")
}

func TestForEachNodeRunsSubWorkflow(t *testing.T) {
	n := NewForEachNode("fe", builtinRegistry(t), nil)
	n.SetInput("items", []any{" one ", " two "})
	n.SetInput("sub_workflow", map[string]any{
		"nodes": []any{
			map[string]any{"id": "entry", "type": "ForEachItemNode"},
			map[string]any{"id": "strip", "type": "TextStripNode"},
		},
		"connections": []any{
			map[string]any{"from_node": "entry", "from_port": "item", "to_node": "strip", "to_port": "text"},
		},
	})
	n.SetInput("result_node_id", "strip")
	n.SetInput("result_port_name", "text")

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"one", "two"}, out["results"])
	assert.Equal(t, float64(2), out["total_count"])
	assert.Equal(t, " two ", out["item_value"])
	assert.Equal(t, float64(1), out["current_index"])
}

func TestForEachNodeMaxIterations(t *testing.T) {
	n := NewForEachNode("fe", builtinRegistry(t), nil)
	n.SetInput("items", []any{"a", "b", "c", "d"})
	n.SetInput("sub_workflow", workflow.Definition{
		Nodes: []workflow.NodeDef{{ID: "entry", Type: "ForEachItemNode"}},
	})
	n.SetInput("result_node_id", "entry")
	n.SetInput("result_port_name", "item")
	n.SetInput("max_iterations", float64(2))

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out["results"])
	assert.Equal(t, float64(2), out["total_count"])
}

func TestForEachNodeEmptyItems(t *testing.T) {
	n := NewForEachNode("fe", builtinRegistry(t), nil)
	n.SetInput("items", []any{})
	n.SetInput("sub_workflow", workflow.Definition{
		Nodes: []workflow.NodeDef{{ID: "entry", Type: "ForEachItemNode"}},
	})
	n.SetInput("result_node_id", "entry")

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out["results"])
	assert.Nil(t, out["item_value"])
	assert.Equal(t, float64(-1), out["current_index"])
}

func TestForEachItemNode(t *testing.T) {
	n := NewForEachItemNode("item")
	n.SetInput("foreach_item", "payload")
	n.SetInput("foreach_index", float64(4))

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "payload", out["item"])
	assert.Equal(t, float64(4), out["index"])
}
