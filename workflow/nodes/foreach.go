package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/threadloop/weft/workflow"
)

// iteration is the outcome of processing one item: either a collected result
// or an error entry carrying the index and original item.
type iteration struct {
	ok     bool
	result any
	err    string
	index  int
	item   any
}

// collectIterations folds per-item outcomes, already in index order, into
// the shared ForEach output shape.
func collectIterations(iters []iteration) map[string]any {
	results := make([]any, 0, len(iters))
	errs := make([]any, 0)
	for _, it := range iters {
		if it.ok {
			results = append(results, it.result)
			continue
		}
		errs = append(errs, map[string]any{
			"index": float64(it.index),
			"item":  it.item,
			"error": it.err,
		})
	}
	return map[string]any{
		"results":       results,
		"success_count": float64(len(results)),
		"error_count":   float64(len(errs)),
		"errors":        errs,
	}
}

// runIterations drives one run function over items, sequentially or in
// parallel. Parallel outcomes land in index order; maxWorkers>0 bounds
// concurrency with a semaphore. Sequential mode stops at the first failure
// unless continueOnError is set.
func runIterations(ctx context.Context, items []any, parallel, continueOnError bool, maxWorkers int,
	run func(ctx context.Context, index int, item any) iteration) []iteration {

	if !parallel {
		iters := make([]iteration, 0, len(items))
		for index, item := range items {
			it := run(ctx, index, item)
			iters = append(iters, it)
			if !it.ok && !continueOnError {
				break
			}
		}
		return iters
	}

	iters := make([]iteration, len(items))
	var sem chan struct{}
	if maxWorkers > 0 {
		sem = make(chan struct{}, maxWorkers)
	}
	var wg sync.WaitGroup
	for index, item := range items {
		wg.Add(1)
		go func(index int, item any) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			iters[index] = run(ctx, index, item)
		}(index, item)
	}
	wg.Wait()
	return iters
}

// SimpleForEachNode runs a fresh node of a given type for every item in a
// list and collects one output port per item. The lighter-weight sibling of
// ForEachNode for single-node iteration bodies.
type SimpleForEachNode struct {
	workflow.BaseNode
	registry *workflow.Registry
	logger   *slog.Logger
}

func NewSimpleForEachNode(id string, registry *workflow.Registry, logger *slog.Logger) *SimpleForEachNode {
	if logger == nil {
		logger = slog.Default()
	}
	n := &SimpleForEachNode{
		BaseNode: workflow.NewBaseNode("SimpleForEachNode", id),
		registry: registry,
		logger:   logger,
	}
	n.AddInputPort(workflow.Port{Name: "items", Type: workflow.TypeArray, Required: true,
		Tooltip: "List of items to iterate over"})
	n.AddInputPort(workflow.Port{Name: "node_type", Type: workflow.TypeString, Required: true,
		Tooltip: "Node type executed for each item"})
	n.AddInputPort(workflow.Port{Name: "item_port_name", Type: workflow.TypeString, Required: false, Default: "text",
		Tooltip: "Input port receiving the item (default: 'text')"})
	n.AddInputPort(workflow.Port{Name: "result_port_name", Type: workflow.TypeString, Required: false, Default: "result",
		Tooltip: "Output port collected per item (default: 'result')"})
	n.AddInputPort(workflow.Port{Name: "node_config", Type: workflow.TypeObject, Required: false,
		Tooltip: "Extra input values applied to every instance"})
	n.AddInputPort(workflow.Port{Name: "parallel", Type: workflow.TypeBoolean, Required: false,
		Tooltip: "Run iterations concurrently (default: false)"})
	n.AddInputPort(workflow.Port{Name: "continue_on_error", Type: workflow.TypeBoolean, Required: false,
		Tooltip: "Keep going after a failed iteration (default: true)"})
	n.AddInputPort(workflow.Port{Name: "max_workers", Type: workflow.TypeNumber, Required: false,
		Tooltip: "Concurrency bound in parallel mode"})
	n.AddOutputPort(workflow.Port{Name: "results", Type: workflow.TypeArray})
	n.AddOutputPort(workflow.Port{Name: "success_count", Type: workflow.TypeNumber})
	n.AddOutputPort(workflow.Port{Name: "error_count", Type: workflow.TypeNumber})
	n.AddOutputPort(workflow.Port{Name: "errors", Type: workflow.TypeArray})
	return n
}

func (n *SimpleForEachNode) Process(ctx context.Context) (map[string]any, error) {
	items, ok := listInput(n, "items")
	if !ok {
		return nil, fmt.Errorf("items must be a list")
	}
	nodeType := stringInput(n, "node_type", "")
	itemPort := stringInput(n, "item_port_name", "text")
	resultPort := stringInput(n, "result_port_name", "result")
	nodeConfig := mapInput(n, "node_config")
	parallel := boolInput(n, "parallel", false)
	continueOnError := boolInput(n, "continue_on_error", true)
	maxWorkers := intInput(n, "max_workers", 0)

	if !n.registry.Has(nodeType) {
		return nil, fmt.Errorf("unknown node type %q", nodeType)
	}

	n.logger.Info("foreach starting",
		slog.String("node_id", n.ID()),
		slog.String("item_node_type", nodeType),
		slog.Int("items", len(items)))

	iters := runIterations(ctx, items, parallel, continueOnError, maxWorkers,
		func(ctx context.Context, index int, item any) iteration {
			result, err := n.runItem(ctx, item, nodeType, itemPort, resultPort, nodeConfig)
			if err != nil {
				n.logger.Error("foreach iteration failed",
					slog.String("node_id", n.ID()),
					slog.Int("index", index),
					slog.String("error", err.Error()))
				return iteration{index: index, item: item, err: err.Error()}
			}
			return iteration{ok: true, index: index, item: item, result: result}
		})

	out := collectIterations(iters)
	n.logger.Info("foreach completed",
		slog.String("node_id", n.ID()),
		slog.Any("succeeded", out["success_count"]),
		slog.Any("failed", out["error_count"]))
	return out, nil
}

func (n *SimpleForEachNode) runItem(ctx context.Context, item any, nodeType, itemPort, resultPort string, config map[string]any) (any, error) {
	node, err := n.registry.New(nodeType, "")
	if err != nil {
		return nil, err
	}
	node.SetInput(itemPort, item)
	for key, value := range config {
		if _, declared := node.InputPorts()[key]; declared {
			node.SetInput(key, value)
		}
	}
	if err := workflow.ValidateInputs(node); err != nil {
		return nil, err
	}
	outputs, err := node.Process(ctx)
	if err != nil {
		return nil, err
	}
	result, ok := outputs[resultPort]
	if !ok {
		return nil, fmt.Errorf("result port %q not found in %s outputs", resultPort, nodeType)
	}
	return result, nil
}

// ForEachNode executes an embedded sub-workflow once per item. Each
// iteration builds a fresh graph from the definition, injects the item and
// its index into any node declaring foreach_item / foreach_index input
// ports, runs it, and reads the configured result node output.
type ForEachNode struct {
	workflow.BaseNode
	registry *workflow.Registry
	logger   *slog.Logger
}

func NewForEachNode(id string, registry *workflow.Registry, logger *slog.Logger) *ForEachNode {
	if logger == nil {
		logger = slog.Default()
	}
	n := &ForEachNode{
		BaseNode: workflow.NewBaseNode("ForEachNode", id),
		registry: registry,
		logger:   logger,
	}
	n.AddInputPort(workflow.Port{Name: "items", Type: workflow.TypeArray, Required: true,
		Tooltip: "List of items to iterate over"})
	n.AddInputPort(workflow.Port{Name: "sub_workflow", Type: workflow.TypeObject, Required: true,
		Tooltip: "Embedded graph definition (nodes and connections)"})
	n.AddInputPort(workflow.Port{Name: "result_node_id", Type: workflow.TypeString, Required: true,
		Tooltip: "Node in the sub-workflow whose output to collect"})
	n.AddInputPort(workflow.Port{Name: "result_port_name", Type: workflow.TypeString, Required: false, Default: "result",
		Tooltip: "Output port to collect (default: 'result')"})
	n.AddInputPort(workflow.Port{Name: "parallel", Type: workflow.TypeBoolean, Required: false,
		Tooltip: "Run iterations concurrently (default: false)"})
	n.AddInputPort(workflow.Port{Name: "continue_on_error", Type: workflow.TypeBoolean, Required: false,
		Tooltip: "Keep going after a failed iteration (default: true)"})
	n.AddInputPort(workflow.Port{Name: "max_iterations", Type: workflow.TypeNumber, Required: false,
		Tooltip: "Cap on the number of items processed"})
	n.AddOutputPort(workflow.Port{Name: "results", Type: workflow.TypeArray})
	n.AddOutputPort(workflow.Port{Name: "item_value", Type: workflow.TypeAny,
		Tooltip: "Last item processed"})
	n.AddOutputPort(workflow.Port{Name: "current_index", Type: workflow.TypeNumber})
	n.AddOutputPort(workflow.Port{Name: "total_count", Type: workflow.TypeNumber})
	n.AddOutputPort(workflow.Port{Name: "success_count", Type: workflow.TypeNumber})
	n.AddOutputPort(workflow.Port{Name: "error_count", Type: workflow.TypeNumber})
	n.AddOutputPort(workflow.Port{Name: "errors", Type: workflow.TypeArray})
	return n
}

func (n *ForEachNode) Process(ctx context.Context) (map[string]any, error) {
	items, ok := listInput(n, "items")
	if !ok {
		return nil, fmt.Errorf("items must be a list")
	}
	def, err := n.subWorkflow()
	if err != nil {
		return nil, err
	}
	resultNodeID := stringInput(n, "result_node_id", "")
	resultPort := stringInput(n, "result_port_name", "result")
	parallel := boolInput(n, "parallel", false)
	continueOnError := boolInput(n, "continue_on_error", true)

	if maxIterations := intInput(n, "max_iterations", 0); maxIterations > 0 && maxIterations < len(items) {
		items = items[:maxIterations]
	}

	n.logger.Info("foreach starting",
		slog.String("node_id", n.ID()),
		slog.Int("items", len(items)))

	iters := runIterations(ctx, items, parallel, continueOnError, 0,
		func(ctx context.Context, index int, item any) iteration {
			result, err := n.runSubWorkflow(ctx, def, item, index, resultNodeID, resultPort)
			if err != nil {
				n.logger.Error("foreach iteration failed",
					slog.String("node_id", n.ID()),
					slog.Int("index", index),
					slog.String("error", err.Error()))
				return iteration{index: index, item: item, err: err.Error()}
			}
			return iteration{ok: true, index: index, item: item, result: result}
		})

	out := collectIterations(iters)
	out["total_count"] = float64(len(items))
	if len(items) > 0 {
		out["item_value"] = items[len(items)-1]
		out["current_index"] = float64(len(items) - 1)
	} else {
		out["item_value"] = nil
		out["current_index"] = float64(-1)
	}
	n.logger.Info("foreach completed",
		slog.String("node_id", n.ID()),
		slog.Any("succeeded", out["success_count"]),
		slog.Any("failed", out["error_count"]))
	return out, nil
}

// subWorkflow decodes the embedded definition. Graph submissions deliver it
// as a JSON object; programmatic callers may seed a Definition directly.
func (n *ForEachNode) subWorkflow() (workflow.Definition, error) {
	value, _ := n.Input("sub_workflow")
	switch v := value.(type) {
	case workflow.Definition:
		return v, nil
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return workflow.Definition{}, fmt.Errorf("encode sub_workflow: %w", err)
		}
		var def workflow.Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return workflow.Definition{}, fmt.Errorf("decode sub_workflow: %w", err)
		}
		return def, nil
	default:
		return workflow.Definition{}, fmt.Errorf("sub_workflow must be a graph definition object")
	}
}

func (n *ForEachNode) runSubWorkflow(ctx context.Context, def workflow.Definition, item any, index int, resultNodeID, resultPort string) (any, error) {
	graph, err := workflow.BuildGraph(def, n.registry)
	if err != nil {
		return nil, err
	}

	for _, nodeID := range graph.Nodes() {
		node, _ := graph.Node(nodeID)
		if _, declared := node.InputPorts()["foreach_item"]; declared {
			node.SetInput("foreach_item", item)
		}
		if _, declared := node.InputPorts()["foreach_index"]; declared {
			node.SetInput("foreach_index", float64(index))
		}
	}

	executor := workflow.NewExecutor(graph, workflow.WithExecutorLogger(n.logger))
	results, err := executor.Execute(ctx)
	if err != nil {
		return nil, err
	}

	nodeResults, ok := results[resultNodeID]
	if !ok {
		return nil, fmt.Errorf("result node %q not found in execution results", resultNodeID)
	}
	result, ok := nodeResults[resultPort]
	if !ok {
		return nil, fmt.Errorf("result port %q not found in node %q outputs", resultPort, resultNodeID)
	}
	return result, nil
}

// ForEachItemNode is the conventional entry point of a ForEach sub-workflow:
// it receives the injected iteration context and exposes it on ordinary
// output ports.
type ForEachItemNode struct {
	workflow.BaseNode
}

func NewForEachItemNode(id string) *ForEachItemNode {
	n := &ForEachItemNode{BaseNode: workflow.NewBaseNode("ForEachItemNode", id)}
	n.AddInputPort(workflow.Port{Name: "foreach_item", Type: workflow.TypeAny, Required: true,
		Tooltip: "Current item, injected by the enclosing ForEachNode"})
	n.AddInputPort(workflow.Port{Name: "foreach_index", Type: workflow.TypeNumber, Required: false,
		Tooltip: "Current index, injected by the enclosing ForEachNode"})
	n.AddOutputPort(workflow.Port{Name: "item", Type: workflow.TypeAny})
	n.AddOutputPort(workflow.Port{Name: "index", Type: workflow.TypeNumber})
	return n
}

func (n *ForEachItemNode) Process(ctx context.Context) (map[string]any, error) {
	item, _ := n.Input("foreach_item")
	return map[string]any{
		"item":  item,
		"index": floatInput(n, "foreach_index", 0),
	}, nil
}
