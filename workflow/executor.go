package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Results maps node id to that node's recorded output map.
type Results map[string]map[string]any

// Executor runs a graph to completion. Nodes execute one at a time in
// topological order; the only intra-workflow parallelism lives inside
// ForEach nodes. An Executor is single-use, like the graph it owns.
type Executor struct {
	graph  *Graph
	logger *slog.Logger

	mu      sync.RWMutex
	results Results
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor creates an executor for the given graph.
func NewExecutor(graph *Graph, opts ...ExecutorOption) *Executor {
	e := &Executor{
		graph:   graph,
		logger:  slog.Default(),
		results: make(Results),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Results returns a snapshot of the per-node outputs recorded so far. Safe
// to call from other goroutines while the execution is in flight (the
// status endpoint polls running tasks).
func (e *Executor) Results() Results {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(Results, len(e.results))
	for id, m := range e.results {
		out[id] = m
	}
	return out
}

// NodeResult returns the recorded output map for one node.
func (e *Executor) NodeResult(nodeID string) (map[string]any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.results[nodeID]
	return m, ok
}

func (e *Executor) record(nodeID string, outputs map[string]any) {
	e.mu.Lock()
	e.results[nodeID] = outputs
	e.mu.Unlock()
}

// Execute runs every node in topological order and returns the collected
// per-node outputs. The first node failure aborts the run; nodes after the
// failed one are not executed. Cancelling ctx stops the run between nodes
// and propagates into the currently executing node.
func (e *Executor) Execute(ctx context.Context) (Results, error) {
	order, err := e.graph.ExecutionOrder()
	if err != nil {
		return nil, err
	}

	for _, nodeID := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node, _ := e.graph.Node(nodeID)
		if err := e.executeNode(ctx, node); err != nil {
			return nil, err
		}
	}
	return e.Results(), nil
}

// executeNode wires inputs, applies the skip predicate, validates required
// inputs and runs the node.
func (e *Executor) executeNode(ctx context.Context, node Node) error {
	skip := false
	for _, conn := range e.graph.incoming(node.ID()) {
		upstream, ok := e.NodeResult(conn.FromNode)
		if !ok {
			// Execution order guarantees upstream results exist; a miss is
			// an engine bug, not a user error.
			return &NodeError{NodeID: node.ID(), Err: fmt.Errorf("internal: upstream node %q has no recorded result", conn.FromNode)}
		}
		value := upstream[conn.FromPort]
		node.SetInput(conn.ToPort, value)
		if IsNull(value) {
			skip = true
		}
	}

	if skip && !node.NullTolerant() {
		e.logger.Debug("skipping node on null input",
			slog.String("node_id", node.ID()),
			slog.String("node_type", node.Type()))
		e.record(node.ID(), NullOutputs(node))
		return nil
	}

	if err := ValidateInputs(node); err != nil {
		return &NodeError{NodeID: node.ID(), Err: err}
	}

	e.logger.Debug("executing node",
		slog.String("node_id", node.ID()),
		slog.String("node_type", node.Type()))

	outputs, err := node.Process(ctx)
	if err != nil {
		e.logger.Error("node execution failed",
			slog.String("node_id", node.ID()),
			slog.String("node_type", node.Type()),
			slog.String("error", err.Error()))
		return &NodeError{NodeID: node.ID(), Err: err}
	}

	e.record(node.ID(), NormalizeOutputs(node, outputs))
	return nil
}
