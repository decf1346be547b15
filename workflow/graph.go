package workflow

import (
	"fmt"
)

// Connection is a directed edge from an output port to an input port.
type Connection struct {
	FromNode string `json:"from_node"`
	FromPort string `json:"from_port"`
	ToNode   string `json:"to_node"`
	ToPort   string `json:"to_port"`
}

// NodeDef is one node entry in a graph definition.
type NodeDef struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	InputValues map[string]any `json:"input_values,omitempty"`
}

// Definition is the wire format for a workflow graph: the shape accepted by
// the execute endpoint, stored in model workflow files and embedded in
// ForEach sub-workflows.
type Definition struct {
	Nodes       []NodeDef    `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// NodeValue addresses one node input for preprocessing: model configs map
// request parameters and input files onto (node, input key) targets.
func (d *Definition) SetNodeInput(nodeID, key string, value any) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == nodeID {
			if d.Nodes[i].InputValues == nil {
				d.Nodes[i].InputValues = make(map[string]any)
			}
			d.Nodes[i].InputValues[key] = value
			return
		}
	}
	// Target node absent from the template: add a bare entry so the graph
	// build reports the unknown type instead of silently dropping the value.
	d.Nodes = append(d.Nodes, NodeDef{ID: nodeID, InputValues: map[string]any{key: value}})
}

// Graph is a directed acyclic graph of node instances and typed connections.
// A Graph is owned by a single execution and is not safe for concurrent
// mutation.
type Graph struct {
	nodes       map[string]Node
	nodeOrder   []string
	connections []Connection
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]Node)}
}

// AddNode adds a node instance to the graph.
func (g *Graph) AddNode(n Node) error {
	if _, exists := g.nodes[n.ID()]; exists {
		return fmt.Errorf("duplicate node id %q", n.ID())
	}
	g.nodes[n.ID()] = n
	g.nodeOrder = append(g.nodeOrder, n.ID())
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns node ids in insertion order.
func (g *Graph) Nodes() []string {
	return g.nodeOrder
}

// Connections returns the recorded edges.
func (g *Graph) Connections() []Connection {
	return g.connections
}

// Connect records a directed edge after validating that both endpoints exist
// and the port types are compatible.
func (g *Graph) Connect(conn Connection) error {
	src, ok := g.nodes[conn.FromNode]
	if !ok {
		return &ConnectionError{Conn: conn, Reason: "source node does not exist"}
	}
	dst, ok := g.nodes[conn.ToNode]
	if !ok {
		return &ConnectionError{Conn: conn, Reason: "target node does not exist"}
	}
	srcPort, ok := src.OutputPorts()[conn.FromPort]
	if !ok {
		return &ConnectionError{Conn: conn, Reason: fmt.Sprintf("output port not found on %s", src.Type())}
	}
	dstPort, ok := dst.InputPorts()[conn.ToPort]
	if !ok {
		return &ConnectionError{Conn: conn, Reason: fmt.Sprintf("input port not found on %s", dst.Type())}
	}
	if !CompatiblePortTypes(srcPort.Type, dstPort.Type) {
		return &ConnectionError{Conn: conn, Reason: fmt.Sprintf("incompatible port types %s -> %s", srcPort.Type, dstPort.Type)}
	}
	g.connections = append(g.connections, conn)
	return nil
}

// dependencies returns the ids of nodes feeding id, in connection order,
// without duplicates.
func (g *Graph) dependencies(id string) []string {
	var deps []string
	seen := make(map[string]bool)
	for _, conn := range g.connections {
		if conn.ToNode == id && !seen[conn.FromNode] {
			seen[conn.FromNode] = true
			deps = append(deps, conn.FromNode)
		}
	}
	return deps
}

// incoming returns the connections feeding id.
func (g *Graph) incoming(id string) []Connection {
	var in []Connection
	for _, conn := range g.connections {
		if conn.ToNode == id {
			in = append(in, conn)
		}
	}
	return in
}

// dfs colors for ExecutionOrder.
const (
	unvisited = iota
	visiting
	visited
)

// ExecutionOrder computes the order nodes must run in: a depth-first
// post-order walk that emits every dependency before its dependents. Ties
// are broken by node insertion order, which is stable within a run. The
// walk is iterative so deeply chained graphs cannot exhaust the stack. A
// cycle yields a *CycleError.
func (g *Graph) ExecutionOrder() ([]string, error) {
	state := make(map[string]int, len(g.nodes))
	order := make([]string, 0, len(g.nodes))

	for _, root := range g.nodeOrder {
		if state[root] != unvisited {
			continue
		}
		stack := []string{root}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			switch state[id] {
			case unvisited:
				state[id] = visiting
				deps := g.dependencies(id)
				// Push in reverse so the first dependency is visited first.
				for i := len(deps) - 1; i >= 0; i-- {
					dep := deps[i]
					switch state[dep] {
					case visiting:
						return nil, &CycleError{NodeID: dep}
					case unvisited:
						stack = append(stack, dep)
					}
				}
			case visiting:
				state[id] = visited
				order = append(order, id)
				stack = stack[:len(stack)-1]
			default:
				stack = stack[:len(stack)-1]
			}
		}
	}
	return order, nil
}

// BuildGraph constructs a graph from a definition using the registry to
// instantiate nodes. Construction is transactional: any failure returns a
// *BuildError and no graph.
func BuildGraph(def Definition, reg *Registry) (*Graph, error) {
	g := NewGraph()
	for _, nd := range def.Nodes {
		node, err := reg.New(nd.Type, nd.ID)
		if err != nil {
			return nil, &BuildError{Err: err}
		}
		for name, value := range nd.InputValues {
			node.SetInput(name, value)
		}
		if err := g.AddNode(node); err != nil {
			return nil, &BuildError{Err: err}
		}
	}
	for _, conn := range def.Connections {
		if err := g.Connect(conn); err != nil {
			return nil, &BuildError{Err: err}
		}
	}
	return g, nil
}
