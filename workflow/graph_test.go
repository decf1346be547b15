package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubNode is a minimal node for engine tests: declared ports plus a
// pluggable process function.
type stubNode struct {
	BaseNode
	process func(n *stubNode) (map[string]any, error)
}

func (n *stubNode) Process(ctx context.Context) (map[string]any, error) {
	if n.process == nil {
		return map[string]any{}, nil
	}
	return n.process(n)
}

func newStub(id string, inputs, outputs []Port) *stubNode {
	n := &stubNode{BaseNode: NewBaseNode("StubNode", id)}
	for _, p := range inputs {
		n.AddInputPort(p)
	}
	for _, p := range outputs {
		n.AddOutputPort(p)
	}
	return n
}

func TestCompatiblePortTypes(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"exact match", TypeString, TypeString, true},
		{"any producer", TypeAny, TypeNumber, true},
		{"any consumer", TypeArray, TypeAny, true},
		{"object feeds specific", TypeObject, TypeString, true},
		{"specific cannot feed object", TypeString, TypeObject, false},
		{"string to number", TypeString, TypeNumber, false},
		{"boolean to array", TypeBoolean, TypeArray, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompatiblePortTypes(tt.from, tt.to))
		})
	}
}

func TestGraphConnectValidation(t *testing.T) {
	newTestGraph := func(t *testing.T) *Graph {
		g := NewGraph()
		src := newStub("src", nil, []Port{{Name: "out", Type: TypeString}})
		dst := newStub("dst", []Port{{Name: "in", Type: TypeNumber}}, nil)
		require.NoError(t, g.AddNode(src))
		require.NoError(t, g.AddNode(dst))
		return g
	}

	tests := []struct {
		name string
		conn Connection
	}{
		{"missing source node", Connection{FromNode: "ghost", FromPort: "out", ToNode: "dst", ToPort: "in"}},
		{"missing target node", Connection{FromNode: "src", FromPort: "out", ToNode: "ghost", ToPort: "in"}},
		{"missing output port", Connection{FromNode: "src", FromPort: "nope", ToNode: "dst", ToPort: "in"}},
		{"missing input port", Connection{FromNode: "src", FromPort: "out", ToNode: "dst", ToPort: "nope"}},
		{"incompatible types", Connection{FromNode: "src", FromPort: "out", ToNode: "dst", ToPort: "in"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGraph(t)
			err := g.Connect(tt.conn)
			require.Error(t, err)
			var connErr *ConnectionError
			assert.ErrorAs(t, err, &connErr)
		})
	}
}

func TestGraphRejectsDuplicateNodeID(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode(newStub("n1", nil, nil)))
	assert.Error(t, g.AddNode(newStub("n1", nil, nil)))
}

func TestExecutionOrderChain(t *testing.T) {
	g := NewGraph()
	out := []Port{{Name: "out", Type: TypeAny}}
	in := []Port{{Name: "in", Type: TypeAny}}
	// Add in reverse so the order cannot come from insertion alone.
	require.NoError(t, g.AddNode(newStub("c", in, nil)))
	require.NoError(t, g.AddNode(newStub("b", in, out)))
	require.NoError(t, g.AddNode(newStub("a", nil, out)))
	require.NoError(t, g.Connect(Connection{FromNode: "a", FromPort: "out", ToNode: "b", ToPort: "in"}))
	require.NoError(t, g.Connect(Connection{FromNode: "b", FromPort: "out", ToNode: "c", ToPort: "in"}))

	order, err := g.ExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestExecutionOrderWithoutConnections(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode(newStub("first", nil, nil)))
	require.NoError(t, g.AddNode(newStub("second", nil, nil)))
	require.NoError(t, g.AddNode(newStub("third", nil, nil)))

	order, err := g.ExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order,
		"disconnected nodes run in insertion order")
}

func TestExecutionOrderCycle(t *testing.T) {
	g := NewGraph()
	ports := []Port{{Name: "v", Type: TypeAny}}
	a := newStub("a", ports, ports)
	b := newStub("b", ports, ports)
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddNode(b))
	require.NoError(t, g.Connect(Connection{FromNode: "a", FromPort: "v", ToNode: "b", ToPort: "v"}))
	require.NoError(t, g.Connect(Connection{FromNode: "b", FromPort: "v", ToNode: "a", ToPort: "v"}))

	_, err := g.ExecutionOrder()
	require.Error(t, err)
	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestBuildGraphUnknownType(t *testing.T) {
	reg := NewRegistry(nil)
	def := Definition{Nodes: []NodeDef{{ID: "n1", Type: "NoSuchNode"}}}

	_, err := BuildGraph(def, reg)
	require.Error(t, err)
	var buildErr *BuildError
	assert.ErrorAs(t, err, &buildErr)
	assert.ErrorIs(t, err, ErrUnknownNodeType)
}

func TestBuildGraphAppliesInputValues(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(Descriptor{
		Type: "StubNode",
		New: func(id string) Node {
			return newStub(id, []Port{{Name: "text", Type: TypeString}}, nil)
		},
	})

	def := Definition{Nodes: []NodeDef{{
		ID:          "n1",
		Type:        "StubNode",
		InputValues: map[string]any{"text": "hello"},
	}}}

	g, err := BuildGraph(def, reg)
	require.NoError(t, err)
	node, ok := g.Node("n1")
	require.True(t, ok)
	v, ok := node.Input("text")
	require.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestDefinitionSetNodeInput(t *testing.T) {
	def := Definition{Nodes: []NodeDef{{ID: "n1", Type: "StubNode"}}}

	def.SetNodeInput("n1", "prompt", "a cat")
	require.NotNil(t, def.Nodes[0].InputValues)
	assert.Equal(t, "a cat", def.Nodes[0].InputValues["prompt"])

	// Unknown targets become bare entries so the build surfaces the mistake.
	def.SetNodeInput("missing", "prompt", "x")
	require.Len(t, def.Nodes, 2)
	assert.Equal(t, "missing", def.Nodes[1].ID)
	assert.Empty(t, def.Nodes[1].Type)
}
