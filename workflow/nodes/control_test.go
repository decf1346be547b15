package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeNodeSelectsFirstNonNull(t *testing.T) {
	n := NewMergeNode("m")
	n.SetInput("input_0", nil)
	n.SetInput("input_1", "survivor")

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "survivor", out["output"])
	assert.Equal(t, float64(1), out["selected_index"])
	assert.Equal(t, true, out["has_result"])
}

func TestMergeNodeAllNull(t *testing.T) {
	n := NewMergeNode("m")
	n.SetInput("input_0", nil)
	n.SetInput("input_1", nil)

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Nil(t, out["output"])
	assert.Equal(t, float64(-1), out["selected_index"])
	assert.Equal(t, false, out["has_result"])
}

func TestMergeNodeInputCountGrowsPorts(t *testing.T) {
	n := NewMergeNode("m")
	require.NotContains(t, n.InputPorts(), "input_2")

	n.SetInput("input_count", float64(3))
	assert.Contains(t, n.InputPorts(), "input_2")

	n.SetInput("input_0", nil)
	n.SetInput("input_1", nil)
	n.SetInput("input_2", "late branch")
	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late branch", out["output"])
	assert.Equal(t, float64(2), out["selected_index"])
}

func TestMergeNodeIsNullTolerant(t *testing.T) {
	assert.True(t, NewMergeNode("m").NullTolerant())
}

func TestPassThroughNodeGating(t *testing.T) {
	tests := []struct {
		name        string
		control     any
		passOnEmpty any
		want        any
	}{
		{"live control forwards", "go", nil, "payload"},
		{"null control blocks", nil, nil, nil},
		{"null control with pass_on_empty forwards", nil, true, "payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewPassThroughNode("p")
			n.SetInput("data", "payload")
			n.SetInput("control", tt.control)
			if tt.passOnEmpty != nil {
				n.SetInput("pass_on_empty", tt.passOnEmpty)
			}

			out, err := n.Process(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out["data"])
		})
	}
}
