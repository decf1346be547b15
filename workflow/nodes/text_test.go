package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextStripNode(t *testing.T) {
	n := NewTextStripNode("s")
	n.SetInput("text", "  padded value \n")

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "padded value", out["text"])
}

func TestTextCombinerNode(t *testing.T) {
	n := NewTextCombinerNode("c")
	n.SetInput("prompt", "A {text_a} in a {text_b}")
	n.SetInput("text_a", "cat")
	n.SetInput("text_b", "hat")

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A cat in a hat", out["combined_text"])

	used, ok := out["used_variables"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, used["text_a"])
	assert.Equal(t, true, used["text_b"])
	assert.Equal(t, false, used["text_c"])
}

func TestTextToListNode(t *testing.T) {
	n := NewTextToListNode("l")
	n.SetInput("text", "x")
	n.SetInput("repeat_count", float64(3))

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "x", "x"}, out["list"])
}

func TestTextToListNodeRejectsNonPositiveCount(t *testing.T) {
	n := NewTextToListNode("l")
	n.SetInput("text", "x")
	n.SetInput("repeat_count", float64(0))

	_, err := n.Process(context.Background())
	assert.Error(t, err)
}

func TestListToTextNode(t *testing.T) {
	n := NewListToTextNode("l")
	n.SetInput("list", []any{"first", "second"})

	out, err := n.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", out["text"])
}

func TestListToTextNodeEmptyList(t *testing.T) {
	n := NewListToTextNode("l")
	n.SetInput("list", []any{})

	_, err := n.Process(context.Background())
	assert.Error(t, err)
}

func TestIntInputNodeValidation(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    float64
		wantErr bool
	}{
		{"whole float", float64(7), 7, false},
		{"numeric string", "12", 12, false},
		{"fractional value", float64(1.5), 0, true},
		{"non-numeric", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewIntInputNode("i")
			n.SetInput("value", tt.value)
			out, err := n.Process(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out["value"])
		})
	}
}

func TestBoolInputNodeRejectsNonBool(t *testing.T) {
	n := NewBoolInputNode("b")
	n.SetInput("value", "true")

	_, err := n.Process(context.Background())
	assert.Error(t, err)
}
