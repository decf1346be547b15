package job

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadloop/weft/model"
	"github.com/threadloop/weft/workflow"
)

func TestPreprocessOptionsMergesDefaults(t *testing.T) {
	cfg := &model.Config{DefaultParams: map[string]any{
		"quality": "high",
		"steps":   float64(20),
	}}
	options := map[string]any{
		"steps":   float64(50),
		"quality": nil,
	}

	processed := preprocessOptions(cfg, options, slog.Default(), "j1")
	assert.Equal(t, float64(50), processed["steps"], "explicit options win")
	assert.Equal(t, "high", processed["quality"], "nil values take the default")
}

func TestPreprocessOptionsSeedsRandomSeed(t *testing.T) {
	processed := preprocessOptions(&model.Config{}, nil, slog.Default(), "j1")
	seed, ok := processed["seed"].(float64)
	require.True(t, ok, "seed must be filled as a number")
	assert.GreaterOrEqual(t, seed, float64(0))

	// A caller-provided seed survives preprocessing.
	processed = preprocessOptions(&model.Config{}, map[string]any{"seed": float64(42)}, slog.Default(), "j1")
	assert.Equal(t, float64(42), processed["seed"])
}

func TestGroupInputs(t *testing.T) {
	tests := []struct {
		name   string
		inputs []InputItem
		want   map[string]string
	}{
		{
			name:   "singleton keeps bare name",
			inputs: []InputItem{{Type: "image", URL: "http://a"}},
			want:   map[string]string{"image": "http://a"},
		},
		{
			name: "duplicates are numbered in order",
			inputs: []InputItem{
				{Type: "image", URL: "http://a"},
				{Type: "mask", URL: "http://m"},
				{Type: "image", URL: "http://b"},
			},
			want: map[string]string{"image1": "http://a", "image2": "http://b", "mask": "http://m"},
		},
		{
			name:   "entries without url are skipped",
			inputs: []InputItem{{Type: "image"}, {URL: "http://x"}},
			want:   map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, groupInputs(tt.inputs))
		})
	}
}

func TestProvidedTypes(t *testing.T) {
	provided := providedTypes([]InputItem{
		{Type: "image", URL: "http://a"},
		{Type: "mask"},
	})
	assert.True(t, provided["image"])
	assert.False(t, provided["mask"], "an input without a url is not provided")
}

func TestApplyMappings(t *testing.T) {
	cfg := &model.Config{
		InputMapping: map[string]model.TargetList{
			"image": {{NodeID: "load", InputKey: "url"}},
		},
		ParameterMapping: map[string]model.TargetList{
			"prompt": {
				{NodeID: "pos", InputKey: "text"},
				{NodeID: "combo", InputKey: "text_a"},
			},
		},
	}
	def := workflow.Definition{Nodes: []workflow.NodeDef{
		{ID: "load", Type: "TextInputNode"},
		{ID: "pos", Type: "TextInputNode"},
		{ID: "combo", Type: "TextCombinerNode"},
	}}

	applyMappings(&def, cfg, map[string]any{
		"prompt":   "a cat",
		"unmapped": "ignored",
		"nil_opt":  nil,
	}, map[string]string{"image": "http://img"})

	assert.Equal(t, "http://img", def.Nodes[0].InputValues["url"])
	assert.Equal(t, "a cat", def.Nodes[1].InputValues["text"], "parameters fan out to every target")
	assert.Equal(t, "a cat", def.Nodes[2].InputValues["text_a"])
	require.Len(t, def.Nodes, 3, "unmapped and nil options add nothing")
}
