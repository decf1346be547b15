package job

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/threadloop/weft/model"
	"github.com/threadloop/weft/workflow"
)

// preprocessOptions merges the model's default parameters into the request
// options and fills a random 32-bit seed when the caller left it unset.
func preprocessOptions(cfg *model.Config, options map[string]any, logger *slog.Logger, jobID string) map[string]any {
	processed := make(map[string]any, len(options)+len(cfg.DefaultParams)+1)
	for k, v := range options {
		processed[k] = v
	}
	for name, value := range cfg.DefaultParams {
		if existing, ok := processed[name]; !ok || existing == nil {
			processed[name] = value
		}
	}
	if seed, ok := processed["seed"]; !ok || seed == nil {
		processed["seed"] = float64(rand.Uint32())
	}
	logger.Info("using seed",
		slog.String("job_id", jobID),
		slog.Any("seed", processed["seed"]))
	return processed
}

// groupInputs keys the input list by type: a type appearing once keeps its
// bare name, duplicates are numbered type1, type2, ... in list order.
func groupInputs(inputs []InputItem) map[string]string {
	counts := make(map[string]int, len(inputs))
	for _, item := range inputs {
		if item.Type != "" {
			counts[item.Type]++
		}
	}

	grouped := make(map[string]string, len(inputs))
	indices := make(map[string]int, len(counts))
	for _, item := range inputs {
		if item.Type == "" || item.URL == "" {
			continue
		}
		key := item.Type
		if counts[item.Type] > 1 {
			indices[item.Type]++
			key = fmt.Sprintf("%s%d", item.Type, indices[item.Type])
		}
		grouped[key] = item.URL
	}
	return grouped
}

// providedTypes reports which input types the request carries, for checking
// against the model's required_inputs.
func providedTypes(inputs []InputItem) map[string]bool {
	provided := make(map[string]bool, len(inputs))
	for _, item := range inputs {
		if item.Type != "" && item.URL != "" {
			provided[item.Type] = true
		}
	}
	return provided
}

// applyMappings seeds the workflow template's node input values from the
// grouped input URLs and the preprocessed options, following the model's
// input_mapping and parameter_mapping fan-out lists. Unmapped parameters
// are ignored; nil option values are never mapped.
func applyMappings(def *workflow.Definition, cfg *model.Config, options map[string]any, grouped map[string]string) {
	for inputType, url := range grouped {
		for _, target := range cfg.MapInput(inputType) {
			def.SetNodeInput(target.NodeID, target.InputKey, url)
		}
	}
	for name, value := range options {
		if value == nil {
			continue
		}
		for _, target := range cfg.MapParameter(name) {
			def.SetNodeInput(target.NodeID, target.InputKey, value)
		}
	}
}
