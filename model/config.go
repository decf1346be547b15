// Package model loads and serves model configurations: named workflow
// templates plus the mappings that bind API request parameters and input
// files onto specific node input ports, and job outputs onto node output
// ports. Configurations load once at startup from a single JSON file.
package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/threadloop/weft/workflow"
)

// defaultTimeoutMinutes bounds a model's workflow execution when the config
// file does not say otherwise.
const defaultTimeoutMinutes = 20

// Target addresses one node input port for parameter or input-file mapping.
type Target struct {
	NodeID   string `json:"node_id"`
	InputKey string `json:"input_key"`
}

// TargetList is a mapping destination: one parameter or input may fan out to
// several node inputs. The config file may spell a singleton as a bare
// object instead of a one-element array; both decode to the same thing.
type TargetList []Target

// UnmarshalJSON accepts either a single target object or an array of them.
func (t *TargetList) UnmarshalJSON(data []byte) error {
	var list []Target
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var single Target
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("mapping must be a target object or array: %w", err)
	}
	*t = TargetList{single}
	return nil
}

// OutputRef addresses one node output port for job output mapping.
type OutputRef struct {
	NodeID    string `json:"node_id"`
	OutputKey string `json:"output_key"`
}

// Config describes one named model: the workflow template to run and how
// request fields flow in and out of it.
type Config struct {
	// WorkflowPath locates the template graph definition JSON.
	WorkflowPath string `json:"workflow_path"`

	// ParameterMapping routes request options onto node inputs.
	ParameterMapping map[string]TargetList `json:"parameter_mapping"`

	// InputMapping routes input file URLs, keyed by grouped input type
	// ("image", "image1", "mask", ...), onto node inputs.
	InputMapping map[string]TargetList `json:"input_mapping"`

	// OutputMapping names the node outputs that become the job's output
	// URL fields.
	OutputMapping map[string]OutputRef `json:"output_mapping"`

	// RequiredInputs lists input types the request must provide.
	RequiredInputs []string `json:"required_inputs"`

	// TimeoutMinutes bounds the workflow execution.
	TimeoutMinutes int `json:"timeout_minutes"`

	// DefaultParams are merged into request options before mapping.
	DefaultParams map[string]any `json:"default_params"`
}

// MapParameter returns the node input targets for a request parameter, or
// nil when the parameter is unmapped.
func (c *Config) MapParameter(name string) TargetList {
	return c.ParameterMapping[name]
}

// MapInput returns the node input targets for a grouped input type, or nil
// when the type is unmapped.
func (c *Config) MapInput(inputType string) TargetList {
	return c.InputMapping[inputType]
}

// ValidateInputTypes checks that every required input type is present.
func (c *Config) ValidateInputTypes(provided map[string]bool) error {
	for _, required := range c.RequiredInputs {
		if !provided[required] {
			return fmt.Errorf("required input %q is missing", required)
		}
	}
	return nil
}

// Workflow loads the model's template graph definition from disk.
func (c *Config) Workflow() (workflow.Definition, error) {
	data, err := os.ReadFile(c.WorkflowPath)
	if err != nil {
		return workflow.Definition{}, fmt.Errorf("read workflow template %s: %w", c.WorkflowPath, err)
	}
	var def workflow.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return workflow.Definition{}, fmt.Errorf("parse workflow template %s: %w", c.WorkflowPath, err)
	}
	return def, nil
}
