package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// workflowSchemaJSON is the wire-format contract for submitted graph
// definitions: node entries with a type, and fully specified connections.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1},
          "input_values": {"type": "object"}
        }
      }
    },
    "connections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from_node", "from_port", "to_node", "to_port"],
        "properties": {
          "from_node": {"type": "string", "minLength": 1},
          "from_port": {"type": "string", "minLength": 1},
          "to_node": {"type": "string", "minLength": 1},
          "to_port": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

// compileWorkflowSchema builds the validator once at server construction.
func compileWorkflowSchema() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(workflowSchemaJSON), &doc); err != nil {
		return nil, fmt.Errorf("parse workflow schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("workflow.json", doc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}
	schema, err := compiler.Compile("workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	return schema, nil
}
