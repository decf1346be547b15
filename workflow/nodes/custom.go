package nodes

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/threadloop/weft/workflow"
)

// customNodeFile is the on-disk shape of a custom node definition: a new
// type name derived from a registered base type, with preset input values.
type customNodeFile struct {
	TypeName string         `json:"type_name"`
	Category string         `json:"category"`
	BaseType string         `json:"base_type"`
	Defaults map[string]any `json:"defaults"`
}

// LoadCustomDir registers every *.json custom node definition found in dir.
// Custom nodes are loaded once at startup; the directory is not watched. A
// missing directory is not an error, so deployments without custom nodes
// need no empty directory.
func LoadCustomDir(reg *workflow.Registry, dir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("no custom node directory", slog.String("dir", dir))
			return nil
		}
		return fmt.Errorf("read custom node directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := loadCustomNode(reg, path); err != nil {
			return fmt.Errorf("custom node %s: %w", path, err)
		}
		logger.Info("custom node loaded", slog.String("path", path))
	}
	return nil
}

func loadCustomNode(reg *workflow.Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var def customNodeFile
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if def.TypeName == "" {
		return fmt.Errorf("type_name is required")
	}

	base, ok := reg.Descriptor(def.BaseType)
	if !ok {
		return fmt.Errorf("base type %q is not registered", def.BaseType)
	}

	category := def.Category
	if category == "" {
		category = "custom"
	}

	defaults := def.Defaults
	reg.Register(workflow.Descriptor{
		Type:         def.TypeName,
		Category:     category,
		NullTolerant: base.NullTolerant,
		InputPorts:   base.InputPorts,
		OutputPorts:  base.OutputPorts,
		New: func(id string) workflow.Node {
			node := base.New(id)
			for key, value := range defaults {
				node.SetInput(key, value)
			}
			return node
		},
	})
	return nil
}
