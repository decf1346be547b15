// Package nodes provides the built-in node catalog: basic value nodes, text
// and dict processing, conditional routing (Switch/Merge/PassThrough),
// sub-workflow iteration (ForEach) and the remote-service call nodes.
// RegisterBuiltins installs the catalog into a workflow.Registry at startup.
package nodes

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/threadloop/weft/callback"
	"github.com/threadloop/weft/remote"
	"github.com/threadloop/weft/workflow"
)

// Services carries the shared infrastructure node instances depend on. The
// registry itself is included so iteration nodes can build sub-workflows from
// the same catalog they were registered into.
type Services struct {
	Registry    *workflow.Registry
	Coordinator *callback.Coordinator
	Remote      *remote.Client
	Logger      *slog.Logger
}

func (s Services) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// RegisterBuiltins installs every built-in node type into svc.Registry.
func RegisterBuiltins(svc Services) {
	reg := svc.Registry

	// Basic values.
	reg.Register(describe("TextInputNode", categoryBasic, func(id string) workflow.Node { return NewTextInputNode(id) }))
	reg.Register(describe("IntInputNode", categoryBasic, func(id string) workflow.Node { return NewIntInputNode(id) }))
	reg.Register(describe("FloatInputNode", categoryBasic, func(id string) workflow.Node { return NewFloatInputNode(id) }))
	reg.Register(describe("BoolInputNode", categoryBasic, func(id string) workflow.Node { return NewBoolInputNode(id) }))

	// Text processing.
	reg.Register(describe("TextStripNode", categoryText, func(id string) workflow.Node { return NewTextStripNode(id) }))
	reg.Register(describe("TextCombinerNode", categoryText, func(id string) workflow.Node { return NewTextCombinerNode(id) }))
	reg.Register(describe("TextToListNode", categoryText, func(id string) workflow.Node { return NewTextToListNode(id) }))
	reg.Register(describe("ListToTextNode", categoryText, func(id string) workflow.Node { return NewListToTextNode(id) }))

	// Dict and JSON processing.
	reg.Register(describe("DictGetNode", categoryDict, func(id string) workflow.Node { return NewDictGetNode(id) }))
	reg.Register(describe("DictSetNode", categoryDict, func(id string) workflow.Node { return NewDictSetNode(id) }))
	reg.Register(describe("DictMergeNode", categoryDict, func(id string) workflow.Node { return NewDictMergeNode(id) }))
	reg.Register(describe("JSONParseNode", categoryDict, func(id string) workflow.Node { return NewJSONParseNode(id) }))

	// Control flow.
	reg.Register(describe("SwitchNode", categoryControl, func(id string) workflow.Node { return NewSwitchNode(id, svc.logger()) }))
	reg.Register(describe("MergeNode", categoryControl, func(id string) workflow.Node { return NewMergeNode(id) }))
	reg.Register(describe("PassThroughNode", categoryControl, func(id string) workflow.Node { return NewPassThroughNode(id) }))

	// Iteration.
	reg.Register(describe("ForEachNode", categoryControl, func(id string) workflow.Node { return NewForEachNode(id, reg, svc.logger()) }))
	reg.Register(describe("SimpleForEachNode", categoryControl, func(id string) workflow.Node { return NewSimpleForEachNode(id, reg, svc.logger()) }))
	reg.Register(describe("ForEachItemNode", categoryControl, func(id string) workflow.Node { return NewForEachItemNode(id) }))

	// Remote services.
	reg.Register(describe("SyncServiceNode", categoryService, func(id string) workflow.Node { return NewSyncServiceNode(id, svc.Remote) }))
	reg.Register(describe("AsyncServiceNode", categoryService, func(id string) workflow.Node { return NewAsyncServiceNode(id, svc.Remote, svc.Coordinator, svc.logger()) }))
}

const (
	categoryBasic   = "basic_types"
	categoryText    = "text_process"
	categoryDict    = "dict_process"
	categoryControl = "control"
	categoryService = "service"
)

// describe builds a registry descriptor from a constructor. Port schemas are
// captured once here, from a single probe instance, so the catalog endpoint
// never constructs nodes per request.
func describe(typeName, category string, newFn func(id string) workflow.Node) workflow.Descriptor {
	probe := newFn("describe")
	return workflow.Descriptor{
		Type:         typeName,
		Category:     category,
		NullTolerant: probe.NullTolerant(),
		InputPorts:   probe.InputPorts(),
		OutputPorts:  probe.OutputPorts(),
		New:          newFn,
	}
}

// stringInput returns the named input as a string, or fallback when absent.
func stringInput(n workflow.Node, name, fallback string) string {
	v, ok := n.Input(name)
	if !ok || v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// toFloat converts the numeric shapes JSON decoding and direct seeding
// produce. Strings holding numbers are accepted, matching the permissive
// coercion workflow authors rely on.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// floatInput returns the named input as a float64, or fallback when absent or
// non-numeric.
func floatInput(n workflow.Node, name string, fallback float64) float64 {
	v, ok := n.Input(name)
	if !ok || v == nil {
		return fallback
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return fallback
}

// intInput returns the named input as an int, or fallback.
func intInput(n workflow.Node, name string, fallback int) int {
	return int(floatInput(n, name, float64(fallback)))
}

// boolInput returns the named input as a bool, or fallback.
func boolInput(n workflow.Node, name string, fallback bool) bool {
	v, ok := n.Input(name)
	if !ok || v == nil {
		return fallback
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

// mapInput returns the named input as an object, or nil when absent or not a
// map.
func mapInput(n workflow.Node, name string) map[string]any {
	v, ok := n.Input(name)
	if !ok || v == nil {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// listInput returns the named input as a slice, or nil.
func listInput(n workflow.Node, name string) ([]any, bool) {
	v, ok := n.Input(name)
	if !ok || v == nil {
		return nil, false
	}
	list, ok := v.([]any)
	return list, ok
}
