package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/threadloop/weft/workflow"
)

// defaultSwitchOutputs is the output port count before a graph definition
// overrides it via the output_count input value.
const defaultSwitchOutputs = 2

// switchRule is one routing rule: a dotted-path field, a comparison operator,
// the value to compare against and the output index activated on a match.
type switchRule struct {
	Field       string `json:"field"`
	Operator    string `json:"operator"`
	Value       any    `json:"value"`
	OutputIndex int    `json:"output_index"`
}

// SwitchNode routes its data input to one or more of output_0..output_{n-1}
// by evaluating routing rules, emitting the null tag on every non-selected
// output so downstream branches are skipped. With no matching rule, data goes
// to fallback.
type SwitchNode struct {
	workflow.BaseNode
	outputCount int
	logger      *slog.Logger
}

func NewSwitchNode(id string, logger *slog.Logger) *SwitchNode {
	if logger == nil {
		logger = slog.Default()
	}
	n := &SwitchNode{
		BaseNode: workflow.NewBaseNode("SwitchNode", id),
		logger:   logger,
	}
	n.AddInputPort(workflow.Port{Name: "data", Type: workflow.TypeAny, Required: true,
		Tooltip: "Input data to route"})
	n.AddInputPort(workflow.Port{Name: "rules", Type: workflow.TypeArray, Required: true, Default: []any{},
		Tooltip: "Routing rule list"})
	n.AddInputPort(workflow.Port{Name: "mode", Type: workflow.TypeString, Required: false, Default: "first_match",
		Options: []any{"first_match", "all_matches"},
		Tooltip: "first_match stops at the first matching rule, all_matches activates every match"})
	n.AddInputPort(workflow.Port{Name: "output_count", Type: workflow.TypeNumber, Required: false,
		Tooltip: "Number of routed output ports (default: 2)"})
	n.declareOutputs(defaultSwitchOutputs)
	n.AddOutputPort(workflow.Port{Name: "fallback", Type: workflow.TypeAny,
		Tooltip: "Activated when no rule matches"})
	return n
}

func (n *SwitchNode) declareOutputs(count int) {
	for i := n.outputCount; i < count; i++ {
		n.AddOutputPort(workflow.Port{Name: fmt.Sprintf("output_%d", i), Type: workflow.TypeAny})
	}
	if count > n.outputCount {
		n.outputCount = count
	}
}

// SetInput grows the routed output ports when output_count is seeded. Graph
// definitions set input values before connections are validated, so the
// ports exist by the time downstream edges attach.
func (n *SwitchNode) SetInput(name string, value any) {
	n.BaseNode.SetInput(name, value)
	if name == "output_count" {
		if count, ok := toFloat(value); ok && int(count) > 0 {
			n.declareOutputs(int(count))
		}
	}
}

func (n *SwitchNode) Process(ctx context.Context) (map[string]any, error) {
	data, _ := n.Input("data")
	rulesValue, _ := n.Input("rules")
	mode := stringInput(n, "mode", "first_match")

	rules := n.parseRules(rulesValue)

	outputs := make(map[string]any, n.outputCount+1)
	for i := 0; i < n.outputCount; i++ {
		outputs[fmt.Sprintf("output_%d", i)] = nil
	}
	outputs["fallback"] = nil

	matched := false
	for _, rule := range rules {
		if !n.evaluateRule(data, rule) {
			continue
		}
		key := fmt.Sprintf("output_%d", rule.OutputIndex)
		if _, ok := outputs[key]; !ok {
			n.logger.Warn("switch rule targets unknown output",
				slog.String("node_id", n.ID()),
				slog.Int("output_index", rule.OutputIndex))
			continue
		}
		outputs[key] = data
		matched = true
		if mode == "first_match" {
			break
		}
	}
	if !matched {
		outputs["fallback"] = data
	}
	return outputs, nil
}

// parseRules accepts a rule list directly or as a JSON string. Malformed
// rules are dropped with a warning rather than failing the node, matching
// the permissive evaluation contract.
func (n *SwitchNode) parseRules(value any) []switchRule {
	raw := value
	if s, ok := raw.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			n.logger.Error("switch rules JSON is invalid",
				slog.String("node_id", n.ID()),
				slog.String("error", err.Error()))
			return nil
		}
		raw = decoded
	}

	list, ok := raw.([]any)
	if !ok {
		n.logger.Error("switch rules must be a list",
			slog.String("node_id", n.ID()))
		return nil
	}

	rules := make([]switchRule, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			n.logger.Warn("switch rule is not an object",
				slog.String("node_id", n.ID()),
				slog.Int("rule", i))
			continue
		}
		rule := switchRule{Operator: "equals", OutputIndex: i % max(n.outputCount, 1)}
		if f, ok := m["field"].(string); ok {
			rule.Field = f
		}
		if op, ok := m["operator"].(string); ok {
			rule.Operator = op
		}
		rule.Value = m["value"]
		if idx, ok := toFloat(m["output_index"]); ok {
			rule.OutputIndex = int(idx)
		}
		rules = append(rules, rule)
	}
	return rules
}

func (n *SwitchNode) evaluateRule(data any, rule switchRule) bool {
	fieldValue := nestedValue(data, rule.Field)

	result, err := applyOperator(rule.Operator, fieldValue, rule.Value)
	if err != nil {
		n.logger.Warn("switch rule evaluation failed",
			slog.String("node_id", n.ID()),
			slog.String("operator", rule.Operator),
			slog.String("error", err.Error()))
		return false
	}
	return result
}

// nestedValue resolves a dotted field path against nested objects and
// arrays. Numeric path segments index arrays; any miss yields nil.
func nestedValue(data any, fieldPath string) any {
	value := data
	if fieldPath == "" {
		return value
	}
	for _, key := range strings.Split(fieldPath, ".") {
		switch v := value.(type) {
		case map[string]any:
			value = v[key]
		case []any:
			index, err := strconv.Atoi(key)
			if err != nil || index < 0 || index >= len(v) {
				return nil
			}
			value = v[index]
		default:
			return nil
		}
	}
	return value
}

func applyOperator(op string, a, b any) (bool, error) {
	switch op {
	case "equals":
		return looseEqual(a, b), nil
	case "not_equals":
		return !looseEqual(a, b), nil
	case "greater", "greater_equal", "less", "less_equal":
		af, aok := toFloat(a)
		bf, bok := toFloat(b)
		if !aok || !bok {
			return false, nil
		}
		switch op {
		case "greater":
			return af > bf, nil
		case "greater_equal":
			return af >= bf, nil
		case "less":
			return af < bf, nil
		default:
			return af <= bf, nil
		}
	case "contains":
		return strings.Contains(asString(a), asString(b)), nil
	case "not_contains":
		return !strings.Contains(asString(a), asString(b)), nil
	case "starts_with":
		return strings.HasPrefix(asString(a), asString(b)), nil
	case "ends_with":
		return strings.HasSuffix(asString(a), asString(b)), nil
	case "regex":
		re, err := regexp.Compile(asString(b))
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", asString(b), err)
		}
		return re.MatchString(asString(a)), nil
	case "is_empty":
		return isEmpty(a), nil
	case "is_not_empty":
		return !isEmpty(a), nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

// looseEqual compares numbers numerically so JSON's float64 decoding matches
// integer rule values; everything else compares structurally.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// isEmpty treats nil, false, zero, empty strings and empty collections as
// empty.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		if f, ok := toFloat(v); ok {
			return f == 0
		}
		return false
	}
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
