package internal

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
)

// Rule is one config-level filter. Exactly one of When (a govaluate
// expression over the flattened payload) or Path (a JSONPath whose resolved
// value must be truthy) is set.
type Rule struct {
	When string `yaml:"when"`
	Path string `yaml:"path"`
}

type compiledRule struct {
	raw  string
	expr *govaluate.EvaluableExpression
	path string
}

// FilterEngine decides whether an event produces a notification. With no
// rules configured everything is notified; with rules, an event must match at
// least one.
type FilterEngine struct {
	rules  []compiledRule
	strict bool
	logger *log.Logger
}

var ruleFunctions = map[string]govaluate.ExpressionFunction{
	// contains(list, needle) reports whether a payload array holds needle.
	"contains": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
		}
		list, ok := args[0].([]interface{})
		if !ok {
			return false, nil
		}
		for _, item := range list {
			if item == args[1] {
				return true, nil
			}
		}
		return false, nil
	},
	// like(value, pattern) matches with SQL-style % wildcards at either end.
	"like": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("like expects 2 arguments, got %d", len(args))
		}
		value, ok := args[0].(string)
		if !ok {
			return false, nil
		}
		pattern, ok := args[1].(string)
		if !ok {
			return false, nil
		}
		switch {
		case strings.HasPrefix(pattern, "%") && strings.HasSuffix(pattern, "%"):
			return strings.Contains(value, strings.Trim(pattern, "%")), nil
		case strings.HasPrefix(pattern, "%"):
			return strings.HasSuffix(value, strings.TrimPrefix(pattern, "%")), nil
		case strings.HasSuffix(pattern, "%"):
			return strings.HasPrefix(value, strings.TrimSuffix(pattern, "%")), nil
		default:
			return value == pattern, nil
		}
	},
}

func NewFilterEngine(rules []Rule, strict bool, logger *log.Logger) (*FilterEngine, error) {
	if logger == nil {
		logger = log.Default()
	}
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		when := strings.TrimSpace(rule.When)
		path := strings.TrimSpace(rule.Path)
		switch {
		case when != "" && path != "":
			return nil, fmt.Errorf("rule %d sets both when and path", i)
		case when != "":
			expr, err := govaluate.NewEvaluableExpressionWithFunctions(when, ruleFunctions)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			compiled = append(compiled, compiledRule{raw: when, expr: expr})
		case path != "":
			if !strings.HasPrefix(path, "$") {
				return nil, fmt.Errorf("rule %d: path must start with $", i)
			}
			compiled = append(compiled, compiledRule{raw: path, path: path})
		default:
			return nil, fmt.Errorf("rule %d is missing when or path", i)
		}
	}
	return &FilterEngine{rules: compiled, strict: strict, logger: logger}, nil
}

// Notify reports whether the raw payload passes the filter.
func (f *FilterEngine) Notify(raw []byte) bool {
	if f == nil || len(f.rules) == 0 {
		return true
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		f.logger.Printf("filter: undecodable payload: %v", err)
		return false
	}
	params := map[string]interface{}{}
	if object, ok := doc.(map[string]interface{}); ok {
		params = Flatten(object)
	}

	for _, rule := range f.rules {
		if rule.path != "" {
			value, err := jsonpath.Get(rule.path, doc)
			if err != nil {
				if f.strict {
					f.logger.Printf("filter: path %q: %v", rule.raw, err)
				}
				continue
			}
			if truthy(value) {
				return true
			}
			continue
		}

		result, err := rule.expr.Evaluate(params)
		if err != nil {
			// Missing fields evaluate to an error; that is a non-match.
			if f.strict {
				f.logger.Printf("filter: rule %q: %v", rule.raw, err)
			}
			continue
		}
		if ok, _ := result.(bool); ok {
			return true
		}
	}
	return false
}

func truthy(value interface{}) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		return typed != ""
	case float64:
		return typed != 0
	case nil:
		return false
	default:
		return true
	}
}
