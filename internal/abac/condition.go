package abac

import (
	"encoding/json"
	"errors"
	"strings"
)

// Hardening caps. Conditions over either limit are skipped, never evaluated.
const (
	maxConditionBytes = 10 * 1024
	maxLogicalDepth   = 10
)

// Parse failures are static strings on purpose: they end up in logs, and logs
// must never carry condition text or values.
var (
	errConditionTooLarge  = errors.New("condition exceeds size limit")
	errConditionTooDeep   = errors.New("condition exceeds nesting limit")
	errMalformedCondition = errors.New("condition must be an object with exactly one operator")
	errComparisonShape    = errors.New("comparison operand must be an object with exactly one field")
	errLogicalShape       = errors.New("logical operand must be a non-empty array")
	errInShape            = errors.New("in operator requires an array literal")
	errUnknownOperator    = errors.New("unknown operator")
)

// node is one operator in the parsed condition tree. Comparison nodes carry
// path and literal; logical nodes carry children.
type node struct {
	op       string
	path     string
	literal  interface{}
	children []*node
}

// parseCondition turns raw JSON into a validated tree. Any structural
// violation fails the whole condition: the engine treats a parse error as
// "this policy matches nothing", so a malformed subtree can never be flipped
// to true by an enclosing not.
func parseCondition(raw []byte) (*node, error) {
	if len(raw) > maxConditionBytes {
		return nil, errConditionTooLarge
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errMalformedCondition
	}
	return buildNode(v, 0)
}

// buildNode validates one condition object. logicalDepth counts only and/or/
// not operators on the path from the root.
func buildNode(v interface{}, logicalDepth int) (*node, error) {
	obj, ok := v.(map[string]interface{})
	if !ok || len(obj) != 1 {
		return nil, errMalformedCondition
	}

	var op string
	var body interface{}
	for k, val := range obj {
		op, body = k, val
	}

	switch op {
	case "and", "or":
		if logicalDepth+1 > maxLogicalDepth {
			return nil, errConditionTooDeep
		}
		list, ok := body.([]interface{})
		if !ok || len(list) == 0 {
			return nil, errLogicalShape
		}
		children := make([]*node, 0, len(list))
		for _, item := range list {
			child, err := buildNode(item, logicalDepth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return &node{op: op, children: children}, nil

	case "not":
		if logicalDepth+1 > maxLogicalDepth {
			return nil, errConditionTooDeep
		}
		child, err := buildNode(body, logicalDepth+1)
		if err != nil {
			return nil, err
		}
		return &node{op: op, children: []*node{child}}, nil

	case "eq", "ne", "gt", "gte", "lt", "lte", "in":
		inner, ok := body.(map[string]interface{})
		if !ok || len(inner) != 1 {
			return nil, errComparisonShape
		}
		var path string
		var literal interface{}
		for k, val := range inner {
			path, literal = k, val
		}
		if op == "in" {
			if _, ok := literal.([]interface{}); !ok {
				return nil, errInShape
			}
		}
		return &node{op: op, path: path, literal: literal}, nil

	default:
		return nil, errUnknownOperator
	}
}

// attributes is the subject/resource/context triple one evaluation runs
// against.
type attributes struct {
	subject  map[string]interface{}
	resource map[string]interface{}
	context  map[string]interface{}
}

// eval walks the tree. It can only be reached through parseCondition, so every
// structural assumption below already holds.
func (n *node) eval(attrs attributes) bool {
	switch n.op {
	case "and":
		for _, child := range n.children {
			if !child.eval(attrs) {
				return false
			}
		}
		return true

	case "or":
		for _, child := range n.children {
			if child.eval(attrs) {
				return true
			}
		}
		return false

	case "not":
		return !n.children[0].eval(attrs)

	case "eq":
		return scalarsEqual(resolvePath(n.path, attrs), n.literal)

	case "ne":
		actual := resolvePath(n.path, attrs)
		if !isScalar(actual) || !isScalar(n.literal) {
			return false
		}
		return !scalarsEqual(actual, n.literal)

	case "gt", "gte", "lt", "lte":
		actual, aok := toNumber(resolvePath(n.path, attrs))
		literal, lok := toNumber(n.literal)
		if !aok || !lok {
			return false
		}
		switch n.op {
		case "gt":
			return actual > literal
		case "gte":
			return actual >= literal
		case "lt":
			return actual < literal
		default:
			return actual <= literal
		}

	case "in":
		items, ok := collectionItems(resolvePath(n.path, attrs))
		if !ok {
			return false
		}
		literals := n.literal.([]interface{})
		for _, item := range items {
			if item == nil {
				continue
			}
			for _, lit := range literals {
				if scalarsEqual(item, lit) {
					return true
				}
			}
		}
		return false
	}
	return false
}

// resolvePath walks a dot path through the attribute triple. The first segment
// must name one of the three roots; any missing or non-map segment yields nil.
func resolvePath(path string, attrs attributes) interface{} {
	if path == "" {
		return nil
	}
	segments := strings.Split(path, ".")
	if len(segments) < 2 {
		return nil
	}

	var current interface{}
	switch segments[0] {
	case "subject":
		current = attrs.subject
	case "resource":
		current = attrs.resource
	case "context":
		current = attrs.context
	default:
		return nil
	}

	for _, segment := range segments[1:] {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		v, exists := m[segment]
		if !exists {
			return nil
		}
		current = v
	}
	return current
}

// scalarsEqual compares two values as scalars. Numbers compare numerically
// across int and float representations; nulls and non-scalars never equal
// anything.
func scalarsEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return false
	}
	if af, ok := toNumber(a); ok {
		bf, bok := toNumber(b)
		return bok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func isScalar(v interface{}) bool {
	if v == nil {
		return false
	}
	if _, ok := toNumber(v); ok {
		return true
	}
	switch v.(type) {
	case string, bool:
		return true
	}
	return false
}

// toNumber widens any numeric attribute value to float64. JSON decoding
// produces float64 already; the other cases cover attribute maps built in Go.
func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// collectionItems extracts the members of a collection-valued attribute.
// []interface{} comes from JSON decoding; []string from contexts assembled in
// Go. Anything else is not a collection.
func collectionItems(v interface{}) ([]interface{}, bool) {
	switch items := v.(type) {
	case []interface{}:
		return items, true
	case []string:
		out := make([]interface{}, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
