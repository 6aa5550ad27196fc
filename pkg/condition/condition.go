// Package condition evaluates journey branch conditions against a run context.
//
// Equality ("=", "==", "!=") is coercive: operands of different kinds are
// converted before comparing, so the stored number 45 equals the literal "45"
// and true equals 1. Journeys rely on this behaviour, so it is kept even though
// it lets unrelated values match. Ordered comparisons compare strings
// lexicographically when both operands are strings and numerically otherwise.
// A list or map is flattened only when compared with a scalar; a list or map
// never equals another list or map.
//
// A field holding null counts as absent: ordered comparisons against it are
// false and it only equals a null literal.
package condition

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// FieldSeparator splits a field path into nested context keys.
const FieldSeparator = "."

const (
	OpGreater        = ">"
	OpLess           = "<"
	OpGreaterOrEqual = ">="
	OpLessOrEqual    = "<="
	OpEqual          = "="
	OpEqualAlias     = "=="
	OpNotEqual       = "!="
)

// Operators lists every supported comparison operator.
var Operators = []string{OpGreater, OpLess, OpGreaterOrEqual, OpLessOrEqual, OpEqual, OpEqualAlias, OpNotEqual}

// UnsupportedOperatorError is returned for an operator outside Operators.
type UnsupportedOperatorError struct {
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator: %q", e.Operator)
}

// IsSupported reports whether operator is one of Operators.
func IsSupported(operator string) bool {
	for _, op := range Operators {
		if op == operator {
			return true
		}
	}

	return false
}

// Evaluate resolves field in ctx and compares it with value.
func Evaluate(ctx map[string]any, field, operator string, value any) (bool, error) {
	resolved, found := Resolve(ctx, field)

	switch operator {
	case OpGreater, OpLess, OpGreaterOrEqual, OpLessOrEqual:
		if !found || resolved == nil {
			return false, nil
		}

		return compareOrdered(resolved, value, operator), nil
	case OpEqual, OpEqualAlias:
		return looseEqual(resolved, found, value), nil
	case OpNotEqual:
		return !looseEqual(resolved, found, value), nil
	default:
		return false, &UnsupportedOperatorError{Operator: operator}
	}
}

// Resolve looks field up in ctx. A field containing FieldSeparator is walked
// through nested maps; a missing key or a non-map intermediate yields not found.
func Resolve(ctx map[string]any, field string) (any, bool) {
	if !strings.Contains(field, FieldSeparator) {
		v, ok := ctx[field]

		return v, ok
	}

	var current any = ctx

	for _, key := range strings.Split(field, FieldSeparator) {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}

		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		converted := make(map[string]any, len(m))
		for k, val := range m {
			converted[fmt.Sprint(k)] = val
		}

		return converted, true
	default:
		return nil, false
	}
}

func compareOrdered(left, right any, operator string) bool {
	ls, lIsString := left.(string)
	rs, rIsString := right.(string)

	if lIsString && rIsString {
		cmp := strings.Compare(ls, rs)

		return orderedResult(float64(cmp), 0, operator)
	}

	ln, ok := toNumber(left)
	if !ok {
		return false
	}

	rn, ok := toNumber(right)
	if !ok {
		return false
	}

	return orderedResult(ln, rn, operator)
}

func orderedResult(left, right float64, operator string) bool {
	if math.IsNaN(left) || math.IsNaN(right) {
		return false
	}

	switch operator {
	case OpGreater:
		return left > right
	case OpLess:
		return left < right
	case OpGreaterOrEqual:
		return left >= right
	case OpLessOrEqual:
		return left <= right
	default:
		return false
	}
}

// looseEqual compares a resolved context value with a literal using coercion.
// An absent field only equals a null literal.
func looseEqual(resolved any, found bool, value any) bool {
	if !found || resolved == nil {
		return value == nil
	}

	if value == nil {
		return false
	}

	return coerciveEqual(resolved, value)
}

func coerciveEqual(left, right any) bool {
	if isComposite(left) && isComposite(right) {
		return false
	}

	left, right = toPrimitive(left), toPrimitive(right)

	if lb, ok := left.(bool); ok {
		left = boolNumber(lb)
	}

	if rb, ok := right.(bool); ok {
		right = boolNumber(rb)
	}

	ls, lIsString := left.(string)
	rs, rIsString := right.(string)

	if lIsString && rIsString {
		return ls == rs
	}

	ln, lok := toNumber(left)
	rn, rok := toNumber(right)

	if lok && rok {
		return ln == rn
	}

	return false
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}

	return 0
}

// isComposite reports whether v is a list or a map. Two composites are never
// equal, not even to themselves.
func isComposite(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	default:
		return false
	}
}

// toPrimitive flattens lists and maps the way string concatenation would:
// lists join their elements with commas, maps become an opaque marker.
func toPrimitive(v any) any {
	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = primitiveString(toPrimitive(rv.Index(i).Interface()))
		}

		return strings.Join(parts, ",")
	case reflect.Map:
		return "[object Object]"
	default:
		return v
	}
}

func primitiveString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}

// toNumber converts numeric kinds, booleans, json.Number and numeric strings.
// The empty string converts to zero.
func toNumber(v any) (float64, bool) {
	switch value := v.(type) {
	case bool:
		return boolNumber(value), true
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return 0, true
		}

		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}

		return n, true
	case json.Number:
		n, err := value.Float64()

		return n, err == nil
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
