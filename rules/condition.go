package rules

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// EvaluateCondition applies condition c with comparison value cv to a value
// resolved from a payload of the given shape class.
//
// String payloads support only eq and neq; any other condition fails with
// KindUnsupportedCondition. For arrays and objects a condition outside the
// applicability table evaluates to false instead of failing.
func EvaluateCondition(value any, c Condition, cv any, shape Shape, opts Options) (bool, error) {
	if !c.AppliesTo(shape) {
		if shape == ShapeString {
			return false, unsupportedCondition(c)
		}
		return false, nil
	}

	switch c {
	case ConditionEq:
		return strictEqual(value, cv), nil

	case ConditionNeq:
		return !strictEqual(value, cv), nil

	case ConditionGt, ConditionGte:
		return compareNumeric(value, c, cv, opts)

	case ConditionContains:
		return contains(value, cv), nil
	}

	return false, nil
}

// compareNumeric evaluates gt and gte.
//
// By default both operands must be numeric. In legacy mode the check only
// fails when neither operand is numeric; the other operand is then coerced
// to a number the way a loosely typed relational comparison would, and any
// comparison against NaN is false.
func compareNumeric(value any, c Condition, cv any, opts Options) (bool, error) {
	left, leftOK := asNumber(value)
	right, rightOK := asNumber(cv)

	if !leftOK && !rightOK {
		return false, typeMismatch(value, c, cv)
	}
	if !opts.LegacyComparisons && (!leftOK || !rightOK) {
		return false, typeMismatch(value, c, cv)
	}

	if !leftOK {
		left = coerceNumber(value)
	}
	if !rightOK {
		right = coerceNumber(cv)
	}

	if c == ConditionGt {
		return left > right, nil
	}
	return left >= right, nil
}

// contains is membership for arrays, key existence for objects and substring
// search for strings. Anything else is false.
func contains(value, cv any) bool {
	switch v := value.(type) {
	case []any:
		for _, element := range v {
			if strictEqual(element, cv) {
				return true
			}
		}
		return false

	case map[string]any:
		key, ok := propertyKey(cv)
		if !ok {
			return false
		}
		_, exists := v[key]
		return exists

	case string:
		return strings.Contains(v, toDisplayString(cv))
	}

	return false
}

// strictEqual compares without type coercion. Numbers compare by value
// regardless of their Go representation; containers are never equal to
// anything since a rule value cannot alias payload data.
func strictEqual(a, b any) bool {
	an, aNum := asNumber(a)
	bn, bNum := asNumber(b)
	if aNum || bNum {
		return aNum && bNum && an == bn
	}

	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

func propertyKey(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	if n, ok := asNumber(v); ok {
		return formatNumber(n), true
	}
	return "", false
}

// asNumber reports whether v is a number and returns it as float64.
func asNumber(v any) (float64, bool) {
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
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// coerceNumber converts a non-numeric value to a number the way a loosely
// typed runtime does before a relational comparison.
func coerceNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return parseNumericString(x)
	case []any:
		return parseNumericString(toDisplayString(x))
	}
	if n, ok := asNumber(v); ok {
		return n
	}
	return math.NaN()
}

func parseNumericString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	lower := strings.ToLower(s)
	if strings.Contains(lower, "inf") || strings.Contains(lower, "nan") || strings.Contains(s, "_") {
		return math.NaN()
	}

	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "0o") || strings.HasPrefix(lower, "0b") {
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// toDisplayString renders a value the way it appears when concatenated into
// text: numbers without trailing zeros, arrays comma-joined, objects opaque.
func toDisplayString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, element := range x {
			if element == nil {
				continue
			}
			parts[i] = toDisplayString(element)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	}
	if n, ok := asNumber(v); ok {
		return formatNumber(n)
	}
	return "[object Object]"
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	// 1e-07 -> 1e-7, 1e+21 -> 1e+21
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exponent, _ := strings.Cut(s, "e")
	sign, digits := exponent[:1], strings.TrimLeft(exponent[1:], "0")
	return mantissa + "e" + sign + digits
}
