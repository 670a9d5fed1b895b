package rules

import (
	"fmt"
	"time"
)

// Condition names the comparison a rule applies to a resolved field value.
type Condition string

const (
	ConditionEq       Condition = "eq"
	ConditionNeq      Condition = "neq"
	ConditionGt       Condition = "gt"
	ConditionGte      Condition = "gte"
	ConditionContains Condition = "contains"
)

var conditions = []Condition{
	ConditionEq,
	ConditionNeq,
	ConditionGt,
	ConditionGte,
	ConditionContains,
}

// Conditions returns the full condition vocabulary in canonical order.
func Conditions() []Condition {
	out := make([]Condition, len(conditions))
	copy(out, conditions)
	return out
}

// Valid reports whether c belongs to the condition vocabulary.
func (c Condition) Valid() bool {
	for _, known := range conditions {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCondition converts a condition name into a Condition.
func ParseCondition(s string) (Condition, error) {
	c := Condition(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown condition %q (must be one of %v)", s, conditions)
	}
	return c, nil
}

// Shape is the shape class of a payload. It selects both how a field path is
// navigated and which conditions apply to the resolved value.
type Shape int

const (
	ShapeString Shape = iota + 1
	ShapeArray
	ShapeObject
)

func (s Shape) String() string {
	switch s {
	case ShapeString:
		return "string"
	case ShapeArray:
		return "array"
	case ShapeObject:
		return "object"
	default:
		return "unknown"
	}
}

// applicability lists the conditions each shape class supports.
var applicability = map[Shape]map[Condition]bool{
	ShapeString: {
		ConditionEq:  true,
		ConditionNeq: true,
	},
	ShapeArray: {
		ConditionEq:       true,
		ConditionNeq:      true,
		ConditionGt:       true,
		ConditionGte:      true,
		ConditionContains: true,
	},
	ShapeObject: {
		ConditionEq:       true,
		ConditionNeq:      true,
		ConditionGt:       true,
		ConditionGte:      true,
		ConditionContains: true,
	},
}

// AppliesTo reports whether the condition is supported for the shape class.
func (c Condition) AppliesTo(s Shape) bool {
	return applicability[s][c]
}

// Spec is an inline rule: a field path, a condition and the value the
// resolved field is compared against.
type Spec struct {
	Field          string    `json:"field"`
	Condition      Condition `json:"condition"`
	ConditionValue any       `json:"condition_value"`
}

// EvaluationResult is the outcome of evaluating a Spec against a payload.
type EvaluationResult struct {
	Result bool   `json:"result"`
	Value  any    `json:"value"`
	Field  string `json:"field"`
}

// Rule is a named, stored Spec.
type Rule struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Field          string    `json:"field"`
	Condition      Condition `json:"condition"`
	ConditionValue any       `json:"condition_value"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Spec returns the inline form of the rule.
func (r *Rule) Spec() Spec {
	return Spec{
		Field:          r.Field,
		Condition:      r.Condition,
		ConditionValue: r.ConditionValue,
	}
}

// RuleOutcome contains the outcome of evaluating a stored rule.
// Spec is the rule as it was evaluated. Result is nil when Error is set.
type RuleOutcome struct {
	RuleID   string
	RuleName string
	Spec     Spec
	Result   *EvaluationResult
	Error    error
}
