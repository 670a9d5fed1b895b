package rules

import (
	"fmt"
	"math"
	"strings"
)

// MaxRuleNameLength bounds a stored rule's name.
const MaxRuleNameLength = 100

// ValidateRule checks a rule definition before it is stored.
// Returns an error wrapping ErrInvalidRule if validation fails.
func ValidateRule(r *Rule) error {
	if r == nil {
		return fmt.Errorf("%w: rule is nil", ErrInvalidRule)
	}

	name := strings.TrimSpace(r.Name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidRule)
	}
	if len(name) > MaxRuleNameLength {
		return fmt.Errorf("%w: name length %d exceeds maximum of %d characters", ErrInvalidRule, len(name), MaxRuleNameLength)
	}

	if _, err := ParseField(r.Field); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	if !r.Condition.Valid() {
		return fmt.Errorf("%w: condition %q must be one of %v", ErrInvalidRule, r.Condition, conditions)
	}

	return ValidateConditionValue(r.ConditionValue)
}

// ValidateConditionValue accepts a string or a finite number.
func ValidateConditionValue(v any) error {
	if _, ok := v.(string); ok {
		return nil
	}
	if n, ok := asNumber(v); ok {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return fmt.Errorf("%w: condition_value must be a finite number", ErrInvalidRule)
		}
		return nil
	}
	return fmt.Errorf("%w: condition_value must be a string or number, got %T", ErrInvalidRule, v)
}
