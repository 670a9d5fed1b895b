package rules

// Options tunes evaluation policy.
type Options struct {
	// LegacyComparisons restores the loose ordering of the original service:
	// gt/gte coerce their operands to numbers and only fail when neither
	// operand is numeric.
	LegacyComparisons bool `json:"legacy_comparisons" yaml:"legacy_comparisons"`
}

// Validate evaluates spec against data and returns the result together with
// the resolved field value. data must be a string, []any, map[string]any or
// a Payload. Validate is a pure function of its inputs and safe for
// concurrent use.
func Validate(data any, spec Spec, opts Options) (*EvaluationResult, error) {
	payload, err := NewPayload(data)
	if err != nil {
		return nil, err
	}

	value, shape, err := Resolve(payload, spec.Field)
	if err != nil {
		return nil, err
	}

	result, err := EvaluateCondition(value, spec.Condition, spec.ConditionValue, shape, opts)
	if err != nil {
		return nil, err
	}

	return &EvaluationResult{
		Result: result,
		Value:  value,
		Field:  spec.Field,
	}, nil
}
