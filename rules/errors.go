package rules

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an evaluation failure.
type ErrorKind int

const (
	// KindMissingField: a path segment is absent at the expected level.
	KindMissingField ErrorKind = iota + 1
	// KindInvalidField: the field path is malformed or too deep.
	KindInvalidField
	// KindUnsupportedCondition: the condition does not apply to string payloads.
	KindUnsupportedCondition
	// KindTypeMismatch: gt/gte was requested on non-numeric operands.
	KindTypeMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingField:
		return "missing_field"
	case KindInvalidField:
		return "invalid_field"
	case KindUnsupportedCondition:
		return "unsupported_condition"
	case KindTypeMismatch:
		return "type_mismatch"
	default:
		return "unknown"
	}
}

// Sentinels matched by *Error through errors.Is.
var (
	ErrMissingField         = errors.New("missing field")
	ErrInvalidField         = errors.New("invalid field")
	ErrUnsupportedCondition = errors.New("unsupported condition")
	ErrTypeMismatch         = errors.New("type mismatch")
)

// ErrUnsupportedPayload is returned when data is not a string, array or object.
var ErrUnsupportedPayload = errors.New("payload must be a string, array or object")

// Catalog errors.
var (
	ErrRuleNotFound = errors.New("rule not found")
	ErrRuleExists   = errors.New("rule already exists")
	ErrInvalidRule  = errors.New("invalid rule")
)

// Error is returned by the evaluator for every failure it raises.
// Message is the human-readable text the API hands back to clients.
type Error struct {
	Kind      ErrorKind
	Field     string
	Condition Condition
	Message   string
}

func (e *Error) Error() string {
	return e.Message
}

// Is lets errors.Is match an *Error against the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrMissingField:
		return e.Kind == KindMissingField
	case ErrInvalidField:
		return e.Kind == KindInvalidField
	case ErrUnsupportedCondition:
		return e.Kind == KindUnsupportedCondition
	case ErrTypeMismatch:
		return e.Kind == KindTypeMismatch
	}
	return false
}

// KindOf returns the kind of an evaluator error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func missingField(field string) *Error {
	return &Error{
		Kind:    KindMissingField,
		Field:   field,
		Message: fmt.Sprintf("field %s is missing from data.", field),
	}
}

func invalidField(field string) *Error {
	return &Error{
		Kind:    KindInvalidField,
		Field:   field,
		Message: fmt.Sprintf("field key %s is invalid.", field),
	}
}

func fieldTooDeep(field string) *Error {
	return &Error{
		Kind:    KindInvalidField,
		Field:   field,
		Message: fmt.Sprintf("field %s must not be more than two-levels deep.", field),
	}
}

func unsupportedCondition(c Condition) *Error {
	return &Error{
		Kind:      KindUnsupportedCondition,
		Condition: c,
		Message:   fmt.Sprintf("condition %s not supported for strings.", c),
	}
}

func typeMismatch(value any, c Condition, conditionValue any) *Error {
	return &Error{
		Kind:      KindTypeMismatch,
		Condition: c,
		Message: fmt.Sprintf("%s and %s must both be numbers for condition %s.",
			toDisplayString(value), toDisplayString(conditionValue), c),
	}
}
