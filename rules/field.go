package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxFieldDepth is the number of segments a field path may have.
const MaxFieldDepth = 2

// Payload is the data a rule is evaluated against. It is exactly one of
// StringPayload, ArrayPayload or ObjectPayload.
type Payload interface {
	Shape() Shape
	payload()
}

// StringPayload is a string addressed by character index.
type StringPayload string

// ArrayPayload is a JSON array addressed by element index.
type ArrayPayload []any

// ObjectPayload is a JSON object addressed by key.
type ObjectPayload map[string]any

func (StringPayload) Shape() Shape { return ShapeString }
func (ArrayPayload) Shape() Shape  { return ShapeArray }
func (ObjectPayload) Shape() Shape { return ShapeObject }

func (StringPayload) payload() {}
func (ArrayPayload) payload()  {}
func (ObjectPayload) payload() {}

// NewPayload classifies decoded JSON data into its shape class.
func NewPayload(data any) (Payload, error) {
	switch d := data.(type) {
	case Payload:
		return d, nil
	case string:
		return StringPayload(d), nil
	case []any:
		return ArrayPayload(d), nil
	case map[string]any:
		return ObjectPayload(d), nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedPayload, data)
	}
}

// ParseField splits a dotted field path into its segments.
// A path has one or two non-empty segments.
func ParseField(field string) ([]string, error) {
	if field == "" {
		return nil, invalidField(field)
	}

	segments := strings.Split(field, ".")
	if len(segments) > MaxFieldDepth {
		return nil, fieldTooDeep(field)
	}

	for _, segment := range segments {
		if segment == "" {
			return nil, invalidField(field)
		}
	}

	return segments, nil
}

// Resolve navigates field within p and returns the referenced value together
// with the shape class used to evaluate it. A value that is null, 0, "" or
// false does not exist.
func Resolve(p Payload, field string) (any, Shape, error) {
	segments, err := ParseField(field)
	if err != nil {
		return nil, 0, err
	}

	switch data := p.(type) {
	case StringPayload:
		value, err := resolveString(string(data), field, segments)
		return value, ShapeString, err

	case ArrayPayload:
		value, err := resolveContainer([]any(data), field, segments)
		return value, ShapeArray, err

	case ObjectPayload:
		value, err := resolveContainer(map[string]any(data), field, segments)
		return value, ShapeObject, err

	default:
		return nil, 0, fmt.Errorf("%w: got %T", ErrUnsupportedPayload, p)
	}
}

// resolveString treats the field as a character index into s.
func resolveString(s, field string, segments []string) (any, error) {
	if len(segments) != 1 {
		return nil, invalidField(field)
	}

	index, err := strconv.Atoi(segments[0])
	if err != nil {
		return nil, invalidField(field)
	}

	chars := []rune(s)
	if index < 0 || index >= len(chars) {
		return nil, missingField(field)
	}

	return string(chars[index]), nil
}

func resolveContainer(root any, field string, segments []string) (any, error) {
	first, ok := lookup(root, segments[0])
	if !ok {
		if len(segments) == 1 {
			return nil, missingField(field)
		}
		return nil, missingField(segments[0])
	}

	if len(segments) == 1 {
		return first, nil
	}

	switch first.(type) {
	case map[string]any, []any:
	default:
		return nil, missingField(field)
	}

	value, ok := lookup(first, segments[1])
	if !ok {
		return nil, missingField(field)
	}

	return value, nil
}

// lookup reads one segment out of an object or array.
func lookup(container any, segment string) (any, bool) {
	var value any

	switch c := container.(type) {
	case map[string]any:
		v, ok := c[segment]
		if !ok {
			return nil, false
		}
		value = v

	case []any:
		index, ok := arrayIndex(segment, len(c))
		if !ok {
			return nil, false
		}
		value = c[index]

	default:
		return nil, false
	}

	if !present(value) {
		return nil, false
	}
	return value, true
}

// arrayIndex accepts only canonical non-negative integers ("1", not "01" or "+1").
func arrayIndex(segment string, length int) (int, bool) {
	index, err := strconv.Atoi(segment)
	if err != nil || index < 0 || index >= length {
		return 0, false
	}
	if strconv.Itoa(index) != segment {
		return 0, false
	}
	return index, true
}

// present reports whether a stored value counts as existing. null and the
// falsy values 0, NaN, "" and false do not.
func present(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	}
	if n, ok := asNumber(value); ok {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}
