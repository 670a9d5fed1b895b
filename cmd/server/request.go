package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/liamcoop/rulevalidator/rules"
)

// bodyError is a request body rejected before it reaches the engine.
type bodyError struct {
	status  int
	message string
}

func (e *bodyError) Error() string { return e.message }

func badRequest(format string, args ...any) error {
	return &bodyError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

// readBody reads at most maxBytes of the request body. An empty or blank
// body is rejected.
func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if r.Body == nil {
		return nil, badRequest(msgBodyRequired)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &bodyError{status: http.StatusRequestEntityTooLarge, message: msgBodyTooLarge}
		}
		return nil, badRequest(msgInvalidJSON)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, badRequest(msgBodyRequired)
	}
	return body, nil
}

// decodeBody reads the request body and unmarshals it into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	body, err := readBody(w, r, maxBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return badRequest(msgInvalidJSON)
	}
	return nil
}

// decodeObject reads a body that must be a JSON object.
func decodeObject(w http.ResponseWriter, r *http.Request, maxBytes int64) (map[string]any, error) {
	var body any
	if err := decodeBody(w, r, maxBytes, &body); err != nil {
		return nil, err
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, badRequest(msgInvalidJSON)
	}
	return obj, nil
}

// parseValidateRequest checks the {rule, data} body of a validation request
// and returns the inline rule and the payload.
func parseValidateRequest(body map[string]any) (rules.Spec, any, error) {
	var spec rules.Spec

	raw, ok := body["rule"]
	if !ok || raw == nil {
		return spec, nil, badRequest("rule is required.")
	}
	rule, ok := raw.(map[string]any)
	if !ok {
		return spec, nil, badRequest("rule should be an object.")
	}

	field, err := requiredString(rule, "field")
	if err != nil {
		return spec, nil, err
	}
	spec.Field = field

	condition, ok := rule["condition"]
	if !ok || condition == nil {
		return spec, nil, badRequest("rule.condition is required.")
	}
	name, _ := condition.(string)
	c, err := rules.ParseCondition(name)
	if err != nil {
		return spec, nil, badRequest("rule.condition should be one of %v.", rules.Conditions())
	}
	spec.Condition = c

	value, ok := rule["condition_value"]
	if !ok || value == nil {
		return spec, nil, badRequest("rule.condition_value is required.")
	}
	if err := rules.ValidateConditionValue(value); err != nil {
		return spec, nil, badRequest("rule.condition_value should be a string or number.")
	}
	spec.ConditionValue = value

	data, err := requiredData(body)
	if err != nil {
		return spec, nil, err
	}
	return spec, data, nil
}

func requiredString(obj map[string]any, key string) (string, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return "", badRequest("rule.%s is required.", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", badRequest("rule.%s should be a string.", key)
	}
	if s == "" {
		return "", badRequest("rule.%s is required.", key)
	}
	return s, nil
}

// requiredData extracts the payload to evaluate: an object, array or string.
func requiredData(body map[string]any) (any, error) {
	data, ok := body["data"]
	if !ok || data == nil {
		return nil, badRequest("data is required.")
	}
	switch data.(type) {
	case map[string]any, []any, string:
		return data, nil
	default:
		return nil, badRequest("data should be an object, array or string.")
	}
}
