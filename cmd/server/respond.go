package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/liamcoop/rulevalidator/internal/logger"
	"github.com/liamcoop/rulevalidator/multitenantengine"
	"github.com/liamcoop/rulevalidator/rules"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	msgBodyRequired  = "Request body is required."
	msgInvalidJSON   = "Invalid JSON payload passed."
	msgBodyTooLarge  = "Request body is too large."
	msgRouteNotFound = "That route does not exist."
	msgInternal      = "Ye! Something just happen right now."
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func respondSuccess(w http.ResponseWriter, status int, message string, data any) {
	respondJSON(w, status, Envelope{Message: message, Status: statusSuccess, Data: data})
}

// respondFail writes an error envelope with a null data member.
func respondFail(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, Envelope{Message: message, Status: statusError, Data: nil})
}

// respondError maps err to a status code and writes it. Errors that are not
// the client's fault are logged and answered with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondFail(w, status, msgInternal)
		return
	}
	respondFail(w, status, err.Error())
}

func statusFor(err error) int {
	var bodyErr *bodyError
	switch {
	case errors.As(err, &bodyErr):
		return bodyErr.status
	case rules.IsEvaluationError(err),
		errors.Is(err, rules.ErrInvalidRule),
		errors.Is(err, multitenantengine.ErrInvalidTenant):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrRuleNotFound),
		errors.Is(err, multitenantengine.ErrTenantNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrRuleExists),
		errors.Is(err, multitenantengine.ErrTenantExists),
		errors.Is(err, multitenantengine.ErrDefaultTenant):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondFail(w, http.StatusNotFound, msgRouteNotFound)
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondFail(w, http.StatusMethodNotAllowed, "That route does not support the "+r.Method+" method.")
}
