package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/rulevalidator/internal/logger"
	"github.com/liamcoop/rulevalidator/multitenantengine"
	"github.com/liamcoop/rulevalidator/rules"
)

const indexMessage = "My Rule-Validation API."

// Index handler. Browsers get an HTML page, everything else JSON.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := Envelope{Message: indexMessage, Status: statusSuccess, Data: s.cfg.Owner}

	if !wantsHTML(r) {
		respondJSON(w, http.StatusOK, data)
		return
	}

	pretty, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var page bytes.Buffer
	if err := indexTemplate.Execute(&page, map[string]string{"Title": indexMessage, "JSON": string(pretty)}); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page.Bytes())
}

func wantsHTML(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return false
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "json")
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Storage:       s.storage,
		TenantsLoaded: s.manager.Count(),
	}

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			health.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, Envelope{Message: "unhealthy", Status: statusError, Data: health})
			return
		}
	}

	respondSuccess(w, http.StatusOK, "healthy", health)
}

// engineFor resolves the engine of the tenant in the URL, or the default
// tenant on unscoped routes.
func (s *Server) engineFor(r *http.Request) (*rules.Engine, error) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		tenantID = multitenantengine.DefaultTenantID
	}
	return s.manager.GetEngine(tenantID)
}

// Validation handler for inline rules.
func (s *Server) handleValidateRule(w http.ResponseWriter, r *http.Request) {
	body, err := decodeObject(w, r, s.cfg.Server.MaxBodyBytes)
	if err != nil {
		respondError(w, r, err)
		return
	}

	spec, data, err := parseValidateRequest(body)
	if err != nil {
		respondError(w, r, err)
		return
	}

	engine, err := s.engineFor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := engine.Validate(data, spec)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeValidation(w, spec, result)
}

// writeValidation writes the outcome of an inline validation. A failed
// validation is a 400 with the same envelope.
func writeValidation(w http.ResponseWriter, spec rules.Spec, result *rules.EvaluationResult) {
	status, env := validationEnvelope(spec, result)
	respondJSON(w, status, env)
}

// validationEnvelope builds the response to a completed evaluation: 200 and
// "success" when the rule held, 400 and "error" when it did not.
func validationEnvelope(spec rules.Spec, result *rules.EvaluationResult) (int, Envelope) {
	env := Envelope{
		Message: "field " + spec.Field + " successfully validated.",
		Status:  statusSuccess,
		Data:    newValidationResponse(spec, result),
	}
	if !result.Result {
		env.Message = "field " + spec.Field + " failed validation."
		env.Status = statusError
		return http.StatusBadRequest, env
	}
	return http.StatusOK, env
}

func newValidationResponse(spec rules.Spec, result *rules.EvaluationResult) ValidationResponse {
	return ValidationResponse{
		Validation: ValidationDetail{
			Error:          !result.Result,
			Field:          spec.Field,
			FieldValue:     result.Value,
			Condition:      spec.Condition,
			ConditionValue: spec.ConditionValue,
		},
	}
}

// List tenants handler
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants := s.manager.ListTenants()

	resp := TenantsListResponse{Tenants: make([]TenantResponse, 0, len(tenants))}
	for _, t := range tenants {
		resp.Tenants = append(resp.Tenants, newTenantResponse(t))
	}

	respondSuccess(w, http.StatusOK, "", resp)
}

// Create tenant handler
func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := decodeBody(w, r, s.cfg.Server.MaxBodyBytes, &req); err != nil {
		respondError(w, r, err)
		return
	}

	tenant, err := s.manager.CreateTenant(r.Context(), req.ID, multitenantengine.TenantSettings{
		Name:              req.Name,
		LegacyComparisons: req.LegacyComparisons,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusCreated, "tenant created.", newTenantResponse(tenant))
}

// Get tenant handler
func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := s.manager.GetTenant(chi.URLParam(r, "tenantId"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusOK, "", newTenantResponse(tenant))
}

// Update tenant handler. The tenant's engine is rebuilt with the new
// settings without interrupting in-flight evaluations.
func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	var req multitenantengine.TenantSettings
	if err := decodeBody(w, r, s.cfg.Server.MaxBodyBytes, &req); err != nil {
		respondError(w, r, err)
		return
	}

	tenant, err := s.manager.UpdateTenantSettings(r.Context(), chi.URLParam(r, "tenantId"), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusOK, "tenant updated.", newTenantResponse(tenant))
}

// Delete tenant handler
func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteTenant(r.Context(), chi.URLParam(r, "tenantId")); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := decodeBody(w, r, s.cfg.Server.MaxBodyBytes, &req); err != nil {
		respondError(w, r, err)
		return
	}

	engine, err := s.engineFor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rule := &rules.Rule{
		ID:             req.ID,
		Name:           req.Name,
		Field:          req.Field,
		Condition:      req.Condition,
		ConditionValue: req.ConditionValue,
		Active:         req.Active == nil || *req.Active,
	}

	if err := engine.AddRule(r.Context(), rule); err != nil {
		respondError(w, r, err)
		return
	}

	logger.Debug("rule created", "tenant_id", chi.URLParam(r, "tenantId"), "rule_id", rule.ID)
	respondSuccess(w, http.StatusCreated, "rule created.", newRuleResponse(rule))
}

// List rules handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	list, err := engine.ListRules(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := RulesListResponse{Rules: make([]RuleResponse, 0, len(list))}
	for _, rule := range list {
		resp.Rules = append(resp.Rules, newRuleResponse(rule))
	}

	respondSuccess(w, http.StatusOK, "", resp)
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rule, err := engine.GetRule(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusOK, "", newRuleResponse(rule))
}

// Update rule handler
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req UpdateRuleRequest
	if err := decodeBody(w, r, s.cfg.Server.MaxBodyBytes, &req); err != nil {
		respondError(w, r, err)
		return
	}

	engine, err := s.engineFor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rule, err := engine.GetRule(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Field != nil {
		rule.Field = *req.Field
	}
	if req.Condition != nil {
		rule.Condition = *req.Condition
	}
	if req.ConditionValue != nil {
		rule.ConditionValue = req.ConditionValue
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	if err := engine.UpdateRule(r.Context(), rule); err != nil {
		respondError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusOK, "rule updated.", newRuleResponse(rule))
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := engine.DeleteRule(r.Context(), chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Evaluate one stored rule against {data}. Responds like an inline
// validation of the rule.
func (s *Server) handleEvaluateRule(w http.ResponseWriter, r *http.Request) {
	data, err := s.decodeData(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	engine, err := s.engineFor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	outcome, err := engine.EvaluateRule(r.Context(), chi.URLParam(r, "ruleId"), data)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeValidation(w, outcome.Spec, outcome.Result)
}

// Evaluate every active rule of the tenant against {data}. Rules are
// reported independently; one failing rule does not affect the others.
func (s *Server) handleEvaluateAll(w http.ResponseWriter, r *http.Request) {
	data, err := s.decodeData(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	engine, err := s.engineFor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	start := time.Now()
	outcomes, err := engine.EvaluateAll(r.Context(), data)
	if err != nil {
		respondError(w, r, err)
		return
	}
	elapsed := time.Since(start)

	resp := EvaluateResponse{Results: make([]OutcomeResponse, 0, len(outcomes))}
	for _, outcome := range outcomes {
		o := newOutcomeResponse(outcome)
		switch {
		case o.Result == nil:
			resp.Errored++
		case *o.Result:
			resp.Passed++
		default:
			resp.Failed++
		}
		resp.Results = append(resp.Results, o)
	}
	resp.EvaluationTime = elapsed.String()

	respondSuccess(w, http.StatusOK, "", resp)
}

func (s *Server) decodeData(w http.ResponseWriter, r *http.Request) (any, error) {
	body, err := decodeObject(w, r, s.cfg.Server.MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	return requiredData(body)
}
