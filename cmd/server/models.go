package main

import (
	"time"

	"github.com/liamcoop/rulevalidator/multitenantengine"
	"github.com/liamcoop/rulevalidator/rules"
)

// API request and response models

// Envelope wraps every JSON response.
type Envelope struct {
	Message string `json:"message,omitempty" example:"field missions successfully validated."`
	Status  string `json:"status" example:"success"`
	Data    any    `json:"data"`
}

// ValidationResponse is the data member of a validation response.
type ValidationResponse struct {
	Validation ValidationDetail `json:"validation"`
}

// ValidationDetail echoes the evaluated rule and the resolved field value.
type ValidationDetail struct {
	Error          bool            `json:"error" example:"false"`
	Field          string          `json:"field" example:"missions"`
	FieldValue     any             `json:"field_value" example:"30"`
	Condition      rules.Condition `json:"condition" example:"gte"`
	ConditionValue any             `json:"condition_value" example:"30"`
}

// CreateTenantRequest represents the request body for creating a tenant.
// An empty ID is generated.
type CreateTenantRequest struct {
	ID                string  `json:"id,omitempty" example:"acme"`
	Name              *string `json:"name,omitempty" example:"Acme Corp"`
	LegacyComparisons *bool   `json:"legacy_comparisons,omitempty" example:"false"`
}

// TenantResponse represents a tenant in API responses
type TenantResponse struct {
	ID                string    `json:"id" example:"acme"`
	Name              string    `json:"name" example:"Acme Corp"`
	LegacyComparisons bool      `json:"legacy_comparisons" example:"false"`
	CreatedAt         time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt         time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

func newTenantResponse(t *multitenantengine.Tenant) TenantResponse {
	return TenantResponse{
		ID:                t.ID,
		Name:              t.Name,
		LegacyComparisons: t.LegacyComparisons,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

// TenantsListResponse represents the response for listing tenants
type TenantsListResponse struct {
	Tenants []TenantResponse `json:"tenants"`
}

// CreateRuleRequest represents the request body for creating a rule.
// Active defaults to true.
type CreateRuleRequest struct {
	ID             string          `json:"id,omitempty"`
	Name           string          `json:"name" example:"Veteran pilots"`
	Field          string          `json:"field" example:"missions"`
	Condition      rules.Condition `json:"condition" example:"gte"`
	ConditionValue any             `json:"condition_value" example:"30"`
	Active         *bool           `json:"active,omitempty" example:"true"`
}

// UpdateRuleRequest represents the request body for updating a rule.
// Omitted members keep their stored value.
type UpdateRuleRequest struct {
	Name           *string          `json:"name,omitempty"`
	Field          *string          `json:"field,omitempty"`
	Condition      *rules.Condition `json:"condition,omitempty"`
	ConditionValue any              `json:"condition_value,omitempty"`
	Active         *bool            `json:"active,omitempty"`
}

// RuleResponse represents a rule in API responses
type RuleResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Field          string          `json:"field"`
	Condition      rules.Condition `json:"condition"`
	ConditionValue any             `json:"condition_value"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func newRuleResponse(r *rules.Rule) RuleResponse {
	return RuleResponse{
		ID:             r.ID,
		Name:           r.Name,
		Field:          r.Field,
		Condition:      r.Condition,
		ConditionValue: r.ConditionValue,
		Active:         r.Active,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// RulesListResponse represents the response for listing rules
type RulesListResponse struct {
	Rules []RuleResponse `json:"rules"`
}

// OutcomeResponse is the result of evaluating one stored rule. Result is
// null and Error set when the evaluation failed.
type OutcomeResponse struct {
	RuleID     string `json:"rule_id"`
	RuleName   string `json:"rule_name"`
	Result     *bool  `json:"result"`
	Field      string `json:"field,omitempty"`
	FieldValue any    `json:"field_value,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newOutcomeResponse(o *rules.RuleOutcome) OutcomeResponse {
	resp := OutcomeResponse{RuleID: o.RuleID, RuleName: o.RuleName}
	if o.Error != nil {
		resp.Error = o.Error.Error()
		return resp
	}
	result := o.Result.Result
	resp.Result = &result
	resp.Field = o.Result.Field
	resp.FieldValue = o.Result.Value
	return resp
}

// EvaluateResponse represents the response for evaluating every active rule
type EvaluateResponse struct {
	Results        []OutcomeResponse `json:"results"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Errored        int               `json:"errored"`
	EvaluationTime string            `json:"evaluation_time" example:"42µs"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Storage       string `json:"storage" example:"postgres"`
	TenantsLoaded int    `json:"tenants_loaded" example:"3"`
	Error         string `json:"error,omitempty"`
}
