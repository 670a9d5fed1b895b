package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/rulevalidator/internal/config"
	"github.com/liamcoop/rulevalidator/internal/metrics"
	"github.com/liamcoop/rulevalidator/multitenantengine"
	"github.com/liamcoop/rulevalidator/rules"
)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Owner = config.OwnerConfig{Name: "Ada Lovelace", Github: "@ada", Email: "ada@example.com"}
	for _, m := range mutate {
		m(cfg)
	}

	collector := metrics.NewCollector("test", nil)
	manager := multitenantengine.NewMultiTenantEngineManager(
		multitenantengine.NewInMemoryTenantStore(),
		multitenantengine.NewInMemoryRuleStores(),
		multitenantengine.WithEngineOptions(rules.WithObserver(collector)),
	)
	require.NoError(t, manager.EnsureDefaultTenant(context.Background()))
	collector.RegisterTenantGauge(manager.Count)

	return NewServer(cfg, manager, nil, collector)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return env
}

// TestValidateRuleGolden pins the full response body of inline validations
func TestValidateRuleGolden(t *testing.T) {
	s := newTestServer(t)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	testCases := []struct {
		golden string
		body   string
		status int
	}{
		{
			golden: "validate_pass",
			body:   `{"rule":{"field":"age","condition":"gte","condition_value":25},"data":{"age":30}}`,
			status: http.StatusOK,
		},
		{
			golden: "validate_fail",
			body:   `{"rule":{"field":"user.age","condition":"gte","condition_value":18},"data":{"user":{"age":17}}}`,
			status: http.StatusBadRequest,
		},
		{
			golden: "validate_string_index",
			body:   `{"rule":{"field":"0","condition":"eq","condition_value":"h"},"data":"hello"}`,
			status: http.StatusOK,
		},
		{
			golden: "validate_missing_field",
			body:   `{"rule":{"field":"x","condition":"contains","condition_value":"a"},"data":["a","b"]}`,
			status: http.StatusBadRequest,
		},
		{
			golden: "validate_original_example",
			body: `{"rule":{"field":"missions","condition":"gte","condition_value":30},
				"data":{"name":"James Holden","crew":"Rocinante","age":34,"position":"Captain","missions":45}}`,
			status: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.golden, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/validate-rule", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
			g.Assert(t, tc.golden, rec.Body.Bytes())
		})
	}
}

// TestValidateRuleRequestErrors verifies every rejected request answers 400 with data null
func TestValidateRuleRequestErrors(t *testing.T) {
	s := newTestServer(t)

	testCases := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"empty body", "", http.StatusBadRequest, "Request body is required."},
		{"blank body", "   ", http.StatusBadRequest, "Request body is required."},
		{"malformed json", `{"rule":`, http.StatusBadRequest, "Invalid JSON payload passed."},
		{"not an object", `[1,2]`, http.StatusBadRequest, "Invalid JSON payload passed."},
		{"missing rule", `{"data":{}}`, http.StatusBadRequest, "rule is required."},
		{"rule not object", `{"rule":"age","data":{}}`, http.StatusBadRequest, "rule should be an object."},
		{"missing field", `{"rule":{"condition":"eq","condition_value":1},"data":{}}`, http.StatusBadRequest, "rule.field is required."},
		{"empty field", `{"rule":{"field":"","condition":"eq","condition_value":1},"data":{}}`, http.StatusBadRequest, "rule.field is required."},
		{"numeric field", `{"rule":{"field":1,"condition":"eq","condition_value":1},"data":{}}`, http.StatusBadRequest, "rule.field should be a string."},
		{"missing condition", `{"rule":{"field":"a","condition_value":1},"data":{}}`, http.StatusBadRequest, "rule.condition is required."},
		{"unknown condition", `{"rule":{"field":"a","condition":"lt","condition_value":1},"data":{}}`, http.StatusBadRequest, "rule.condition should be one of [eq neq gt gte contains]."},
		{"missing value", `{"rule":{"field":"a","condition":"eq"},"data":{}}`, http.StatusBadRequest, "rule.condition_value is required."},
		{"boolean value", `{"rule":{"field":"a","condition":"eq","condition_value":true},"data":{}}`, http.StatusBadRequest, "rule.condition_value should be a string or number."},
		{"object value", `{"rule":{"field":"a","condition":"eq","condition_value":{}},"data":{}}`, http.StatusBadRequest, "rule.condition_value should be a string or number."},
		{"missing data", `{"rule":{"field":"a","condition":"eq","condition_value":1}}`, http.StatusBadRequest, "data is required."},
		{"null data", `{"rule":{"field":"a","condition":"eq","condition_value":1},"data":null}`, http.StatusBadRequest, "data is required."},
		{"numeric data", `{"rule":{"field":"a","condition":"eq","condition_value":1},"data":42}`, http.StatusBadRequest, "data should be an object, array or string."},
		{"too deep", `{"rule":{"field":"a.b.c","condition":"eq","condition_value":1},"data":{}}`, http.StatusBadRequest, "field a.b.c must not be more than two-levels deep."},
		{"invalid key", `{"rule":{"field":"a.","condition":"eq","condition_value":1},"data":{"a":{}}}`, http.StatusBadRequest, "field key a. is invalid."},
		{"string condition", `{"rule":{"field":"0","condition":"gt","condition_value":"a"},"data":"hello"}`, http.StatusBadRequest, "condition gt not supported for strings."},
		{"type mismatch", `{"rule":{"field":"a","condition":"gt","condition_value":5},"data":{"a":"x"}}`, http.StatusBadRequest, "x and 5 must both be numbers for condition gt."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/validate-rule", tc.body)
			assert.Equal(t, tc.status, rec.Code)

			env := decodeEnvelope(t, rec)
			assert.Equal(t, tc.message, env["message"])
			assert.Equal(t, "error", env["status"])
			assert.Contains(t, env, "data")
			assert.Nil(t, env["data"])
		})
	}
}

func TestValidateRuleBodyTooLarge(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Server.MaxBodyBytes = 16 })

	rec := doRequest(t, s, http.MethodPost, "/validate-rule",
		`{"rule":{"field":"age","condition":"gte","condition_value":25},"data":{"age":30}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Request body is too large.", decodeEnvelope(t, rec)["message"])
}

// TestIndex tests content negotiation on the index route
func TestIndex(t *testing.T) {
	s := newTestServer(t)

	t.Run("json", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden")).
			Assert(t, "index", rec.Body.Bytes())
	})

	t.Run("browser", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/", "", "Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "<title>My Rule-Validation API.</title>")
		assert.Contains(t, rec.Body.String(), "Ada Lovelace")
	})

	t.Run("accept mentions json", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/", "", "Accept", "text/html,application/json")
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	})

	t.Run("xhr", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/", "", "Accept", "text/html", "X-Requested-With", "XMLHttpRequest")
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	})
}

func TestUnknownRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "That route does not exist.", decodeEnvelope(t, rec)["message"])

	rec = doRequest(t, s, http.MethodGet, "/validate-rule", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "That route does not support the GET method.", env["message"])
	assert.Equal(t, "error", env["status"])
}

func TestRecoverer(t *testing.T) {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) { panic("boom") })

	rec := doRequest(t, r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Ye! Something just happen right now.", decodeEnvelope(t, rec)["message"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "healthy", env["message"])
	data := env["data"].(map[string]any)
	assert.Equal(t, "memory", data["storage"])
	assert.Equal(t, 1.0, data["tenants_loaded"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	doRequest(t, s, http.MethodPost, "/validate-rule",
		`{"rule":{"field":"age","condition":"gte","condition_value":25},"data":{"age":30}}`)

	rec := doRequest(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `test_evaluations_total{condition="gte",outcome="pass",shape="object"} 1`)
	assert.Contains(t, body, `test_http_requests_total{method="POST",route="/validate-rule",status="200"} 1`)
	assert.Contains(t, body, "test_tenants 1")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := config.Default()
	manager := multitenantengine.NewMultiTenantEngineManager(
		multitenantengine.NewInMemoryTenantStore(), multitenantengine.NewInMemoryRuleStores())
	require.NoError(t, manager.EnsureDefaultTenant(context.Background()))
	s := NewServer(cfg, manager, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestTenantLifecycle tests create, update and delete of a tenant through the API
func TestTenantLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/tenants", `{"id":"acme","name":"Acme Corp"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tenant := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.Equal(t, "acme", tenant["id"])
	assert.Equal(t, "Acme Corp", tenant["name"])
	assert.Equal(t, false, tenant["legacy_comparisons"])

	rec = doRequest(t, s, http.MethodPost, "/api/v1/tenants", `{"id":"acme"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/tenants", `{"id":"bad id"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/tenants", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeEnvelope(t, rec)["data"].(map[string]any)["tenants"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "acme", list[0].(map[string]any)["id"])
	assert.Equal(t, "default", list[1].(map[string]any)["id"])

	// Strict policy: a numeric string is not a number.
	body := `{"rule":{"field":"score","condition":"gt","condition_value":10},"data":{"score":"42"}}`
	rec = doRequest(t, s, http.MethodPost, "/api/v1/tenants/acme/validate-rule", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "42 and 10 must both be numbers for condition gt.", decodeEnvelope(t, rec)["message"])

	rec = doRequest(t, s, http.MethodPatch, "/api/v1/tenants/acme", `{"legacy_comparisons":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeEnvelope(t, rec)["data"].(map[string]any)["legacy_comparisons"])

	rec = doRequest(t, s, http.MethodPost, "/api/v1/tenants/acme/validate-rule", body)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The default tenant keeps the strict policy.
	rec = doRequest(t, s, http.MethodPost, "/validate-rule", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/tenants/acme", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/tenants/acme", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/tenants/acme", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "tenant not found: acme", decodeEnvelope(t, rec)["message"])

	rec = doRequest(t, s, http.MethodPost, "/api/v1/tenants/acme/validate-rule", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/tenants/default", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// TestRuleLifecycle tests the stored rule workflow:
// 1. Create rules
// 2. Evaluate one rule and every active rule
// 3. Deactivate and delete
func TestRuleLifecycle(t *testing.T) {
	s := newTestServer(t)
	base := "/api/v1/tenants/default/rules"

	rec := doRequest(t, s, http.MethodPost, base,
		`{"id":"veterans","name":"Veteran pilots","field":"missions","condition":"gte","condition_value":30}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.Equal(t, "veterans", rule["id"])
	assert.Equal(t, true, rule["active"])
	assert.Equal(t, 30.0, rule["condition_value"])

	rec = doRequest(t, s, http.MethodPost, base,
		`{"name":"Crew","field":"crew","condition":"eq","condition_value":"Rocinante"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	crewID := decodeEnvelope(t, rec)["data"].(map[string]any)["id"].(string)
	assert.Len(t, crewID, 36)

	rec = doRequest(t, s, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeEnvelope(t, rec)["data"].(map[string]any)["rules"], 2)

	rec = doRequest(t, s, http.MethodGet, base+"/veterans", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Evaluating a stored rule answers like an inline validation.
	rec = doRequest(t, s, http.MethodPost, base+"/veterans/evaluate", `{"data":{"missions":45}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "field missions successfully validated.", decodeEnvelope(t, rec)["message"])

	rec = doRequest(t, s, http.MethodPost, base+"/veterans/evaluate", `{"data":{"missions":3}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "field missions failed validation.", decodeEnvelope(t, rec)["message"])

	rec = doRequest(t, s, http.MethodPost, base+"/veterans/evaluate", `{"data":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "field missions is missing from data.", decodeEnvelope(t, rec)["message"])

	rec = doRequest(t, s, http.MethodPost, base+"/veterans/evaluate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "data is required.", decodeEnvelope(t, rec)["message"])

	// Every active rule is reported independently.
	rec = doRequest(t, s, http.MethodPost, "/api/v1/tenants/default/evaluate", `{"data":{"missions":45}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.Equal(t, 1.0, summary["passed"])
	assert.Equal(t, 0.0, summary["failed"])
	assert.Equal(t, 1.0, summary["errored"])
	results := summary["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "veterans", results[0].(map[string]any)["rule_id"])
	assert.Equal(t, "field crew is missing from data.", results[1].(map[string]any)["error"])
	assert.Nil(t, results[1].(map[string]any)["result"])

	rec = doRequest(t, s, http.MethodPut, base+"/veterans", `{"active":false,"condition_value":40}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.Equal(t, false, updated["active"])
	assert.Equal(t, 40.0, updated["condition_value"])
	assert.Equal(t, "Veteran pilots", updated["name"])

	// The stored rule is evaluated as updated, inactive or not.
	rec = doRequest(t, s, http.MethodPost, base+"/veterans/evaluate", `{"data":{"missions":45}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	validation := decodeEnvelope(t, rec)["data"].(map[string]any)["validation"].(map[string]any)
	assert.Equal(t, 40.0, validation["condition_value"])
	assert.Equal(t, "missions", validation["field"])

	rec = doRequest(t, s, http.MethodPost, base+"/unknown/evaluate", `{"data":{"missions":45}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/tenants/default/evaluate", `{"data":{"missions":45}}`)
	assert.Len(t, decodeEnvelope(t, rec)["data"].(map[string]any)["results"], 1)

	rec = doRequest(t, s, http.MethodDelete, base+"/veterans", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodGet, base+"/veterans", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, base+"/veterans", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidationEnvelope(t *testing.T) {
	spec := rules.Spec{Field: "missions", Condition: rules.ConditionGte, ConditionValue: 30.0}

	status, env := validationEnvelope(spec, &rules.EvaluationResult{Result: true, Value: 45.0})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "field missions successfully validated.", env.Message)
	assert.Equal(t, statusSuccess, env.Status)
	detail := env.Data.(ValidationResponse).Validation
	assert.False(t, detail.Error)
	assert.Equal(t, 45.0, detail.FieldValue)
	assert.Equal(t, 30.0, detail.ConditionValue)

	status, env = validationEnvelope(spec, &rules.EvaluationResult{Result: false, Value: 3.0})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "field missions failed validation.", env.Message)
	assert.Equal(t, statusError, env.Status)
	assert.True(t, env.Data.(ValidationResponse).Validation.Error)
}

func TestCreateRuleErrors(t *testing.T) {
	s := newTestServer(t)
	base := "/api/v1/tenants/default/rules"

	testCases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown condition", base, `{"name":"r","field":"a","condition":"lt","condition_value":1}`, http.StatusBadRequest},
		{"empty name", base, `{"name":"","field":"a","condition":"eq","condition_value":1}`, http.StatusBadRequest},
		{"too deep", base, `{"name":"r","field":"a.b.c","condition":"eq","condition_value":1}`, http.StatusBadRequest},
		{"boolean value", base, `{"name":"r","field":"a","condition":"eq","condition_value":true}`, http.StatusBadRequest},
		{"malformed", base, `{"name":`, http.StatusBadRequest},
		{"unknown tenant", "/api/v1/tenants/ghost/rules", `{"name":"r","field":"a","condition":"eq","condition_value":1}`, http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, "error", decodeEnvelope(t, rec)["status"])
		})
	}

	body := `{"id":"dup","name":"r","field":"a","condition":"eq","condition_value":1}`
	require.Equal(t, http.StatusCreated, doRequest(t, s, http.MethodPost, base, body).Code)
	assert.Equal(t, http.StatusConflict, doRequest(t, s, http.MethodPost, base, body).Code)
}
