// Package metrics exposes rule evaluation, HTTP and logger counters in the
// Prometheus exposition format.
//
// Metrics:
//   - <ns>_evaluations_total: evaluations by shape, condition and outcome (pass, fail, error)
//   - <ns>_evaluation_errors_total: failed evaluations by error kind
//   - <ns>_evaluation_duration_seconds: evaluation latency by shape
//   - <ns>_http_requests_total: requests by route pattern, method and status
//   - <ns>_http_request_duration_seconds: request latency by route pattern
//   - <ns>_tenants: tenants with a loaded engine
//   - <ns>_log_errors_total, <ns>_log_warnings_total and the HTTP 4xx/5xx log counters
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/rulevalidator/internal/logger"
	"github.com/liamcoop/rulevalidator/rules"
)

// Collector owns a Prometheus registry with every service metric registered.
// It implements rules.Observer.
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec
	evaluationErrors   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var _ rules.Observer = (*Collector)(nil)

// NewCollector creates a collector and registers its metrics with registry.
// A nil registry gets a fresh one.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		namespace: namespace,
		registry:  registry,

		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of rule evaluations",
			},
			[]string{"shape", "condition", "outcome"},
		),

		evaluationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluation_errors_total",
				Help:      "Total number of failed rule evaluations by error kind",
			},
			[]string{"kind"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of a single rule evaluation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"shape"},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	registry.MustRegister(
		c.evaluationsTotal,
		c.evaluationErrors,
		c.evaluationDuration,
		c.httpRequestsTotal,
		c.httpRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c.registerLoggerCounters()

	return c
}

// registerLoggerCounters exports the logger's atomic counters.
func (c *Collector) registerLoggerCounters() {
	counters := []struct {
		name  string
		help  string
		value *atomic.Int64
	}{
		{"log_errors_total", "Errors reported through the logger, sampled or not", &logger.TotalErrors},
		{"log_warnings_total", "Warnings reported through the logger, sampled or not", &logger.TotalWarnings},
		{"http_5xx_total", "HTTP responses with a 5xx status", &logger.Total5xxErrors},
		{"http_4xx_total", "HTTP responses with a 4xx status", &logger.Total4xxErrors},
		{"http_400_total", "HTTP responses with status 400", &logger.Total400Errors},
		{"http_404_total", "HTTP responses with status 404", &logger.Total404Errors},
		{"http_429_total", "HTTP responses with status 429", &logger.Total429Errors},
		{"http_slow_requests_total", "HTTP requests slower than the configured threshold", &logger.SlowRequests},
	}

	for _, counter := range counters {
		value := counter.value
		c.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: c.namespace,
				Name:      counter.name,
				Help:      counter.help,
			},
			func() float64 { return float64(value.Load()) },
		))
	}
}

// RegisterTenantGauge exports the number of loaded tenants.
func (c *Collector) RegisterTenantGauge(count func() int) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "tenants",
			Help:      "Number of tenants with a loaded engine",
		},
		func() float64 { return float64(count()) },
	))
}

// ObserveEvaluation records one rule evaluation.
func (c *Collector) ObserveEvaluation(shape rules.Shape, condition rules.Condition, result bool, err error, elapsed time.Duration) {
	outcome := "fail"
	switch {
	case err != nil:
		outcome = "error"
		c.evaluationErrors.WithLabelValues(errorKind(err)).Inc()
	case result:
		outcome = "pass"
	}

	// Unknown conditions are folded into one label value to bound cardinality.
	label := string(condition)
	if !condition.Valid() {
		label = "unknown"
	}

	c.evaluationsTotal.WithLabelValues(shape.String(), label, outcome).Inc()
	c.evaluationDuration.WithLabelValues(shape.String()).Observe(elapsed.Seconds())
}

func errorKind(err error) string {
	if kind, ok := rules.KindOf(err); ok {
		return kind.String()
	}
	if errors.Is(err, rules.ErrUnsupportedPayload) {
		return "unsupported_payload"
	}
	return "other"
}

// Middleware counts requests by chi route pattern. Unmatched routes are
// reported as "unmatched" so arbitrary paths never become label values.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		c.httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		c.httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
	return http.HandlerFunc(fn)
}

// Handler returns the Prometheus scrape handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
