package main

import (
	"database/sql"
	"embed"
	"html/template"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/rulevalidator/internal/config"
	"github.com/liamcoop/rulevalidator/internal/logger"
	"github.com/liamcoop/rulevalidator/internal/metrics"
	"github.com/liamcoop/rulevalidator/multitenantengine"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type Server struct {
	manager   *multitenantengine.MultiTenantEngineManager
	db        *sql.DB // nil for the memory backend
	storage   string
	collector *metrics.Collector // nil when metrics are disabled
	cfg       *config.Config
	router    *chi.Mux
}

func NewServer(cfg *config.Config, manager *multitenantengine.MultiTenantEngineManager, db *sql.DB, collector *metrics.Collector) *Server {
	s := &Server{
		manager:   manager,
		db:        db,
		storage:   cfg.Storage.Backend,
		collector: collector,
		cfg:       cfg,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger(s.cfg.Server.SlowRequestThreshold))
	if s.collector != nil {
		r.Use(s.collector.Middleware)
	}
	r.Use(recoverer)
	r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Get("/", s.handleIndex)
	r.Post("/validate-rule", s.handleValidateRule)

	if s.collector != nil {
		r.Method(http.MethodGet, s.cfg.Metrics.Path, s.collector.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", s.handleListTenants)
			r.Post("/", s.handleCreateTenant)

			r.Route("/{tenantId}", func(r chi.Router) {
				r.Get("/", s.handleGetTenant)
				r.Patch("/", s.handleUpdateTenant)
				r.Delete("/", s.handleDeleteTenant)

				r.Post("/validate-rule", s.handleValidateRule)
				r.Post("/evaluate", s.handleEvaluateAll)

				// Rule management
				r.Get("/rules", s.handleListRules)
				r.Post("/rules", s.handleCreateRule)
				r.Get("/rules/{ruleId}", s.handleGetRule)
				r.Put("/rules/{ruleId}", s.handleUpdateRule)
				r.Delete("/rules/{ruleId}", s.handleDeleteRule)
				r.Post("/rules/{ruleId}/evaluate", s.handleEvaluateRule)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// recoverer turns a handler panic into a JSON 500 response.
func recoverer(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				logger.Error("panic recovered",
					"panic", rvr,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", middleware.GetReqID(r.Context()),
					"stack", string(debug.Stack()),
				)
				respondFail(w, http.StatusInternalServerError, msgInternal)
			}
		}()

		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
