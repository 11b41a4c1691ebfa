// Package server provides the store platform HTTP server.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/SHESHU45/UrumiAssignment/internal/audit"
	"github.com/SHESHU45/UrumiAssignment/internal/httputil"
	"github.com/SHESHU45/UrumiAssignment/internal/manager"
	"github.com/SHESHU45/UrumiAssignment/internal/metrics"
	"github.com/SHESHU45/UrumiAssignment/internal/model"
	"github.com/SHESHU45/UrumiAssignment/internal/reconcile"
)

const (
	maxBodyBytes     = 1 << 20
	readinessTimeout = 2 * time.Second
	triggerTimeout   = 60 * time.Second
)

// StoreService is the orchestrator surface used by the handlers.
type StoreService interface {
	Create(ctx context.Context, req manager.CreateRequest) (model.Store, error)
	Delete(ctx context.Context, id, ipAddress string) (manager.DeleteResult, error)
	GetDetails(ctx context.Context, id string) (manager.Details, error)
	List(ctx context.Context) ([]model.Store, error)
	ListStoreEvents(ctx context.Context, id string, limit int) ([]model.StoreEvent, error)
	ListEvents(ctx context.Context, limit int) ([]model.StoreEvent, error)
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)
	Metrics(ctx context.Context) (manager.MetricsSnapshot, error)
}

// Pinger checks repository connectivity for readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reconciler exposes the reconciliation loop to operators.
type Reconciler interface {
	Trigger(ctx context.Context) error
	Status() reconcile.Status
}

// Auditor records mutating requests.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Config holds the HTTP-facing settings.
type Config struct {
	DashboardURL   string
	StoreDomain    string
	MetricsEnabled bool
}

// Server wraps HTTP routes and dependencies.
type Server struct {
	stores      StoreService
	pinger      Pinger
	cfg         Config
	version     string
	commit      string
	buildDate   string
	openapiSpec []byte
	metrics     *metrics.Recorder
	auditor     Auditor
	reconciler  Reconciler
	log         zerolog.Logger
	router      chi.Router
}

// Option configures server construction.
type Option func(*Server)

// WithOpenAPISpec sets the embedded OpenAPI bytes.
func WithOpenAPISpec(spec []byte) Option {
	return func(s *Server) { s.openapiSpec = spec }
}

// WithMetrics records HTTP metrics and serves /metrics when enabled.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Server) { s.metrics = r }
}

// WithAuditor records every mutating request in the audit trail.
func WithAuditor(a Auditor) Option {
	return func(s *Server) { s.auditor = a }
}

// WithReconciler exposes reconciliation status and manual triggering.
func WithReconciler(r Reconciler) Option {
	return func(s *Server) { s.reconciler = r }
}

// WithLogger sets the request and error logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.log = logger.With().Str("component", "http").Logger() }
}

// New constructs the store API server.
func New(stores StoreService, pinger Pinger, cfg Config, version, commit, buildDate string, opts ...Option) *Server {
	s := &Server{
		stores:    stores,
		pinger:    pinger,
		cfg:       cfg,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the configured router.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "store-platform",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}))
	})
	r.Use(httputil.Metrics(s.metrics))
	r.Use(httputil.RequestID)
	r.Use(httputil.RequestLogger(s.log))
	r.Use(httputil.Recoverer(s.log))
	r.Use(httputil.SecureHeaders)
	r.Use(httputil.CORS(s.corsConfig()))
	r.Use(httputil.BodyLimit(maxBodyBytes))

	r.Group(func(r chi.Router) {
		r.Method(http.MethodGet, "/health", httputil.HealthHandler())
		r.Method(http.MethodGet, "/readiness", httputil.ReadinessHandler(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
			defer cancel()
			return s.pinger.Ping(ctx)
		}))
		r.Method(http.MethodGet, "/version", httputil.VersionHandler(s.version, s.commit, s.buildDate))
		if s.cfg.MetricsEnabled && s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}
		r.Method(http.MethodGet, "/api/openapi.yaml", httputil.OpenAPIHandler(s.openapiSpec))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auditMutations)

		r.Method(http.MethodGet, "/health", httputil.HealthHandler())

		r.Get("/stores", s.handleListStores)
		r.Post("/stores", s.handleCreateStore)
		r.Get("/stores/{id}", s.handleGetStore)
		r.Delete("/stores/{id}", s.handleDeleteStore)
		r.Get("/stores/{id}/events", s.handleListStoreEvents)

		r.Get("/events", s.handleListEvents)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/audit-log", s.handleAuditLog)

		if s.reconciler != nil {
			r.Get("/reconcile", s.handleReconcileStatus)
			r.Post("/reconcile", s.handleTriggerReconcile)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.RespondError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

func (s *Server) corsConfig() httputil.CORSConfig {
	cfg := httputil.CORSConfig{
		AllowedOrigins: []string{s.cfg.DashboardURL, "http://localhost:5173", "http://localhost:3000"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}
	if domain := strings.Trim(s.cfg.StoreDomain, ". "); domain != "" {
		cfg.AllowedOriginSuffixes = []string{"." + domain}
	}
	return cfg
}
