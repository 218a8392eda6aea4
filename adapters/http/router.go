// Package http provides the HTTP surface of xbrlgate: routing, key
// authorization middleware, health checks and API docs.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/artpar/xbrlgate/adapters/metrics"
	_ "github.com/artpar/xbrlgate/docs/swagger" // swagger docs
	"github.com/artpar/xbrlgate/pkg/jsonapi"
	"github.com/artpar/xbrlgate/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
	Service string `json:"service" example:"xbrlgate"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status string            `json:"status" example:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// WhoAmIResponse describes the caller of an authorized request.
type WhoAmIResponse struct {
	KeyID     string `json:"key_id" example:"6ba7b810-9dad-11d1-80b4-00c04fd430c8"`
	OwnerID   string `json:"owner_id" example:"user-1"`
	Tier      string `json:"tier" example:"free"`
	Limit     int    `json:"limit" example:"100"`
	Remaining int    `json:"remaining" example:"99"`
	ResetAt   string `json:"reset_at,omitempty" example:"2024-01-15T13:00:00Z"`
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks  map[string]ports.Pinger
	timeout time.Duration
}

// NewHealthHandler creates a health handler that pings every named dependency on readiness.
func NewHealthHandler(checks map[string]ports.Pinger) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 5 * time.Second}
}

// Liveness returns a simple liveness check.
//
//	@Summary		Liveness check
//	@Description	Returns OK if the service is running
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
//	@Router			/health/live [get]
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readiness checks that the stores are reachable.
//
//	@Summary		Readiness check
//	@Description	Pings the credential store and the rate limit ledger
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/health/ready [get]
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}

// VersionHandler returns the service version.
//
//	@Summary		Get service version
//	@Description	Returns the version information for the xbrlgate service
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	VersionResponse	"Version information"
//	@Router			/version [get]
func VersionHandler(version string) http.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "xbrlgate"})
	}
}

// WhoAmI echoes the authorization decision of the caller.
//
//	@Summary		Describe the calling key
//	@Description	Returns the key, owner, tier and remaining quota of the caller
//	@Tags			API
//	@Produce		json
//	@Success		200	{object}	WhoAmIResponse
//	@Failure		401	{object}	jsonapi.Document	"Missing, invalid, revoked or expired key"
//	@Failure		429	{object}	jsonapi.Document	"Rate limit exceeded"
//	@Security		ApiKeyAuth
//	@Router			/api/v1/whoami [get]
func WhoAmI(w http.ResponseWriter, r *http.Request) {
	d, ok := DecisionFrom(r.Context())
	if !ok {
		jsonapi.WriteError(w, jsonapi.ErrUnauthorized(""))
		return
	}
	resp := WhoAmIResponse{
		KeyID:     d.KeyID,
		OwnerID:   d.OwnerID,
		Tier:      string(d.Tier),
		Limit:     d.Limit,
		Remaining: d.Remaining,
	}
	if !d.ResetAt.IsZero() {
		resp.ResetAt = d.ResetAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Auth           func(http.Handler) http.Handler // required, guards /api/v1
	Health         *HealthHandler
	Metrics        *metrics.Collector // optional
	MetricsPath    string             // default: /metrics
	EnableOpenAPI  bool
	AdminHandler   http.Handler  // optional, mounted at /admin
	RequestTimeout time.Duration // default: 60s
	Version        string
}

// NewRouter creates the main HTTP router.
func NewRouter(logger zerolog.Logger, cfg RouterConfig) chi.Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Health == nil {
		cfg.Health = NewHealthHandler(nil)
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	// Metrics middleware (if enabled)
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Liveness)
	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)

	if cfg.Metrics != nil {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	if cfg.EnableOpenAPI {
		r.Get("/.well-known/openapi.json", func(w http.ResponseWriter, r *http.Request) {
			doc, err := swag.ReadDoc()
			if err != nil {
				jsonapi.WriteError(w, jsonapi.ErrInternal("API documentation is unavailable"))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Write([]byte(doc))
		})

		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/.well-known/openapi.json"),
		))
	}

	r.Get("/version", VersionHandler(cfg.Version))

	if cfg.AdminHandler != nil {
		r.Mount("/admin", cfg.AdminHandler)
	}

	// Authorized API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cfg.Auth)
		r.Get("/whoami", WhoAmI)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonapi.WriteError(w, jsonapi.ErrNotFound("resource"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonapi.WriteError(w, jsonapi.ErrMethodNotAllowed(r.Method, nil))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
