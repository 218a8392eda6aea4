package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/xbrlgate/adapters/metrics"
	"github.com/artpar/xbrlgate/domain/decision"
	"github.com/artpar/xbrlgate/domain/usage"
	"github.com/artpar/xbrlgate/pkg/jsonapi"
	"github.com/artpar/xbrlgate/ports"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// DefaultKeyHeader carries the API key when no other header is configured.
const DefaultKeyHeader = "X-API-Key"

// Authorizer decides whether a request carrying a raw key may proceed.
type Authorizer interface {
	Authorize(ctx context.Context, rawKey, endpoint string, now time.Time) decision.Decision
}

// AuthDeps contains dependencies for the auth middleware.
type AuthDeps struct {
	Authorizer Authorizer
	Recorder   ports.UsageRecorder // optional
	Clock      ports.Clock
	Logger     zerolog.Logger
	KeyHeader  string // default: X-API-Key
}

type ctxKey string

const ctxDecisionKey ctxKey = "decision"

// DecisionFrom returns the Decision stored by AuthMiddleware.
func DecisionFrom(ctx context.Context) (decision.Decision, bool) {
	d, ok := ctx.Value(ctxDecisionKey).(decision.Decision)
	return d, ok
}

// AuthMiddleware authorizes every request and records its usage.
// Denied requests never reach next.
func AuthMiddleware(deps AuthDeps) func(next http.Handler) http.Handler {
	header := deps.KeyHeader
	if header == "" {
		header = DefaultKeyHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := deps.Clock.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			d := deps.Authorizer.Authorize(r.Context(), extractAPIKey(r, header), r.URL.Path, start)

			if d.Allowed() {
				writeRateLimitHeaders(ww.Header(), d)
				ctx := context.WithValue(r.Context(), ctxDecisionKey, d)
				next.ServeHTTP(ww, r.WithContext(ctx))
			} else {
				writeDenied(ww, d, start)
			}

			// Unresolved keys have no owner to bill
			if deps.Recorder == nil || d.KeyID == "" {
				return
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			rec := usage.Record{
				APIKeyID:   d.KeyID,
				OwnerID:    d.OwnerID,
				Endpoint:   r.URL.Path,
				Method:     r.Method,
				StatusCode: status,
				LatencyMs:  deps.Clock.Now().Sub(start).Milliseconds(),
				Timestamp:  start,
				CallerIP:   extractIP(r),
				UserAgent:  r.UserAgent(),
			}
			if !d.Allowed() {
				rec.Reason = string(d.Reason)
			}
			deps.Recorder.Record(rec)
		})
	}
}

// writeDenied writes the JSON:API error for a denial.
func writeDenied(w http.ResponseWriter, d decision.Decision, now time.Time) {
	status := d.HTTPStatus()
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds(now)))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.RetryAfter.Unix(), 10))
	} else {
		w.Header().Set("WWW-Authenticate", `Bearer realm="xbrlgate"`)
	}

	jsonapi.WriteError(w, jsonapi.NewError(status, d.Code(), http.StatusText(status)).
		Detail(d.Message()).
		Build())
}

func writeRateLimitHeaders(h http.Header, d decision.Decision) {
	// All windows unlimited
	if d.Limit <= 0 {
		return
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// extractAPIKey extracts the API key from the request.
// Supports: the key header (X-API-Key by default), then Authorization: Bearer.
// Query parameters are not accepted since they end up in access logs.
func extractAPIKey(r *http.Request, header string) string {
	if key := strings.TrimSpace(r.Header.Get(header)); key != "" {
		return key
	}

	if auth := r.Header.Get("Authorization"); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
			return strings.TrimSpace(auth[7:])
		}
	}

	return ""
}

// extractIP extracts the client IP from the request.
func extractIP(r *http.Request) string {
	// Check X-Forwarded-For header
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cf != "" {
		return cf
	}

	// Fall back to RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// NewLoggingMiddleware creates a request logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if isInternalPath(r.URL.Path) {
				return
			}

			event := logger.Debug()
			if ww.Status() >= 500 {
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// NewMetricsMiddleware creates middleware that records request metrics.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isInternalPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := statusLabel(ww.Status())
			path := metrics.NormalizePath(r.URL.Path)

			m.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		})
	}
}

func isInternalPath(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics" ||
		strings.HasPrefix(path, "/swagger") || strings.HasPrefix(path, "/.well-known")
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status == 0:
		// Handler wrote nothing, net/http sends 200
		return "2xx"
	default:
		return "other"
	}
}
