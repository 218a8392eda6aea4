package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apihttp "github.com/artpar/xbrlgate/adapters/http"
	"github.com/artpar/xbrlgate/adapters/metrics"
	"github.com/artpar/xbrlgate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth_Liveness(t *testing.T) {
	s := setupServer(t, nil)

	for _, path := range []string{"/health", "/health/live"} {
		rec := s.do(httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestHealth_Readiness(t *testing.T) {
	ok := pingFunc(func(ctx context.Context) error { return nil })
	down := pingFunc(func(ctx context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name   string
		checks map[string]ports.Pinger
		want   int
	}{
		{"all up", map[string]ports.Pinger{"keys": ok, "ledger": ok}, http.StatusOK},
		{"ledger down", map[string]ports.Pinger{"keys": ok, "ledger": down}, http.StatusServiceUnavailable},
		{"nothing to check", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := apihttp.NewHealthHandler(tt.checks)
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest("GET", "/health/ready", nil))

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			var body apihttp.HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.want != http.StatusOK && body.Checks["ledger"] != "connection refused" {
				t.Errorf("checks = %v", body.Checks)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	s := setupServer(t, nil)

	rec := s.do(httptest.NewRequest("GET", "/version", nil))
	var body apihttp.VersionResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Version != "1.2.3" || body.Service != "xbrlgate" {
		t.Errorf("version = %+v", body)
	}
}

func TestOpenAPI_WellKnownEndpoint(t *testing.T) {
	s := setupServer(t, nil)

	rec := s.do(httptest.NewRequest("GET", "/.well-known/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var doc map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatalf("openapi document is not JSON: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	for _, p := range []string{"/api/v1/whoami", "/admin/keys", "/admin/keys/{id}"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("openapi document misses %s", p)
		}
	}
}

func TestOpenAPI_SwaggerUIEndpoint(t *testing.T) {
	s := setupServer(t, nil)

	rec := s.do(httptest.NewRequest("GET", "/swagger/index.html", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "swagger") {
		t.Error("swagger UI not served")
	}
}

func TestRouter_NotFound(t *testing.T) {
	s := setupServer(t, nil)

	rec := s.do(httptest.NewRequest("GET", "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if errs := decodeErrors(t, rec); errs[0].Code != "not_found" {
		t.Errorf("code = %s", errs[0].Code)
	}
}

func TestRouter_APIRequiresKey(t *testing.T) {
	s := setupServer(t, nil)

	// Unknown routes under the API prefix are still behind the key check
	rec := s.do(httptest.NewRequest("GET", "/api/v1/filings", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec := s.do(whoami("", "")); rec.Code != http.StatusUnauthorized {
		t.Errorf("whoami without key = %d", rec.Code)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry(), "memory")
	handler := apihttp.NewMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/api/v1/whoami", "/api/v1/whoami", "/fail", "/health"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/v1/whoami", "2xx")); got != 2 {
		t.Errorf("2xx whoami = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/fail", "4xx")); got != 1 {
		t.Errorf("4xx = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health", "2xx")); got != 0 {
		t.Errorf("health checks must not be counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsInFlight); got != 0 {
		t.Errorf("in flight = %v after all requests", got)
	}
}
