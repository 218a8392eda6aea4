// Package admin provides HTTP handlers for the Admin API.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/artpar/xbrlgate/app"
	"github.com/artpar/xbrlgate/pkg/jsonapi"
	"github.com/artpar/xbrlgate/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// TokenHeader is an alternative to Authorization: Bearer for the admin token.
const TokenHeader = "X-Admin-Token"

// Handler provides admin API endpoints.
type Handler struct {
	keys      *app.KeyService
	usage     ports.UsageStore
	checks    map[string]ports.Pinger
	hasher    ports.Hasher
	tokenHash []byte
	clock     ports.Clock
	logger    zerolog.Logger
}

// Deps contains dependencies for the admin handler.
type Deps struct {
	Keys      *app.KeyService
	Usage     ports.UsageStore        // optional, enables /usage
	Checks    map[string]ports.Pinger // reported by /doctor
	Hasher    ports.Hasher            // bcrypt, compares the admin token
	TokenHash string                  // bcrypt hash of the admin token
	Clock     ports.Clock
	Logger    zerolog.Logger
}

// NewHandler creates a new admin API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		keys:      deps.Keys,
		usage:     deps.Usage,
		checks:    deps.Checks,
		hasher:    deps.Hasher,
		tokenHash: []byte(deps.TokenHash),
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
}

// Router returns the admin API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(h.AuthMiddleware)

	// Keys
	r.Get("/keys", h.ListKeys)
	r.Post("/keys", h.CreateKey)
	r.Get("/keys/{id}", h.GetKey)
	r.Delete("/keys/{id}", h.RevokeKey)
	r.Post("/keys/{id}/reset-limits", h.ResetLimits)

	// Usage
	if h.usage != nil {
		r.Get("/usage", h.RecentUsage)
		r.Get("/usage/summary", h.UsageSummary)
	}

	// Doctor (system health)
	r.Get("/doctor", h.Doctor)

	return r
}

// -----------------------------------------------------------------------------
// Authentication
// -----------------------------------------------------------------------------

// AuthMiddleware requires the admin token. Without a configured hash every
// request is rejected.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(TokenHeader)
		if token == "" {
			if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		if token == "" || len(h.tokenHash) == 0 || !h.hasher.Compare(h.tokenHash, token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="xbrlgate-admin"`)
			jsonapi.WriteError(w, jsonapi.ErrUnauthorized("Valid admin token required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// writeStoreError maps a service error to a JSON:API error.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error, resource string) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		jsonapi.WriteError(w, jsonapi.ErrNotFound(resource))
	case errors.Is(err, app.ErrAlreadyRevoked):
		jsonapi.WriteError(w, jsonapi.ErrConflict("The API key is already revoked"))
	case errors.Is(err, app.ErrTooManyKeys):
		jsonapi.WriteError(w, jsonapi.ErrConflict(err.Error()))
	case errors.Is(err, app.ErrOwnerRequired):
		jsonapi.WriteError(w, jsonapi.ErrValidation("owner_id", "owner_id is required"))
	case errors.Is(err, app.ErrInvalidTier):
		jsonapi.WriteError(w, jsonapi.ErrValidation("tier", err.Error()))
	case errors.Is(err, ports.ErrStoreUnavailable):
		h.logger.Error().Err(err).Msg("admin store unavailable")
		jsonapi.WriteError(w, jsonapi.ErrServiceUnavailable(""))
	default:
		h.logger.Error().Err(err).Msg("admin request failed")
		jsonapi.WriteError(w, jsonapi.ErrInternal(""))
	}
}

// stringAttr reads a string attribute, reporting whether it had the right type.
func stringAttr(attrs map[string]any, name string) (string, bool) {
	v, ok := attrs[name]
	if !ok || v == nil {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
