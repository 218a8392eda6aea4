package admin

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/artpar/xbrlgate/app"
	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/pkg/jsonapi"
	"github.com/go-chi/chi/v5"
)

const keyType = "api_keys"

// ListKeys returns keys, optionally filtered by owner.
//
//	@Summary		List keys
//	@Description	Get API keys, newest first
//	@Tags			Admin - Keys
//	@Produce		json
//	@Param			owner			query		string				false	"Filter by owner ID"
//	@Param			page[number]	query		int					false	"Page number"
//	@Param			page[size]		query		int					false	"Page size"
//	@Success		200				{object}	jsonapi.Document	"Keys list"
//	@Security		AdminAuth
//	@Router			/admin/keys [get]
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	keys, err := h.keys.List(r.Context(), owner)
	if err != nil {
		h.writeStoreError(w, err, "key")
		return
	}

	page, size := jsonapi.ParsePage(r.URL.Query(), 20)
	base := "/admin/keys"
	if owner != "" {
		base += "?owner=" + url.QueryEscape(owner)
	}
	p := jsonapi.NewPagination(len(keys), page, size, base)
	start, end := p.Bounds()

	resources := make([]jsonapi.Resource, 0, end-start)
	for _, k := range keys[start:end] {
		resources = append(resources, keyResource(k).Build())
	}

	jsonapi.WriteCollection(w, resources, p)
}

// CreateKey issues a new API key.
//
//	@Summary		Create key
//	@Description	Issue an API key. The plaintext key is returned once and never stored.
//	@Tags			Admin - Keys
//	@Accept			json
//	@Produce		json
//	@Param			request	body		jsonapi.RequestBody	true	"attributes: owner_id, name, tier, expires_in"
//	@Success		201		{object}	jsonapi.Document	"Created key (save the key, shown once)"
//	@Failure		409		{object}	jsonapi.Document	"Active key limit reached"
//	@Failure		422		{object}	jsonapi.Document	"Invalid attributes"
//	@Security		AdminAuth
//	@Router			/admin/keys [post]
func (h *Handler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var body jsonapi.RequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonapi.WriteError(w, jsonapi.ErrBadRequest("Invalid JSON body"))
		return
	}
	if body.Data.Type != "" && body.Data.Type != keyType {
		jsonapi.WriteError(w, jsonapi.ErrConflict("data.type must be "+keyType))
		return
	}

	attrs := body.Data.Attributes
	var params app.IssueParams
	var ok bool
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"owner_id", &params.OwnerID},
		{"name", &params.Name},
		{"tier", &params.Tier},
	} {
		if *f.dst, ok = stringAttr(attrs, f.name); !ok {
			jsonapi.WriteError(w, jsonapi.ErrValidation(f.name, f.name+" must be a string"))
			return
		}
	}

	expiresIn, ok := stringAttr(attrs, "expires_in")
	if !ok {
		jsonapi.WriteError(w, jsonapi.ErrValidation("expires_in", "expires_in must be a string"))
		return
	}
	switch expiresIn {
	case "":
	case "never":
		params.ExpiresIn = -1
	default:
		d, err := time.ParseDuration(expiresIn)
		if err != nil || d <= 0 {
			jsonapi.WriteError(w, jsonapi.ErrValidation("expires_in", `expires_in must be a positive duration such as "720h", or "never"`))
			return
		}
		params.ExpiresIn = d
	}

	plaintext, k, err := h.keys.Issue(r.Context(), params)
	if err != nil {
		h.writeStoreError(w, err, "key")
		return
	}

	jsonapi.WriteResource(w, http.StatusCreated, keyResource(k).
		Attr("key", plaintext).
		Meta("note", "Save this key securely. It will not be shown again.").
		Build())
}

// GetKey returns one key with its current window counts.
//
//	@Summary		Get key
//	@Description	Get an API key and its current rate limit counters
//	@Tags			Admin - Keys
//	@Produce		json
//	@Param			id	path		string				true	"Key ID"
//	@Success		200	{object}	jsonapi.Document	"Key"
//	@Failure		404	{object}	jsonapi.Document	"Key not found"
//	@Security		AdminAuth
//	@Router			/admin/keys/{id} [get]
func (h *Handler) GetKey(w http.ResponseWriter, r *http.Request) {
	k, err := h.keys.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err, "key")
		return
	}

	res := keyResource(k)
	if counts, err := h.keys.Usage(r.Context(), k.ID, h.clock.Now()); err == nil {
		res.Meta("usage", map[string]int{
			"hour":  counts.Hour,
			"day":   counts.Day,
			"month": counts.Month,
		})
	} else {
		h.logger.Warn().Err(err).Str("key_id", k.ID).Msg("window counts unavailable")
	}

	jsonapi.WriteResource(w, http.StatusOK, res.Build())
}

// RevokeKey revokes an API key.
//
//	@Summary		Revoke key
//	@Description	Revoke an API key. Revocation is permanent.
//	@Tags			Admin - Keys
//	@Param			id	path	string	true	"Key ID"
//	@Success		204	"Revoked"
//	@Failure		404	{object}	jsonapi.Document	"Key not found"
//	@Failure		409	{object}	jsonapi.Document	"Already revoked"
//	@Security		AdminAuth
//	@Router			/admin/keys/{id} [delete]
func (h *Handler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.keys.Revoke(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "key")
		return
	}

	h.logger.Info().Str("key_id", id).Msg("key revoked via admin api")
	jsonapi.WriteNoContent(w)
}

// ResetLimits clears the rate limit windows of a key.
//
//	@Summary		Reset rate limits
//	@Description	Drop every hourly, daily and monthly counter of a key
//	@Tags			Admin - Keys
//	@Param			id	path	string	true	"Key ID"
//	@Success		204	"Reset"
//	@Failure		404	{object}	jsonapi.Document	"Key not found"
//	@Security		AdminAuth
//	@Router			/admin/keys/{id}/reset-limits [post]
func (h *Handler) ResetLimits(w http.ResponseWriter, r *http.Request) {
	if err := h.keys.ResetLimits(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, err, "key")
		return
	}
	jsonapi.WriteNoContent(w)
}

// keyResource maps a key to its resource. The hash never leaves the store.
func keyResource(k key.Key) *jsonapi.ResourceBuilder {
	b := jsonapi.NewResource(keyType, k.ID).
		Attr("owner_id", k.OwnerID).
		Attr("prefix", k.Prefix).
		Attr("name", k.Name).
		Attr("tier", string(k.Tier)).
		Attr("status", string(k.Status)).
		Attr("total_requests", k.TotalRequests).
		Time("created_at", &k.CreatedAt).
		Time("expires_at", k.ExpiresAt).
		Time("last_used", k.LastUsed).
		Link("/admin/keys/" + k.ID)

	if k.HourlyLimit != 0 || k.DailyLimit != 0 || k.MonthlyLimit != 0 {
		b.Attr("limits", map[string]int{
			"hourly":  k.HourlyLimit,
			"daily":   k.DailyLimit,
			"monthly": k.MonthlyLimit,
		})
	}
	return b
}
