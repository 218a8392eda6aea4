package admin

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/artpar/xbrlgate/domain/usage"
	"github.com/artpar/xbrlgate/pkg/jsonapi"
)

const maxRecent = 1000

// RecentUsage returns the latest usage records.
//
//	@Summary		Recent usage
//	@Description	Latest usage records, optionally for one key
//	@Tags			Admin - Usage
//	@Produce		json
//	@Param			key		query		string				false	"Filter by key ID"
//	@Param			limit	query		int					false	"Maximum records"	default(50)
//	@Success		200		{object}	jsonapi.Document	"Usage records"
//	@Security		AdminAuth
//	@Router			/admin/usage [get]
func (h *Handler) RecentUsage(w http.ResponseWriter, r *http.Request) {
	keyID := r.URL.Query().Get("key")
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "invalid_parameter", "Bad Request").
				Detail("limit must be a positive integer").
				Parameter("limit").
				Build())
			return
		}
		limit = min(n, maxRecent)
	}

	records, err := h.usage.Recent(r.Context(), keyID, limit)
	if err != nil {
		h.writeStoreError(w, err, "usage")
		return
	}

	resources := make([]jsonapi.Resource, 0, len(records))
	for _, rec := range records {
		resources = append(resources, usageResource(rec))
	}
	jsonapi.WriteCollection(w, resources, nil)
}

// UsageSummary aggregates the usage of one key.
//
//	@Summary		Usage summary
//	@Description	Aggregate usage of a key since a point in time
//	@Tags			Admin - Usage
//	@Produce		json
//	@Param			key		query		string				true	"Key ID"
//	@Param			since	query		string				false	"Duration (24h) or RFC3339 time"	default(720h)
//	@Success		200		{object}	jsonapi.Document	"Usage summary in meta"
//	@Security		AdminAuth
//	@Router			/admin/usage/summary [get]
func (h *Handler) UsageSummary(w http.ResponseWriter, r *http.Request) {
	keyID := r.URL.Query().Get("key")
	if keyID == "" {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "missing_parameter", "Bad Request").
			Detail("key is required").
			Parameter("key").
			Build())
		return
	}

	now := h.clock.Now()
	start, err := ParseSince(r.URL.Query().Get("since"), now)
	if err != nil {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "invalid_parameter", "Bad Request").
			Detail(err.Error()).
			Parameter("since").
			Build())
		return
	}

	records, err := h.usage.Range(r.Context(), keyID, start, now)
	if err != nil {
		h.writeStoreError(w, err, "usage")
		return
	}
	s := usage.Aggregate(records, start, now)

	endpoints := make([]map[string]any, 0, len(s.Endpoints))
	for _, e := range s.Endpoints {
		endpoints = append(endpoints, map[string]any{"endpoint": e.Endpoint, "count": e.Count})
	}

	jsonapi.WriteDocument(w, http.StatusOK, jsonapi.NewDocument().
		Meta("key_id", keyID).
		Meta("period_start", s.PeriodStart.UTC().Format(time.RFC3339)).
		Meta("period_end", s.PeriodEnd.UTC().Format(time.RFC3339)).
		Meta("summary", map[string]any{
			"requests":       s.RequestCount,
			"success":        s.SuccessCount,
			"client_errors":  s.ClientErrors,
			"server_errors":  s.ServerErrors,
			"rate_limited":   s.RateLimited,
			"avg_latency_ms": s.AvgLatencyMs,
			"error_rate":     s.ErrorRate(),
			"endpoints":      endpoints,
		}).
		Build())
}

// ParseSince accepts a duration back from now or an RFC3339 time.
// Empty means the last 30 days.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.Add(-30 * 24 * time.Hour), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("since must be a positive duration")
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("since must be a duration such as 24h or an RFC3339 time")
	}
	if !t.Before(now) {
		return time.Time{}, fmt.Errorf("since must be in the past")
	}
	return t, nil
}

func usageResource(rec usage.Record) jsonapi.Resource {
	id := fmt.Sprintf("%s-%d", rec.APIKeyID, rec.Timestamp.UnixNano())
	b := jsonapi.NewResource("usage_records", id).
		Attr("key_id", rec.APIKeyID).
		Attr("owner_id", rec.OwnerID).
		Attr("method", rec.Method).
		Attr("endpoint", rec.Endpoint).
		Attr("status_code", rec.StatusCode).
		Attr("latency_ms", rec.LatencyMs).
		Attr("caller_ip", rec.CallerIP).
		Attr("user_agent", rec.UserAgent).
		Time("timestamp", &rec.Timestamp)
	if rec.Reason != "" {
		b.Attr("reason", rec.Reason)
	}
	return b.Build()
}
