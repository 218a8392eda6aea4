package postgres

import (
	"context"
	"time"

	"github.com/artpar/xbrlgate/domain/usage"
	"github.com/artpar/xbrlgate/ports"
	"github.com/jackc/pgx/v5"
)

// UsageStore implements ports.UsageStore over api_usage_logs.
// Caller IP, user agent and deny reason live in the metadata jsonb column.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new Postgres usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

var usageCopyColumns = []string{
	"api_key_id", "user_id", "endpoint", "method", "status_code", "response_time_ms", "accessed_at", "metadata",
}

// RecordBatch bulk-loads records with COPY.
func (s *UsageStore) RecordBatch(ctx context.Context, records []usage.Record) error {
	if len(records) == 0 {
		return nil
	}

	src := pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
		r := records[i]
		return []any{
			nullableID(r.APIKeyID), nullableID(r.OwnerID), r.Endpoint, r.Method,
			int32(r.StatusCode), int32(r.LatencyMs), r.Timestamp, metadata(r),
		}, nil
	})
	if _, err := s.db.Pool.CopyFrom(ctx, pgx.Identifier{"api_usage_logs"}, usageCopyColumns, src); err != nil {
		return unavailable("copy usage", err)
	}
	return nil
}

func metadata(r usage.Record) map[string]string {
	m := map[string]string{
		"ip_address": r.CallerIP,
		"user_agent": r.UserAgent,
	}
	if r.Reason != "" {
		m["reason"] = r.Reason
	}
	return m
}

const usageColumns = `COALESCE(api_key_id::text, ''), COALESCE(user_id::text, ''),
	COALESCE(endpoint, ''), COALESCE(method, ''), COALESCE(status_code, 0), COALESCE(response_time_ms, 0),
	COALESCE(accessed_at, 'epoch'::timestamptz),
	COALESCE(metadata->>'ip_address', ''), COALESCE(metadata->>'user_agent', ''), COALESCE(metadata->>'reason', '')`

// Recent returns the latest records, newest first. An empty keyID matches all keys.
func (s *UsageStore) Recent(ctx context.Context, keyID string, limit int) ([]usage.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	if keyID == "" {
		return s.query(ctx, `SELECT `+usageColumns+` FROM api_usage_logs ORDER BY accessed_at DESC LIMIT $1`, limit)
	}
	if !validID(keyID) {
		return nil, nil
	}
	return s.query(ctx, `
		SELECT `+usageColumns+` FROM api_usage_logs
		WHERE api_key_id = $1
		ORDER BY accessed_at DESC LIMIT $2
	`, keyID, limit)
}

// Range returns the records of a key in [start, end), oldest first.
func (s *UsageStore) Range(ctx context.Context, keyID string, start, end time.Time) ([]usage.Record, error) {
	if keyID == "" {
		return s.query(ctx, `
			SELECT `+usageColumns+` FROM api_usage_logs
			WHERE accessed_at >= $1 AND accessed_at < $2
			ORDER BY accessed_at
		`, start, end)
	}
	if !validID(keyID) {
		return nil, nil
	}
	return s.query(ctx, `
		SELECT `+usageColumns+` FROM api_usage_logs
		WHERE api_key_id = $1 AND accessed_at >= $2 AND accessed_at < $3
		ORDER BY accessed_at
	`, keyID, start, end)
}

func (s *UsageStore) query(ctx context.Context, q string, args ...any) ([]usage.Record, error) {
	rows, err := s.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, unavailable("query usage", err)
	}
	defer rows.Close()

	var records []usage.Record
	for rows.Next() {
		var r usage.Record
		err := rows.Scan(
			&r.APIKeyID, &r.OwnerID, &r.Endpoint, &r.Method, &r.StatusCode, &r.LatencyMs,
			&r.Timestamp, &r.CallerIP, &r.UserAgent, &r.Reason,
		)
		if err != nil {
			return nil, unavailable("scan usage", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query usage", err)
	}
	return records, nil
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
