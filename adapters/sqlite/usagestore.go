package sqlite

import (
	"context"
	"time"

	"github.com/artpar/xbrlgate/domain/usage"
	"github.com/artpar/xbrlgate/ports"
)

// UsageStore implements ports.UsageStore over the api_usage_logs table.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new SQLite usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// RecordBatch stores multiple usage records in one transaction.
func (s *UsageStore) RecordBatch(ctx context.Context, records []usage.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin usage tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO api_usage_logs (
			api_key_id, user_id, endpoint, method, status_code, response_time_ms,
			accessed_at, ip_address, user_agent, reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return unavailable("prepare usage insert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.APIKeyID, r.OwnerID, r.Endpoint, r.Method, r.StatusCode, r.LatencyMs,
			r.Timestamp.UnixMilli(), r.CallerIP, r.UserAgent, r.Reason,
		)
		if err != nil {
			return unavailable("insert usage", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit usage tx", err)
	}
	return nil
}

const usageColumns = `api_key_id, user_id, endpoint, method, status_code, response_time_ms,
	accessed_at, ip_address, user_agent, reason`

// Recent returns the latest records, newest first. An empty keyID matches all keys.
func (s *UsageStore) Recent(ctx context.Context, keyID string, limit int) ([]usage.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	if keyID == "" {
		return s.query(ctx, `SELECT `+usageColumns+` FROM api_usage_logs ORDER BY accessed_at DESC, id DESC LIMIT ?`, limit)
	}
	return s.query(ctx, `
		SELECT `+usageColumns+` FROM api_usage_logs
		WHERE api_key_id = ?
		ORDER BY accessed_at DESC, id DESC LIMIT ?
	`, keyID, limit)
}

// Range returns the records of a key in [start, end), oldest first.
func (s *UsageStore) Range(ctx context.Context, keyID string, start, end time.Time) ([]usage.Record, error) {
	if keyID == "" {
		return s.query(ctx, `
			SELECT `+usageColumns+` FROM api_usage_logs
			WHERE accessed_at >= ? AND accessed_at < ?
			ORDER BY accessed_at, id
		`, start.UnixMilli(), end.UnixMilli())
	}
	return s.query(ctx, `
		SELECT `+usageColumns+` FROM api_usage_logs
		WHERE api_key_id = ? AND accessed_at >= ? AND accessed_at < ?
		ORDER BY accessed_at, id
	`, keyID, start.UnixMilli(), end.UnixMilli())
}

func (s *UsageStore) query(ctx context.Context, q string, args ...any) ([]usage.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("query usage", err)
	}
	defer rows.Close()

	var records []usage.Record
	for rows.Next() {
		var r usage.Record
		var accessedAt int64
		err := rows.Scan(
			&r.APIKeyID, &r.OwnerID, &r.Endpoint, &r.Method, &r.StatusCode, &r.LatencyMs,
			&accessedAt, &r.CallerIP, &r.UserAgent, &r.Reason,
		)
		if err != nil {
			return nil, unavailable("scan usage", err)
		}
		r.Timestamp = time.UnixMilli(accessedAt).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query usage", err)
	}
	return records, nil
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
