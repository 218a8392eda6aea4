package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/artpar/xbrlgate/domain/ratelimit"
	"github.com/artpar/xbrlgate/ports"
)

// Ledger implements ports.Ledger over the rate_limit_counters table.
// Each TryConsume is one immediate transaction; a process-wide mutex keeps
// local writers from contending for the database lock.
type Ledger struct {
	db *DB
	mu sync.Mutex
}

// NewLedger creates a new SQLite ledger.
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// TryConsume checks every window and increments all of them only when each is under its limit.
func (l *Ledger) TryConsume(ctx context.Context, keyID string, limits ratelimit.Limits, now time.Time) (ratelimit.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return ratelimit.Result{}, unavailable("begin ledger tx", err)
	}
	defer tx.Rollback()

	counts, err := readCounts(ctx, tx, keyID, now)
	if err != nil {
		return ratelimit.Result{}, unavailable("read counters", err)
	}

	result := ratelimit.Evaluate(counts, limits, now)
	if !result.Allowed {
		return result, nil
	}

	for _, w := range ratelimit.Windows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rate_limit_counters (api_key_id, granularity, window_start, window_end, count)
			VALUES (?, ?, ?, ?, 1)
			ON CONFLICT(api_key_id, granularity, window_start) DO UPDATE SET count = count + 1
		`, keyID, w.String(), w.Start(now).Unix(), w.End(now).Unix())
		if err != nil {
			return ratelimit.Result{}, unavailable("increment counter", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ratelimit.Result{}, unavailable("commit ledger tx", err)
	}
	return result, nil
}

// Counts returns the current window counts.
func (l *Ledger) Counts(ctx context.Context, keyID string, now time.Time) (ratelimit.Counts, error) {
	counts, err := readCounts(ctx, l.db, keyID, now)
	if err != nil {
		return ratelimit.Counts{}, unavailable("read counters", err)
	}
	return counts, nil
}

// Reset drops every counter of a key.
func (l *Ledger) Reset(ctx context.Context, keyID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.db.ExecContext(ctx, `DELETE FROM rate_limit_counters WHERE api_key_id = ?`, keyID); err != nil {
		return unavailable("reset counters", err)
	}
	return nil
}

// Cleanup removes counters of windows that ended at or before now.
func (l *Ledger) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	result, err := l.db.ExecContext(ctx, `DELETE FROM rate_limit_counters WHERE window_end <= ?`, now.Unix())
	if err != nil {
		return 0, unavailable("cleanup counters", err)
	}
	return result.RowsAffected()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readCounts(ctx context.Context, q querier, keyID string, now time.Time) (ratelimit.Counts, error) {
	var counts ratelimit.Counts
	for _, w := range ratelimit.Windows {
		var n int
		err := q.QueryRowContext(ctx, `
			SELECT count FROM rate_limit_counters
			WHERE api_key_id = ? AND granularity = ? AND window_start = ?
		`, keyID, w.String(), w.Start(now).Unix()).Scan(&n)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return ratelimit.Counts{}, err
		}
		counts.Set(w, n)
	}
	return counts, nil
}

// Ensure interface compliance.
var _ ports.Ledger = (*Ledger)(nil)
