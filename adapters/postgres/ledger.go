package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/xbrlgate/domain/ratelimit"
	"github.com/artpar/xbrlgate/ports"
	"github.com/jackc/pgx/v5"
)

// Ledger implements ports.Ledger over api_key_rate_limits, one row per key.
// A window's stored count is only live while its stored reset instant is the
// end of the current window; otherwise the window starts again from zero.
type Ledger struct {
	db *DB
}

// NewLedger creates a new Postgres ledger.
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// window mirrors the current_*_count and current_*_reset columns of one window.
type window struct {
	count int
	reset *time.Time
}

type counterRow [3]window // hour, day, month

func (r counterRow) counts(now time.Time) ratelimit.Counts {
	var c ratelimit.Counts
	for i, w := range ratelimit.Windows {
		if r[i].reset != nil && r[i].reset.Equal(w.End(now)) {
			c.Set(w, r[i].count)
		}
	}
	return c
}

// TryConsume locks the key's row, evaluates, and writes the incremented counts on allow.
func (l *Ledger) TryConsume(ctx context.Context, keyID string, limits ratelimit.Limits, now time.Time) (ratelimit.Result, error) {
	if !validID(keyID) {
		return ratelimit.Result{}, unavailable("consume", errors.New("key id is not a uuid"))
	}

	var result ratelimit.Result
	err := pgx.BeginFunc(ctx, l.db.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO api_key_rate_limits (api_key_id, requests_per_hour, requests_per_day, requests_per_month)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (api_key_id) DO NOTHING
		`, keyID, limits.Hour, limits.Day, limits.Month)
		if err != nil {
			return err
		}

		row, err := selectRow(ctx, tx, keyID, true)
		if err != nil {
			return err
		}

		counts := row.counts(now)
		result = ratelimit.Evaluate(counts, limits, now)
		if !result.Allowed {
			return nil
		}

		next := counts.Incr()
		_, err = tx.Exec(ctx, `
			UPDATE api_key_rate_limits SET
				current_hour_count = $2, current_hour_reset = $3,
				current_day_count = $4, current_day_reset = $5,
				current_month_count = $6, current_month_reset = $7,
				requests_per_hour = $8, requests_per_day = $9, requests_per_month = $10,
				updated_at = now()
			WHERE api_key_id = $1
		`, keyID,
			next.Hour, ratelimit.Hour.End(now),
			next.Day, ratelimit.Day.End(now),
			next.Month, ratelimit.Month.End(now),
			limits.Hour, limits.Day, limits.Month)
		return err
	})
	if err != nil {
		return ratelimit.Result{}, unavailable("consume", err)
	}
	return result, nil
}

// Counts returns the current window counts.
func (l *Ledger) Counts(ctx context.Context, keyID string, now time.Time) (ratelimit.Counts, error) {
	if !validID(keyID) {
		return ratelimit.Counts{}, nil
	}
	row, err := selectRow(ctx, l.db.Pool, keyID, false)
	if errors.Is(err, pgx.ErrNoRows) {
		return ratelimit.Counts{}, nil
	}
	if err != nil {
		return ratelimit.Counts{}, unavailable("counts", err)
	}
	return row.counts(now), nil
}

// Reset drops the counter row of a key.
func (l *Ledger) Reset(ctx context.Context, keyID string) error {
	if !validID(keyID) {
		return nil
	}
	if _, err := l.db.Pool.Exec(ctx, `DELETE FROM api_key_rate_limits WHERE api_key_id = $1`, keyID); err != nil {
		return unavailable("reset", err)
	}
	return nil
}

// rowQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func selectRow(ctx context.Context, q rowQuerier, keyID string, forUpdate bool) (counterRow, error) {
	sql := `
		SELECT current_hour_count, current_hour_reset,
			current_day_count, current_day_reset,
			current_month_count, current_month_reset
		FROM api_key_rate_limits WHERE api_key_id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var r counterRow
	err := q.QueryRow(ctx, sql, keyID).Scan(
		&r[0].count, &r[0].reset,
		&r[1].count, &r[1].reset,
		&r[2].count, &r[2].reset,
	)
	return r, err
}

// Ensure interface compliance.
var _ ports.Ledger = (*Ledger)(nil)
