package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/ports"
)

// KeyStore implements ports.KeyStore using SQLite.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a new SQLite key store.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

const keyColumns = `id, user_id, key_hash, key_prefix, name, tier, status, expires_at, last_used_at,
	total_requests, rate_limit_per_hour, rate_limit_per_day, rate_limit_per_month, created_at`

// FindByHash retrieves the key with the given hash.
func (s *KeyStore) FindByHash(ctx context.Context, hash string) (key.Key, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE key_hash = ?`, hash)
	k, err := scanKey(row)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return key.Key{}, unavailable("find key", err)
	}
	return k, err
}

// GetByID retrieves a key by ID.
func (s *KeyStore) GetByID(ctx context.Context, id string) (key.Key, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = ?`, id)
	k, err := scanKey(row)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return key.Key{}, unavailable("get key", err)
	}
	return k, err
}

// Create stores a new key.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (`+keyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, k.ID, k.OwnerID, k.Hash, k.Prefix, k.Name, string(k.Tier), string(k.Status),
		nullTime(k.ExpiresAt), nullTime(k.LastUsed), k.TotalRequests,
		k.HourlyLimit, k.DailyLimit, k.MonthlyLimit, k.CreatedAt.UTC())
	if err != nil {
		return unavailable("create key", err)
	}
	return nil
}

// ListByOwner returns all keys of an owner, newest first.
func (s *KeyStore) ListByOwner(ctx context.Context, ownerID string) ([]key.Key, error) {
	return s.query(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE user_id = ? ORDER BY created_at DESC, id`, ownerID)
}

// List returns all keys, newest first.
func (s *KeyStore) List(ctx context.Context) ([]key.Key, error) {
	return s.query(ctx, `SELECT `+keyColumns+` FROM api_keys ORDER BY created_at DESC, id`)
}

func (s *KeyStore) query(ctx context.Context, q string, args ...any) ([]key.Key, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("list keys", err)
	}
	defer rows.Close()

	var keys []key.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, unavailable("scan key", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list keys", err)
	}
	return keys, nil
}

// TouchLastUsed updates the last used timestamp.
func (s *KeyStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, "touch key", `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, at.UTC(), id)
}

// IncrementUsageCounters adds one to the request counter.
func (s *KeyStore) IncrementUsageCounters(ctx context.Context, id string) error {
	return s.exec(ctx, "increment key", `UPDATE api_keys SET total_requests = total_requests + 1 WHERE id = ?`, id)
}

// MarkExpired moves an active key to expired. Keys in any other status are left alone.
func (s *KeyStore) MarkExpired(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET status = ? WHERE id = ? AND status = ?`,
		string(key.StatusExpired), id, string(key.StatusActive))
	if err != nil {
		return unavailable("expire key", err)
	}
	return nil
}

// Revoke marks a key as revoked.
func (s *KeyStore) Revoke(ctx context.Context, id string) error {
	return s.exec(ctx, "revoke key", `UPDATE api_keys SET status = ? WHERE id = ?`, string(key.StatusRevoked), id)
}

// exec runs an update that must hit exactly one key.
func (s *KeyStore) exec(ctx context.Context, op, q string, args ...any) error {
	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return unavailable(op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return unavailable(op, err)
	}
	if rows == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (key.Key, error) {
	var k key.Key
	var tier, status string
	var expiresAt, lastUsed sql.NullTime

	err := row.Scan(
		&k.ID, &k.OwnerID, &k.Hash, &k.Prefix, &k.Name, &tier, &status,
		&expiresAt, &lastUsed, &k.TotalRequests,
		&k.HourlyLimit, &k.DailyLimit, &k.MonthlyLimit, &k.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return key.Key{}, ports.ErrNotFound
	}
	if err != nil {
		return key.Key{}, err
	}

	k.Tier = key.Tier(tier)
	k.Status = key.ParseStatus(status)
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		k.ExpiresAt = &t
	}
	if lastUsed.Valid {
		t := lastUsed.Time.UTC()
		k.LastUsed = &t
	}
	k.CreatedAt = k.CreatedAt.UTC()

	return k, nil
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
