package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/ports"
	"github.com/jackc/pgx/v5"
)

// KeyStore implements ports.KeyStore over the api_keys table.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a new Postgres key store.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

// Nullable columns are coalesced so rows written by other tools still scan.
const keyColumns = `id::text, COALESCE(user_id::text, ''), key_hash, COALESCE(key_prefix, ''), name,
	COALESCE(tier, 'free'), COALESCE(status, 'active'), COALESCE(is_active, true),
	expires_at, last_used_at, COALESCE(total_requests, 0),
	COALESCE(rate_limit_per_hour, 0), COALESCE(rate_limit_per_day, 0), COALESCE(created_at, now())`

// FindByHash retrieves the key with the given hash.
func (s *KeyStore) FindByHash(ctx context.Context, hash string) (key.Key, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1`, hash)
	k, err := scanKey(row)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return key.Key{}, unavailable("find key", err)
	}
	return k, err
}

// GetByID retrieves a key by ID.
func (s *KeyStore) GetByID(ctx context.Context, id string) (key.Key, error) {
	if !validID(id) {
		return key.Key{}, ports.ErrNotFound
	}
	row := s.db.Pool.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = $1`, id)
	k, err := scanKey(row)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return key.Key{}, unavailable("get key", err)
	}
	return k, err
}

// Create stores a new key.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO api_keys (
			id, user_id, key_hash, key_prefix, name, tier, status, is_active,
			expires_at, last_used_at, total_requests, rate_limit_per_hour, rate_limit_per_day, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, k.ID, nullableID(k.OwnerID), k.Hash, k.Prefix, k.Name, string(k.Tier), string(k.Status),
		k.Status == key.StatusActive, k.ExpiresAt, k.LastUsed, k.TotalRequests,
		nullableLimit(k.HourlyLimit), nullableLimit(k.DailyLimit), k.CreatedAt)
	if err != nil {
		return unavailable("create key", err)
	}
	return nil
}

// ListByOwner returns all keys of an owner, newest first.
func (s *KeyStore) ListByOwner(ctx context.Context, ownerID string) ([]key.Key, error) {
	if !validID(ownerID) {
		return nil, nil
	}
	return s.query(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC, id`, ownerID)
}

// List returns all keys, newest first.
func (s *KeyStore) List(ctx context.Context) ([]key.Key, error) {
	return s.query(ctx, `SELECT `+keyColumns+` FROM api_keys ORDER BY created_at DESC, id`)
}

func (s *KeyStore) query(ctx context.Context, q string, args ...any) ([]key.Key, error) {
	rows, err := s.db.Pool.Query(ctx, q, args...)
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
	return s.exec(ctx, "touch key", id, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, at)
}

// IncrementUsageCounters adds one to the request counters.
func (s *KeyStore) IncrementUsageCounters(ctx context.Context, id string) error {
	return s.exec(ctx, "increment key", id, `
		UPDATE api_keys SET total_requests = COALESCE(total_requests, 0) + 1 WHERE id = $1
	`)
}

// MarkExpired moves an active key to expired. Keys in any other status are left alone.
func (s *KeyStore) MarkExpired(ctx context.Context, id string) error {
	if !validID(id) {
		return ports.ErrNotFound
	}
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE api_keys SET status = 'expired', is_active = false
		WHERE id = $1 AND COALESCE(status, 'active') = 'active'
	`, id)
	if err != nil {
		return unavailable("expire key", err)
	}
	return nil
}

// Revoke marks a key as revoked.
func (s *KeyStore) Revoke(ctx context.Context, id string) error {
	return s.exec(ctx, "revoke key", id, `UPDATE api_keys SET status = 'revoked', is_active = false WHERE id = $1`)
}

// exec runs an update that must hit exactly one key. $1 is always the id.
func (s *KeyStore) exec(ctx context.Context, op, id, q string, args ...any) error {
	if !validID(id) {
		return ports.ErrNotFound
	}
	tag, err := s.db.Pool.Exec(ctx, q, append([]any{id}, args...)...)
	if err != nil {
		return unavailable(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func scanKey(row pgx.Row) (key.Key, error) {
	var k key.Key
	var tier, status string
	var isActive bool

	err := row.Scan(
		&k.ID, &k.OwnerID, &k.Hash, &k.Prefix, &k.Name, &tier, &status, &isActive,
		&k.ExpiresAt, &k.LastUsed, &k.TotalRequests,
		&k.HourlyLimit, &k.DailyLimit, &k.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return key.Key{}, ports.ErrNotFound
	}
	if err != nil {
		return key.Key{}, err
	}

	k.Tier = key.Tier(tier)
	k.Status = key.ParseStatus(status)
	// A deactivated row never authorizes, whatever its status text says
	if !isActive && k.Status == key.StatusActive {
		k.Status = key.StatusRevoked
	}
	k.CreatedAt = k.CreatedAt.UTC()
	if k.ExpiresAt != nil {
		t := k.ExpiresAt.UTC()
		k.ExpiresAt = &t
	}
	if k.LastUsed != nil {
		t := k.LastUsed.UTC()
		k.LastUsed = &t
	}
	return k, nil
}

func nullableLimit(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
