package sqlite_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artpar/xbrlgate/adapters/sqlite"
	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/domain/ratelimit"
	"github.com/artpar/xbrlgate/domain/usage"
	"github.com/artpar/xbrlgate/ports"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*sqlite.DB, func()) {
	t.Helper()

	f, err := os.CreateTemp("", "xbrlgate-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := sqlite.Open(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("open database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		os.Remove(path)
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(path)
		os.Remove(path + "-wal")
		os.Remove(path + "-shm")
	}

	return db, cleanup
}

func TestMigrate_Idempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

// -----------------------------------------------------------------------------
// KeyStore Tests
// -----------------------------------------------------------------------------

func sampleKey(id, owner, hash string, created time.Time) key.Key {
	expires := created.AddDate(1, 0, 0)
	return key.Key{
		ID:        id,
		OwnerID:   owner,
		Hash:      hash,
		Prefix:    "xbrl_live_abc123",
		Name:      "Default",
		Tier:      key.TierPro,
		Status:    key.StatusActive,
		ExpiresAt: &expires,
		CreatedAt: created,
	}
}

func TestKeyStore_CreateAndFind(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewKeyStore(db)
	ctx := context.Background()

	k := sampleKey("key-1", "user-1", "hash-1", baseTime)
	k.HourlyLimit = 50
	if err := store.Create(ctx, k); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.FindByHash(ctx, "hash-1")
	if err != nil {
		t.Fatalf("FindByHash failed: %v", err)
	}
	if got.ID != "key-1" || got.OwnerID != "user-1" || got.Tier != key.TierPro {
		t.Errorf("got %+v", got)
	}
	if got.Status != key.StatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
	if got.HourlyLimit != 50 {
		t.Errorf("hourly limit = %d, want 50", got.HourlyLimit)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(*k.ExpiresAt) {
		t.Errorf("expires_at = %v, want %v", got.ExpiresAt, k.ExpiresAt)
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, baseTime)
	}
	if got.LastUsed != nil {
		t.Errorf("last_used = %v, want nil", got.LastUsed)
	}

	if _, err := store.FindByHash(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestKeyStore_DuplicateHash(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewKeyStore(db)
	ctx := context.Background()

	store.Create(ctx, sampleKey("key-1", "user-1", "hash-1", baseTime))
	err := store.Create(ctx, sampleKey("key-2", "user-1", "hash-1", baseTime))
	if err == nil {
		t.Fatal("expected unique violation on key_hash")
	}
}

func TestKeyStore_TouchAndIncrement(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewKeyStore(db)
	ctx := context.Background()
	store.Create(ctx, sampleKey("key-1", "user-1", "hash-1", baseTime))

	at := baseTime.Add(5 * time.Minute)
	if err := store.TouchLastUsed(ctx, "key-1", at); err != nil {
		t.Fatalf("TouchLastUsed failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.IncrementUsageCounters(ctx, "key-1"); err != nil {
			t.Fatalf("IncrementUsageCounters failed: %v", err)
		}
	}

	got, _ := store.GetByID(ctx, "key-1")
	if got.LastUsed == nil || !got.LastUsed.Equal(at) {
		t.Errorf("last_used = %v, want %v", got.LastUsed, at)
	}
	if got.TotalRequests != 3 {
		t.Errorf("total_requests = %d, want 3", got.TotalRequests)
	}

	if err := store.TouchLastUsed(ctx, "missing", at); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestKeyStore_RevokeAndExpire(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewKeyStore(db)
	ctx := context.Background()
	store.Create(ctx, sampleKey("key-1", "user-1", "hash-1", baseTime))
	store.Create(ctx, sampleKey("key-2", "user-1", "hash-2", baseTime))

	if err := store.Revoke(ctx, "key-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := store.MarkExpired(ctx, "key-1"); err != nil {
		t.Fatalf("MarkExpired failed: %v", err)
	}
	if err := store.MarkExpired(ctx, "key-2"); err != nil {
		t.Fatalf("MarkExpired failed: %v", err)
	}

	k1, _ := store.GetByID(ctx, "key-1")
	if k1.Status != key.StatusRevoked {
		t.Errorf("key-1 status = %s, revoked must be terminal", k1.Status)
	}
	k2, _ := store.GetByID(ctx, "key-2")
	if k2.Status != key.StatusExpired {
		t.Errorf("key-2 status = %s, want expired", k2.Status)
	}

	if err := store.Revoke(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestKeyStore_List(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewKeyStore(db)
	ctx := context.Background()
	store.Create(ctx, sampleKey("key-1", "user-1", "hash-1", baseTime))
	store.Create(ctx, sampleKey("key-2", "user-1", "hash-2", baseTime.Add(time.Hour)))
	store.Create(ctx, sampleKey("key-3", "user-2", "hash-3", baseTime))

	keys, err := store.ListByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(keys) != 2 || keys[0].ID != "key-2" {
		t.Errorf("ListByOwner = %v, want [key-2 key-1]", ids(keys))
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List returned %d keys, want 3", len(all))
	}
}

func TestKeyStore_ClosedDBIsUnavailable(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewKeyStore(db)
	db.Close()

	_, err := store.FindByHash(context.Background(), "hash-1")
	if !errors.Is(err, ports.ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable", err)
	}
}

func ids(keys []key.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.ID
	}
	return out
}

// -----------------------------------------------------------------------------
// Ledger Tests
// -----------------------------------------------------------------------------

func TestLedger_TryConsume(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := sqlite.NewLedger(db)
	ctx := context.Background()
	limits := ratelimit.Limits{Hour: 3, Day: 100, Month: 1000}

	for i := 0; i < 3; i++ {
		result, err := ledger.TryConsume(ctx, "key-1", limits, baseTime)
		if err != nil {
			t.Fatalf("TryConsume failed: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d denied", i+1)
		}
		if result.Remaining != 2-i {
			t.Errorf("remaining = %d, want %d", result.Remaining, 2-i)
		}
	}

	result, err := ledger.TryConsume(ctx, "key-1", limits, baseTime)
	if err != nil {
		t.Fatalf("TryConsume failed: %v", err)
	}
	if result.Allowed || result.Violated != ratelimit.Hour {
		t.Fatalf("got %+v, want hourly denial", result)
	}
	if !result.RetryAfter.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("retryAfter = %v, want next hour", result.RetryAfter)
	}

	counts, _ := ledger.Counts(ctx, "key-1", baseTime)
	if counts != (ratelimit.Counts{Hour: 3, Day: 3, Month: 3}) {
		t.Errorf("counts = %+v, the denial must not increment", counts)
	}

	// New hour, fresh hourly counter
	next := baseTime.Add(time.Hour)
	if result, _ := ledger.TryConsume(ctx, "key-1", limits, next); !result.Allowed {
		t.Error("first request of the next hour should be allowed")
	}
	counts, _ = ledger.Counts(ctx, "key-1", next)
	if counts.Hour != 1 || counts.Day != 4 {
		t.Errorf("counts = %+v, want hour 1 day 4", counts)
	}
}

func TestLedger_NoOvershootUnderConcurrency(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := sqlite.NewLedger(db)
	ctx := context.Background()
	limits := ratelimit.Limits{Hour: 20, Day: 1000, Month: 10000}

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := ledger.TryConsume(ctx, "key-1", limits, baseTime)
			if err == nil && result.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 20 {
		t.Errorf("allowed = %d, want exactly 20", allowed.Load())
	}
}

func TestLedger_ResetAndCleanup(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := sqlite.NewLedger(db)
	ctx := context.Background()
	limits := ratelimit.Limits{Hour: 10}

	ledger.TryConsume(ctx, "key-1", limits, baseTime)
	ledger.TryConsume(ctx, "key-2", limits, baseTime)

	if err := ledger.Reset(ctx, "key-1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if counts, _ := ledger.Counts(ctx, "key-1", baseTime); counts.Hour != 0 {
		t.Errorf("key-1 hour = %d after reset", counts.Hour)
	}

	// Only key-2's hourly counter has ended an hour later
	removed, err := ledger.Cleanup(ctx, baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if counts, _ := ledger.Counts(ctx, "key-2", baseTime); counts.Day != 1 {
		t.Errorf("key-2 day = %d, cleanup must keep live windows", counts.Day)
	}
}

// -----------------------------------------------------------------------------
// UsageStore Tests
// -----------------------------------------------------------------------------

func TestUsageStore_RecordAndQuery(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	records := []usage.Record{
		{APIKeyID: "key-1", OwnerID: "user-1", Endpoint: "/api/v1/filings", Method: "GET", StatusCode: 200, LatencyMs: 12, Timestamp: baseTime, CallerIP: "10.0.0.1", UserAgent: "curl"},
		{APIKeyID: "key-1", OwnerID: "user-1", Endpoint: "/api/v1/facts", Method: "GET", StatusCode: 429, Timestamp: baseTime.Add(time.Minute), Reason: "rate_limit_hour"},
		{APIKeyID: "key-2", OwnerID: "user-2", Endpoint: "/api/v1/facts", Method: "GET", StatusCode: 200, Timestamp: baseTime.Add(2 * time.Minute)},
	}
	if err := store.RecordBatch(ctx, records); err != nil {
		t.Fatalf("RecordBatch failed: %v", err)
	}
	if err := store.RecordBatch(ctx, nil); err != nil {
		t.Fatalf("empty RecordBatch failed: %v", err)
	}

	recent, err := store.Recent(ctx, "key-1", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Endpoint != "/api/v1/facts" {
		t.Errorf("Recent = %+v, want 2 records newest first", recent)
	}
	if recent[0].Reason != "rate_limit_hour" {
		t.Errorf("reason = %q, want rate_limit_hour", recent[0].Reason)
	}

	all, _ := store.Recent(ctx, "", 0)
	if len(all) != 3 {
		t.Errorf("Recent(all) = %d records, want 3", len(all))
	}

	ranged, err := store.Range(ctx, "key-1", baseTime, baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(ranged) != 1 {
		t.Fatalf("Range = %d records, want 1", len(ranged))
	}
	got := ranged[0]
	if !got.Timestamp.Equal(baseTime) || got.CallerIP != "10.0.0.1" || got.UserAgent != "curl" || got.LatencyMs != 12 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
