package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artpar/xbrlgate/adapters/postgres"
	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/domain/ratelimit"
	"github.com/artpar/xbrlgate/domain/usage"
	"github.com/artpar/xbrlgate/ports"
	"github.com/google/uuid"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// setupTestDB connects to XBRLGATE_TEST_POSTGRES_DSN, or skips.
func setupTestDB(t *testing.T) *postgres.DB {
	t.Helper()

	dsn := os.Getenv("XBRLGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("XBRLGATE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, postgres.Config{DSN: dsn, MaxConns: 8})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newKey(owner string) key.Key {
	id := uuid.NewString()
	expires := baseTime.AddDate(1, 0, 0)
	return key.Key{
		ID:        id,
		OwnerID:   owner,
		Hash:      "hash-" + id,
		Prefix:    "xbrl_live_abc123",
		Name:      "Default",
		Tier:      key.TierBasic,
		Status:    key.StatusActive,
		ExpiresAt: &expires,
		CreatedAt: baseTime,
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	if _, err := postgres.Open(context.Background(), postgres.Config{DSN: "://bad"}); err == nil {
		t.Error("expected error for malformed DSN")
	}
}

func TestKeyStore_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	store := postgres.NewKeyStore(db)
	ctx := context.Background()
	owner := uuid.NewString()

	k := newKey(owner)
	k.HourlyLimit = 25
	if err := store.Create(ctx, k); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.FindByHash(ctx, k.Hash)
	if err != nil {
		t.Fatalf("FindByHash failed: %v", err)
	}
	if got.ID != k.ID || got.OwnerID != owner || got.Tier != key.TierBasic || got.HourlyLimit != 25 {
		t.Errorf("got %+v", got)
	}

	if err := store.TouchLastUsed(ctx, k.ID, baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("TouchLastUsed failed: %v", err)
	}
	if err := store.IncrementUsageCounters(ctx, k.ID); err != nil {
		t.Fatalf("IncrementUsageCounters failed: %v", err)
	}

	got, _ = store.GetByID(ctx, k.ID)
	if got.TotalRequests != 1 || got.LastUsed == nil {
		t.Errorf("after touch: total=%d last_used=%v", got.TotalRequests, got.LastUsed)
	}

	if err := store.Revoke(ctx, k.ID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	store.MarkExpired(ctx, k.ID)
	got, _ = store.GetByID(ctx, k.ID)
	if got.Status != key.StatusRevoked {
		t.Errorf("status = %s, want revoked", got.Status)
	}

	keys, err := store.ListByOwner(ctx, owner)
	if err != nil || len(keys) != 1 {
		t.Errorf("ListByOwner = %d keys, err %v", len(keys), err)
	}

	if _, err := store.FindByHash(ctx, "no-such-hash"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := store.GetByID(ctx, "not-a-uuid"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLedger_TryConsume(t *testing.T) {
	db := setupTestDB(t)
	ledger := postgres.NewLedger(db)
	ctx := context.Background()
	keyID := uuid.NewString()
	limits := ratelimit.Limits{Hour: 2, Day: 100, Month: 1000}
	defer ledger.Reset(ctx, keyID)

	for i := 0; i < 2; i++ {
		result, err := ledger.TryConsume(ctx, keyID, limits, baseTime)
		if err != nil {
			t.Fatalf("TryConsume failed: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d denied", i+1)
		}
	}

	result, _ := ledger.TryConsume(ctx, keyID, limits, baseTime)
	if result.Allowed || result.Violated != ratelimit.Hour {
		t.Fatalf("got %+v, want hourly denial", result)
	}

	counts, _ := ledger.Counts(ctx, keyID, baseTime)
	if counts != (ratelimit.Counts{Hour: 2, Day: 2, Month: 2}) {
		t.Errorf("counts = %+v", counts)
	}

	next := baseTime.Add(time.Hour)
	if result, _ := ledger.TryConsume(ctx, keyID, limits, next); !result.Allowed {
		t.Error("next hour should allow")
	}
	counts, _ = ledger.Counts(ctx, keyID, next)
	if counts.Hour != 1 || counts.Day != 3 {
		t.Errorf("counts = %+v, want hour 1 day 3", counts)
	}
}

func TestLedger_NoOvershootUnderConcurrency(t *testing.T) {
	db := setupTestDB(t)
	ledger := postgres.NewLedger(db)
	ctx := context.Background()
	keyID := uuid.NewString()
	limits := ratelimit.Limits{Hour: 10, Day: 100, Month: 1000}
	defer ledger.Reset(ctx, keyID)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := ledger.TryConsume(ctx, keyID, limits, baseTime)
			if err == nil && result.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 10 {
		t.Errorf("allowed = %d, want exactly 10", allowed.Load())
	}
}

func TestUsageStore_RecordAndQuery(t *testing.T) {
	db := setupTestDB(t)
	store := postgres.NewUsageStore(db)
	ctx := context.Background()
	keyID := uuid.NewString()

	err := store.RecordBatch(ctx, []usage.Record{
		{APIKeyID: keyID, Endpoint: "/api/v1/filings", Method: "GET", StatusCode: 200, LatencyMs: 8, Timestamp: baseTime, CallerIP: "10.0.0.1"},
		{APIKeyID: keyID, Endpoint: "/api/v1/filings", Method: "GET", StatusCode: 429, Timestamp: baseTime.Add(time.Second), Reason: "rate_limit_hour"},
	})
	if err != nil {
		t.Fatalf("RecordBatch failed: %v", err)
	}

	recent, err := store.Recent(ctx, keyID, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Reason != "rate_limit_hour" {
		t.Errorf("Recent = %+v", recent)
	}

	ranged, _ := store.Range(ctx, keyID, baseTime, baseTime.Add(time.Second))
	if len(ranged) != 1 || ranged[0].CallerIP != "10.0.0.1" {
		t.Errorf("Range = %+v", ranged)
	}
}
