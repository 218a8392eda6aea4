package cache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artpar/xbrlgate/adapters/cache"
	"github.com/artpar/xbrlgate/adapters/clock"
	"github.com/artpar/xbrlgate/adapters/memory"
	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/ports"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// countingStore counts lookups that reach the backing store.
type countingStore struct {
	*memory.KeyStore
	finds atomic.Int64
}

func (s *countingStore) FindByHash(ctx context.Context, hash string) (key.Key, error) {
	s.finds.Add(1)
	return s.KeyStore.FindByHash(ctx, hash)
}

func setup(t *testing.T, ttl time.Duration) (*cache.KeyStore, *countingStore, *clock.Fake) {
	t.Helper()
	backing := &countingStore{KeyStore: memory.NewKeyStore()}
	backing.Create(context.Background(), key.Key{ID: "key-1", Hash: "hash-1", Status: key.StatusActive, Tier: key.TierFree})

	clk := clock.NewFake(baseTime)
	return cache.NewKeyStore(backing, cache.Config{TTL: ttl, MaxEntries: 2, Clock: clk}), backing, clk
}

func TestNew_ZeroTTLDisables(t *testing.T) {
	backing := memory.NewKeyStore()
	if got := cache.New(backing, cache.Config{}); got != ports.KeyStore(backing) {
		t.Error("zero TTL should return the backing store")
	}
}

func TestKeyStore_CachesHits(t *testing.T) {
	store, backing, clk := setup(t, 10*time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.FindByHash(ctx, "hash-1"); err != nil {
			t.Fatalf("FindByHash failed: %v", err)
		}
	}
	if backing.finds.Load() != 1 {
		t.Errorf("backing finds = %d, want 1", backing.finds.Load())
	}

	clk.Advance(10 * time.Second)
	store.FindByHash(ctx, "hash-1")
	if backing.finds.Load() != 2 {
		t.Errorf("backing finds = %d after TTL, want 2", backing.finds.Load())
	}
}

func TestKeyStore_MissesNotCached(t *testing.T) {
	store, backing, _ := setup(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.FindByHash(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	}
	if backing.finds.Load() != 3 {
		t.Errorf("backing finds = %d, want 3", backing.finds.Load())
	}
}

func TestKeyStore_RevokeInvalidates(t *testing.T) {
	store, _, _ := setup(t, time.Minute)
	ctx := context.Background()

	store.FindByHash(ctx, "hash-1")
	if err := store.Revoke(ctx, "key-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	k, _ := store.FindByHash(ctx, "hash-1")
	if k.Status != key.StatusRevoked {
		t.Errorf("status = %s, revocation must be visible at once", k.Status)
	}
}

// gatedStore holds the first lookup until release is closed.
type gatedStore struct {
	*memory.KeyStore
	entered chan struct{}
	release chan struct{}
	once    atomic.Bool
}

func (s *gatedStore) FindByHash(ctx context.Context, hash string) (key.Key, error) {
	k, err := s.KeyStore.FindByHash(ctx, hash)
	if s.once.CompareAndSwap(false, true) {
		close(s.entered)
		<-s.release
	}
	return k, err
}

func TestKeyStore_RevokeDuringLookupNotCached(t *testing.T) {
	ctx := context.Background()
	backing := &gatedStore{
		KeyStore: memory.NewKeyStore(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	backing.Create(ctx, key.Key{ID: "key-1", Hash: "hash-1", Status: key.StatusActive, Tier: key.TierFree})
	store := cache.NewKeyStore(backing, cache.Config{TTL: time.Minute, MaxEntries: 2, Clock: clock.NewFake(baseTime)})

	done := make(chan key.Key)
	go func() {
		k, _ := store.FindByHash(ctx, "hash-1")
		done <- k
	}()

	<-backing.entered
	if err := store.Revoke(ctx, "key-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	close(backing.release)

	if k := <-done; k.Status != key.StatusActive {
		t.Fatalf("in-flight status = %s, want the pre-revocation read", k.Status)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, stale lookup must not be cached", store.Len())
	}

	k, err := store.FindByHash(ctx, "hash-1")
	if err != nil {
		t.Fatalf("FindByHash failed: %v", err)
	}
	if k.Status != key.StatusRevoked {
		t.Errorf("status = %s, want revoked", k.Status)
	}
}

func TestKeyStore_BoundedSize(t *testing.T) {
	store, backing, _ := setup(t, time.Minute)
	ctx := context.Background()
	backing.Create(ctx, key.Key{ID: "key-2", Hash: "hash-2"})
	backing.Create(ctx, key.Key{ID: "key-3", Hash: "hash-3"})

	store.FindByHash(ctx, "hash-1")
	store.FindByHash(ctx, "hash-2")
	store.FindByHash(ctx, "hash-3")

	if store.Len() > 2 {
		t.Errorf("Len = %d, want at most 2", store.Len())
	}
}
