// Package cache provides a short-TTL read-through cache in front of a key store.
//
// A cached key keeps authorizing until its entry expires, so a revocation
// made by another process takes up to TTL to apply. Revocations made
// through this wrapper apply immediately.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/ports"
	"golang.org/x/sync/singleflight"
)

// Config configures the cache.
type Config struct {
	TTL        time.Duration
	MaxEntries int         // default: 10000
	Clock      ports.Clock // default: time.Now
}

type entry struct {
	key     key.Key
	expires time.Time
}

// KeyStore wraps a ports.KeyStore and caches FindByHash hits.
// Misses and errors are never cached.
type KeyStore struct {
	ports.KeyStore

	ttl   time.Duration
	max   int
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]entry  // by hash
	byID    map[string]string // id -> hash
	gen     uint64            // bumped by every invalidation
}

// New wraps store. A TTL of zero or less returns store unchanged.
func New(store ports.KeyStore, cfg Config) ports.KeyStore {
	if cfg.TTL <= 0 {
		return store
	}
	return NewKeyStore(store, cfg)
}

// NewKeyStore creates the caching wrapper.
func NewKeyStore(store ports.KeyStore, cfg Config) *KeyStore {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	c := &KeyStore{
		KeyStore: store,
		ttl:      cfg.TTL,
		max:      cfg.MaxEntries,
		now:      time.Now,
		entries:  make(map[string]entry),
		byID:     make(map[string]string),
	}
	if cfg.Clock != nil {
		c.now = cfg.Clock.Now
	}
	return c
}

// FindByHash serves from cache, coalescing concurrent misses for one hash.
func (c *KeyStore) FindByHash(ctx context.Context, hash string) (key.Key, error) {
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[hash]
	gen := c.gen
	c.mu.Unlock()
	if ok && now.Before(e.expires) {
		return e.key, nil
	}

	// Lookups started after an invalidation never join an older flight
	v, err, _ := c.group.Do(hash+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		return c.KeyStore.FindByHash(ctx, hash)
	})
	if err != nil {
		return key.Key{}, err
	}
	k := v.(key.Key)
	c.put(hash, k, now, gen)
	return k, nil
}

// put caches k unless an invalidation happened since the lookup began.
func (c *KeyStore) put(hash string, k key.Key, now time.Time, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	if len(c.entries) >= c.max {
		c.evictLocked(now)
	}
	c.entries[hash] = entry{key: k, expires: now.Add(c.ttl)}
	c.byID[k.ID] = hash
}

// evictLocked drops expired entries, or everything when none has expired.
func (c *KeyStore) evictLocked(now time.Time) {
	for hash, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, hash)
			delete(c.byID, e.key.ID)
		}
	}
	if len(c.entries) >= c.max {
		c.entries = make(map[string]entry)
		c.byID = make(map[string]string)
	}
}

// Invalidate drops the cached entry of a key ID.
func (c *KeyStore) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if hash, ok := c.byID[id]; ok {
		delete(c.entries, hash)
		delete(c.byID, id)
	}
}

// Revoke revokes in the underlying store and drops the cached entry.
func (c *KeyStore) Revoke(ctx context.Context, id string) error {
	defer c.Invalidate(id)
	return c.KeyStore.Revoke(ctx, id)
}

// MarkExpired expires in the underlying store and drops the cached entry.
func (c *KeyStore) MarkExpired(ctx context.Context, id string) error {
	defer c.Invalidate(id)
	return c.KeyStore.MarkExpired(ctx, id)
}

// Len returns the number of cached entries.
func (c *KeyStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
