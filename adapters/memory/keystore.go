// Package memory provides in-memory implementations for testing and single-process demos.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/ports"
)

// KeyStore is an in-memory implementation of ports.KeyStore.
type KeyStore struct {
	mu     sync.RWMutex
	keys   map[string]key.Key // by ID
	byHash map[string]string  // hash -> ID
}

// NewKeyStore creates a new in-memory key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{
		keys:   make(map[string]key.Key),
		byHash: make(map[string]string),
	}
}

// FindByHash retrieves the key with the given hash.
func (s *KeyStore) FindByHash(ctx context.Context, hash string) (key.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return key.Key{}, ports.ErrNotFound
	}
	return s.keys[id], nil
}

// TouchLastUsed updates the last used timestamp.
func (s *KeyStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(k *key.Key) {
		k.LastUsed = &at
	})
}

// IncrementUsageCounters adds one to the request counter.
func (s *KeyStore) IncrementUsageCounters(ctx context.Context, id string) error {
	return s.update(id, func(k *key.Key) {
		k.TotalRequests++
	})
}

// MarkExpired moves an active key to expired.
func (s *KeyStore) MarkExpired(ctx context.Context, id string) error {
	return s.update(id, func(k *key.Key) {
		if k.Status == key.StatusActive {
			k.Status = key.StatusExpired
		}
	})
}

// Create stores a new key.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[k.ID] = k
	s.byHash[k.Hash] = k.ID
	return nil
}

// GetByID retrieves a key by ID.
func (s *KeyStore) GetByID(ctx context.Context, id string) (key.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[id]
	if !ok {
		return key.Key{}, ports.ErrNotFound
	}
	return k, nil
}

// ListByOwner returns all keys of an owner, newest first.
func (s *KeyStore) ListByOwner(ctx context.Context, ownerID string) ([]key.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []key.Key
	for _, k := range s.keys {
		if k.OwnerID == ownerID {
			result = append(result, k)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// List returns all keys, newest first.
func (s *KeyStore) List(ctx context.Context) ([]key.Key, error) {
	result := s.GetAll()
	sortNewestFirst(result)
	return result, nil
}

// Revoke marks a key as revoked.
func (s *KeyStore) Revoke(ctx context.Context, id string) error {
	return s.update(id, func(k *key.Key) {
		k.Status = key.StatusRevoked
	})
}

func (s *KeyStore) update(id string, fn func(*key.Key)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok {
		return ports.ErrNotFound
	}
	fn(&k)
	s.keys[id] = k
	return nil
}

// GetAll returns all keys (for testing).
func (s *KeyStore) GetAll() []key.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]key.Key, 0, len(s.keys))
	for _, k := range s.keys {
		result = append(result, k)
	}
	return result
}

// Clear removes all keys (for testing).
func (s *KeyStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = make(map[string]key.Key)
	s.byHash = make(map[string]string)
}

// Ping always succeeds.
func (s *KeyStore) Ping(ctx context.Context) error {
	return nil
}

func sortNewestFirst(keys []key.Key) {
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].ID < keys[j].ID
		}
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
}

// Ensure interface compliance.
var (
	_ ports.KeyStore = (*KeyStore)(nil)
	_ ports.Pinger   = (*KeyStore)(nil)
)
