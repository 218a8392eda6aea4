package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/xbrlgate/domain/usage"
	"github.com/artpar/xbrlgate/ports"
)

// UsageStore is an in-memory implementation of ports.UsageStore.
type UsageStore struct {
	mu      sync.RWMutex
	records []usage.Record
}

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{
		records: make([]usage.Record, 0),
	}
}

// RecordBatch stores multiple usage records.
func (s *UsageStore) RecordBatch(ctx context.Context, records []usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
	return nil
}

// Recent returns the latest records, newest first. An empty keyID matches all keys.
func (s *UsageStore) Recent(ctx context.Context, keyID string, limit int) ([]usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matching []usage.Record
	for i := len(s.records) - 1; i >= 0 && (limit <= 0 || len(matching) < limit); i-- {
		if keyID == "" || s.records[i].APIKeyID == keyID {
			matching = append(matching, s.records[i])
		}
	}
	return matching, nil
}

// Range returns the records of a key in [start, end), oldest first.
func (s *UsageStore) Range(ctx context.Context, keyID string, start, end time.Time) ([]usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matching []usage.Record
	for _, r := range s.records {
		if keyID != "" && r.APIKeyID != keyID {
			continue
		}
		if !r.Timestamp.Before(start) && r.Timestamp.Before(end) {
			matching = append(matching, r)
		}
	}
	return matching, nil
}

// GetAll returns all records (for testing).
func (s *UsageStore) GetAll() []usage.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]usage.Record{}, s.records...)
}

// Drain returns all records and clears the store (for testing).
func (s *UsageStore) Drain() []usage.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.records
	s.records = make([]usage.Record, 0)
	return records
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
