package memory

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/artpar/xbrlgate/domain/ratelimit"
	"github.com/artpar/xbrlgate/ports"
)

// counter is the count of one key in one window.
type counter struct {
	count int
	end   time.Time
}

// ledgerShard is a single shard of the ledger.
type ledgerShard struct {
	mu       sync.Mutex
	counters map[string]counter // by ratelimit.CounterID
}

// Ledger is a sharded in-memory fixed-window ledger.
// Counts are per process; run the redis ledger when several replicas share keys.
type Ledger struct {
	shards    []*ledgerShard
	numShards int
	now       func() time.Time
	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// LedgerConfig configures the in-memory ledger.
type LedgerConfig struct {
	NumShards       int           // Number of shards (default: 32)
	CleanupInterval time.Duration // How often to drop past windows (default: 5m)
	Clock           ports.Clock   // Time source for cleanup (default: time.Now)
}

// NewLedger creates a sharded in-memory ledger and starts its cleanup loop.
func NewLedger(cfg LedgerConfig) *Ledger {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	l := &Ledger{
		shards:    make([]*ledgerShard, cfg.NumShards),
		numShards: cfg.NumShards,
		now:       time.Now,
		done:      make(chan struct{}),
	}
	if cfg.Clock != nil {
		l.now = cfg.Clock.Now
	}

	for i := range l.shards {
		l.shards[i] = &ledgerShard{counters: make(map[string]counter)}
	}

	l.cleanup = time.NewTicker(cfg.CleanupInterval)
	go l.cleanupLoop()

	return l
}

// getShard returns the shard of a key. All windows of a key share one shard.
func (l *Ledger) getShard(keyID string) *ledgerShard {
	h := fnv.New32a()
	h.Write([]byte(keyID))
	return l.shards[h.Sum32()%uint32(l.numShards)]
}

// TryConsume evaluates and increments under the shard lock.
func (l *Ledger) TryConsume(ctx context.Context, keyID string, limits ratelimit.Limits, now time.Time) (ratelimit.Result, error) {
	if err := ctx.Err(); err != nil {
		return ratelimit.Result{}, err
	}

	shard := l.getShard(keyID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	counts := shard.counts(keyID, now)
	result := ratelimit.Evaluate(counts, limits, now)
	if !result.Allowed {
		return result, nil
	}

	for _, w := range ratelimit.Windows {
		id := ratelimit.CounterID(keyID, w, now)
		c := shard.counters[id]
		c.count++
		c.end = w.End(now)
		shard.counters[id] = c
	}
	return result, nil
}

// Counts returns the current window counts.
func (l *Ledger) Counts(ctx context.Context, keyID string, now time.Time) (ratelimit.Counts, error) {
	shard := l.getShard(keyID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return shard.counts(keyID, now), nil
}

// Reset drops every counter of a key.
func (l *Ledger) Reset(ctx context.Context, keyID string) error {
	shard := l.getShard(keyID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	prefix := keyID + ":"
	for id := range shard.counters {
		if strings.HasPrefix(id, prefix) {
			delete(shard.counters, id)
		}
	}
	return nil
}

func (s *ledgerShard) counts(keyID string, now time.Time) ratelimit.Counts {
	return ratelimit.Counts{
		Hour:  s.counters[ratelimit.CounterID(keyID, ratelimit.Hour, now)].count,
		Day:   s.counters[ratelimit.CounterID(keyID, ratelimit.Day, now)].count,
		Month: s.counters[ratelimit.CounterID(keyID, ratelimit.Month, now)].count,
	}
}

// cleanupLoop periodically removes counters of past windows.
func (l *Ledger) cleanupLoop() {
	for {
		select {
		case <-l.cleanup.C:
			l.Cleanup(l.now())
		case <-l.done:
			return
		}
	}
}

// Cleanup removes counters whose window ended before now.
func (l *Ledger) Cleanup(now time.Time) {
	for _, shard := range l.shards {
		shard.mu.Lock()
		for id, c := range shard.counters {
			if !c.end.After(now) {
				delete(shard.counters, id)
			}
		}
		shard.mu.Unlock()
	}
}

// Close stops the cleanup goroutine.
func (l *Ledger) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.cleanup.Stop()
	})
	return nil
}

// Len returns the total number of counters across all shards (for testing).
func (l *Ledger) Len() int {
	total := 0
	for _, shard := range l.shards {
		shard.mu.Lock()
		total += len(shard.counters)
		shard.mu.Unlock()
	}
	return total
}

// Ensure interface compliance.
var _ ports.Ledger = (*Ledger)(nil)
