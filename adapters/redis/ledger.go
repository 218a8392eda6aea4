// Package redis provides a Redis implementation of the rate limit ledger.
// One Lua script evaluates and increments all windows of a key, so the
// ledger is atomic across every process sharing the Redis instance.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/artpar/xbrlgate/domain/ratelimit"
	"github.com/artpar/xbrlgate/ports"
	goredis "github.com/redis/go-redis/v9"
)

// consumeScript reads the hour, day and month counters, denies without
// writing when one is at its limit, and otherwise increments all three.
//
// KEYS[1..3]: counter keys. ARGV[1..3]: limits (<= 0 disables). ARGV[4..6]: expire-at unix seconds.
// Returns {allowed, violated window index, hour, day, month} with counts before the increment.
var consumeScript = goredis.NewScript(`
local counts = {}
for i = 1, 3 do
  counts[i] = tonumber(redis.call('GET', KEYS[i]) or '0')
end
for i = 1, 3 do
  local limit = tonumber(ARGV[i])
  if limit > 0 and counts[i] >= limit then
    return {0, i, counts[1], counts[2], counts[3]}
  end
end
for i = 1, 3 do
  redis.call('INCR', KEYS[i])
  redis.call('EXPIREAT', KEYS[i], ARGV[i + 3])
end
return {1, 0, counts[1], counts[2], counts[3]}
`)

// Options configures the ledger.
type Options struct {
	Prefix string        // Key namespace (default: "xbrlgate:rl:")
	Grace  time.Duration // Extra TTL past the window end (default: 1m)
}

// Ledger implements ports.Ledger on Redis.
type Ledger struct {
	client goredis.UniversalClient
	prefix string
	grace  time.Duration
}

// NewLedger creates a Redis ledger on an existing client.
func NewLedger(client goredis.UniversalClient, opts Options) *Ledger {
	if opts.Prefix == "" {
		opts.Prefix = "xbrlgate:rl:"
	}
	if opts.Grace <= 0 {
		opts.Grace = time.Minute
	}
	return &Ledger{client: client, prefix: opts.Prefix, grace: opts.Grace}
}

// ClientConfig holds connection settings.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a go-redis client and checks that it is reachable.
func NewClient(ctx context.Context, cfg ClientConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, unavailable("connect", err)
	}
	return client, nil
}

// counterKey names the counter of one window. The key ID sits in a hash tag
// so all windows of a key share a cluster slot.
func (l *Ledger) counterKey(keyID string, w ratelimit.Window, now time.Time) string {
	return fmt.Sprintf("%s{%s}:%s:%d", l.prefix, keyID, w, w.Start(now).Unix())
}

func (l *Ledger) keys(keyID string, now time.Time) []string {
	keys := make([]string, len(ratelimit.Windows))
	for i, w := range ratelimit.Windows {
		keys[i] = l.counterKey(keyID, w, now)
	}
	return keys
}

// TryConsume runs the consume script.
func (l *Ledger) TryConsume(ctx context.Context, keyID string, limits ratelimit.Limits, now time.Time) (ratelimit.Result, error) {
	args := make([]any, 0, 2*len(ratelimit.Windows))
	for _, w := range ratelimit.Windows {
		args = append(args, limits.For(w))
	}
	for _, w := range ratelimit.Windows {
		args = append(args, w.End(now).Add(l.grace).Unix())
	}

	reply, err := consumeScript.Run(ctx, l.client, l.keys(keyID, now), args...).Int64Slice()
	if err != nil {
		return ratelimit.Result{}, unavailable("consume", err)
	}
	if len(reply) != 5 {
		return ratelimit.Result{}, unavailable("consume", fmt.Errorf("unexpected reply length %d", len(reply)))
	}

	counts := ratelimit.Counts{Hour: int(reply[2]), Day: int(reply[3]), Month: int(reply[4])}
	result := ratelimit.Evaluate(counts, limits, now)
	if result.Allowed != (reply[0] == 1) {
		return ratelimit.Result{}, unavailable("consume", fmt.Errorf("script and evaluator disagree for %s", keyID))
	}
	return result, nil
}

// Counts returns the current window counts.
func (l *Ledger) Counts(ctx context.Context, keyID string, now time.Time) (ratelimit.Counts, error) {
	values, err := l.client.MGet(ctx, l.keys(keyID, now)...).Result()
	if err != nil {
		return ratelimit.Counts{}, unavailable("counts", err)
	}

	var counts ratelimit.Counts
	for i, w := range ratelimit.Windows {
		s, ok := values[i].(string)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return ratelimit.Counts{}, unavailable("counts", err)
		}
		counts.Set(w, n)
	}
	return counts, nil
}

// Reset deletes every counter of a key.
func (l *Ledger) Reset(ctx context.Context, keyID string) error {
	pattern := fmt.Sprintf("%s{%s}:*", l.prefix, keyID)
	iter := l.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return unavailable("reset", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		return unavailable("reset", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %w", op, ports.ErrStoreUnavailable, err)
}

// Ensure interface compliance.
var (
	_ ports.Ledger = (*Ledger)(nil)
	_ ports.Pinger = (*Ledger)(nil)
)
