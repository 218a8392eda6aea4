// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/xbrlgate/domain/decision"
	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/domain/ratelimit"
	"github.com/artpar/xbrlgate/ports"
	"github.com/rs/zerolog"
)

// Authorizer turns a raw API key into a Decision.
// It never returns an error: infrastructure failures deny with KeyInvalid.
type Authorizer struct {
	keys    ports.CredentialStore
	hasher  ports.KeyHasher
	ledger  ports.Ledger
	metrics ports.AuthMetrics
	logger  zerolog.Logger

	storeTimeout  time.Duration
	ledgerTimeout time.Duration
	touchTimeout  time.Duration

	// Hot-reloadable tier table
	tiers atomic.Pointer[ratelimit.Tiers]

	// Background touches, expiry marks and counter increments
	wg sync.WaitGroup
}

// AuthorizerDeps contains dependencies for Authorizer.
type AuthorizerDeps struct {
	Keys    ports.CredentialStore
	Hasher  ports.KeyHasher
	Ledger  ports.Ledger
	Metrics ports.AuthMetrics // optional
	Logger  zerolog.Logger
}

// AuthorizerConfig contains configuration for Authorizer.
type AuthorizerConfig struct {
	Tiers         ratelimit.Tiers
	StoreTimeout  time.Duration // default: 2s
	LedgerTimeout time.Duration // default: 2s
	TouchTimeout  time.Duration // default: 5s
}

// NewAuthorizer creates a new authorizer.
func NewAuthorizer(deps AuthorizerDeps, cfg AuthorizerConfig) *Authorizer {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = 2 * time.Second
	}
	if cfg.TouchTimeout <= 0 {
		cfg.TouchTimeout = 5 * time.Second
	}

	a := &Authorizer{
		keys:          deps.Keys,
		hasher:        deps.Hasher,
		ledger:        deps.Ledger,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		storeTimeout:  cfg.StoreTimeout,
		ledgerTimeout: cfg.LedgerTimeout,
		touchTimeout:  cfg.TouchTimeout,
	}
	a.UpdateTiers(cfg.Tiers)
	return a
}

// UpdateTiers swaps the tier table. Missing tiers keep their defaults.
// This is thread-safe and can be called while authorizing.
func (a *Authorizer) UpdateTiers(tiers ratelimit.Tiers) {
	merged := ratelimit.DefaultTiers().Merge(tiers)
	a.tiers.Store(&merged)
}

// Tiers returns the current tier table.
func (a *Authorizer) Tiers() ratelimit.Tiers {
	return *a.tiers.Load()
}

// Authorize decides whether a request carrying rawKey may proceed.
func (a *Authorizer) Authorize(ctx context.Context, rawKey, endpoint string, now time.Time) decision.Decision {
	start := time.Now()
	d := a.authorize(ctx, rawKey, endpoint, now)
	if a.metrics != nil {
		a.metrics.ObserveDecision(d.Outcome.String(), string(d.Reason), time.Since(start))
	}
	return d
}

func (a *Authorizer) authorize(ctx context.Context, rawKey, endpoint string, now time.Time) decision.Decision {
	// 1. Presence
	if rawKey == "" {
		return decision.Denied(decision.ReasonKeyMissing)
	}

	// 2. Hash (always, so unknown and malformed keys cost the same)
	hash := a.hasher.Hash(rawKey)

	// 3. Lookup (I/O)
	k, err := a.findKey(ctx, hash)
	if errors.Is(err, ports.ErrNotFound) {
		a.logger.Debug().
			Str("endpoint", endpoint).
			Bool("well_formed", key.ValidateFormat(rawKey)).
			Msg("unknown api key")
		return decision.Denied(decision.ReasonKeyInvalid)
	}
	if err != nil {
		a.logger.Error().Err(err).Str("endpoint", endpoint).Msg("store_unavailable")
		if a.metrics != nil {
			a.metrics.StoreError("find_by_hash")
		}
		return decision.Denied(decision.ReasonKeyInvalid)
	}

	// 4-5. Status and expiry (PURE)
	validation := key.Validate(k, now)
	if !validation.Valid {
		if validation.MarkExpired {
			a.background(ctx, "mark_expired", k.ID, func(ctx context.Context) error {
				return a.keys.MarkExpired(ctx, k.ID)
			})
		}
		d := decision.Denied(decision.ReasonKeyExpired)
		if validation.Reason == key.ReasonRevoked {
			d = decision.Denied(decision.ReasonKeyRevoked)
		}
		a.logger.Debug().Str("key_id", k.ID).Str("reason", string(d.Reason)).Msg("key rejected")
		return d
	}

	// 6. Quota (I/O, atomic in the ledger)
	limits := a.Tiers().Resolve(k)
	result, err := a.consume(ctx, k.ID, limits, now)
	if err != nil {
		a.logger.Error().Err(err).Str("key_id", k.ID).Str("endpoint", endpoint).Msg("ledger_unavailable")
		if a.metrics != nil {
			a.metrics.LedgerError()
		}
		return decision.Denied(decision.ReasonKeyInvalid)
	}

	d := decision.Decision{
		KeyID:     k.ID,
		OwnerID:   k.OwnerID,
		Tier:      k.Tier,
		Remaining: result.Remaining,
		Limit:     result.Limit,
		ResetAt:   result.ResetAt,
	}
	if !result.Allowed {
		d.Outcome = decision.Deny
		d.Reason = decision.ForWindow(result.Violated)
		d.Remaining = 0
		d.RetryAfter = result.RetryAfter
		a.logger.Info().
			Str("key_id", k.ID).
			Str("reason", string(d.Reason)).
			Time("retry_after", d.RetryAfter).
			Msg("rate limit exceeded")
		return d
	}

	// 7. Allow, then fire-and-forget bookkeeping
	d.Outcome = decision.Allow
	d.Reason = decision.ReasonNone
	a.background(ctx, "touch_last_used", k.ID, func(ctx context.Context) error {
		return a.keys.TouchLastUsed(ctx, k.ID, now)
	})
	a.background(ctx, "increment_usage", k.ID, func(ctx context.Context) error {
		return a.keys.IncrementUsageCounters(ctx, k.ID)
	})
	return d
}

func (a *Authorizer) findKey(ctx context.Context, hash string) (key.Key, error) {
	ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	return a.keys.FindByHash(ctx, hash)
}

func (a *Authorizer) consume(ctx context.Context, keyID string, limits ratelimit.Limits, now time.Time) (ratelimit.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.ledgerTimeout)
	defer cancel()
	return a.ledger.TryConsume(ctx, keyID, limits, now)
}

// background runs fn detached from the request's cancellation, bounded by touchTimeout.
// Failures are logged and never affect the decision.
func (a *Authorizer) background(ctx context.Context, op, keyID string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, a.touchTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.logger.Warn().Err(err).Str("op", op).Str("key_id", keyID).Msg("background key update failed")
			if a.metrics != nil {
				a.metrics.StoreError(op)
			}
		}
	}()
}

// Wait blocks until every background update has finished.
func (a *Authorizer) Wait() {
	a.wg.Wait()
}
