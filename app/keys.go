package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/domain/ratelimit"
	"github.com/artpar/xbrlgate/ports"
	"github.com/rs/zerolog"
)

// Key management errors.
var (
	ErrTooManyKeys    = errors.New("active key limit reached")
	ErrAlreadyRevoked = errors.New("key already revoked")
	ErrInvalidTier    = errors.New("invalid tier")
	ErrOwnerRequired  = errors.New("owner id is required")
	ErrNoLedger       = errors.New("no rate limit ledger configured")
)

// KeyService issues, lists and revokes API keys.
type KeyService struct {
	keys   ports.KeyStore
	ledger ports.Ledger
	hasher ports.KeyHasher
	random ports.Random
	idGen  ports.IDGenerator
	clock  ports.Clock
	logger zerolog.Logger

	maxActive     int
	defaultExpiry time.Duration

	issueMu sync.Mutex // holds the active count and the insert together
}

// KeyServiceDeps contains dependencies for KeyService.
type KeyServiceDeps struct {
	Keys   ports.KeyStore
	Ledger ports.Ledger // optional, needed by ResetLimits
	Hasher ports.KeyHasher
	Random ports.Random
	IDGen  ports.IDGenerator
	Clock  ports.Clock
	Logger zerolog.Logger
}

// KeyServiceConfig contains configuration for KeyService.
type KeyServiceConfig struct {
	MaxActiveKeys int           // default: 3
	DefaultExpiry time.Duration // default: one year
}

// NewKeyService creates a new key service.
func NewKeyService(deps KeyServiceDeps, cfg KeyServiceConfig) *KeyService {
	if cfg.MaxActiveKeys <= 0 {
		cfg.MaxActiveKeys = 3
	}
	if cfg.DefaultExpiry <= 0 {
		cfg.DefaultExpiry = 365 * 24 * time.Hour
	}
	return &KeyService{
		keys:          deps.Keys,
		ledger:        deps.Ledger,
		hasher:        deps.Hasher,
		random:        deps.Random,
		idGen:         deps.IDGen,
		clock:         deps.Clock,
		logger:        deps.Logger,
		maxActive:     cfg.MaxActiveKeys,
		defaultExpiry: cfg.DefaultExpiry,
	}
}

// IssueParams contains parameters for issuing a key.
type IssueParams struct {
	OwnerID   string
	Name      string
	Tier      string        // default: free
	ExpiresIn time.Duration // zero uses the default expiry; negative means never
}

// Issue creates a key and returns its plaintext. The plaintext is not stored
// and cannot be recovered later.
//
// The active key limit is enforced per process. Issue calls within one
// process are serialized, but replicas sharing a key store may each pass
// the count and push an owner past MaxActiveKeys.
func (s *KeyService) Issue(ctx context.Context, p IssueParams) (string, key.Key, error) {
	if p.OwnerID == "" {
		return "", key.Key{}, ErrOwnerRequired
	}

	tier := key.TierFree
	if p.Tier != "" {
		t, err := key.ParseTier(p.Tier)
		if err != nil {
			return "", key.Key{}, fmt.Errorf("%w: %q", ErrInvalidTier, p.Tier)
		}
		tier = t
	}

	s.issueMu.Lock()
	defer s.issueMu.Unlock()

	now := s.clock.Now()

	existing, err := s.keys.ListByOwner(ctx, p.OwnerID)
	if err != nil {
		return "", key.Key{}, fmt.Errorf("list keys: %w", err)
	}
	active := 0
	for _, k := range existing {
		if key.IsActive(k, now) {
			active++
		}
	}
	if active >= s.maxActive {
		return "", key.Key{}, fmt.Errorf("%w: %d of %d", ErrTooManyKeys, active, s.maxActive)
	}

	plaintext, err := key.Generate(s.random)
	if err != nil {
		return "", key.Key{}, err
	}

	var expiresAt *time.Time
	switch {
	case p.ExpiresIn == 0:
		t := now.Add(s.defaultExpiry)
		expiresAt = &t
	case p.ExpiresIn > 0:
		t := now.Add(p.ExpiresIn)
		expiresAt = &t
	}

	k := key.New(plaintext, s.hasher.Hash(plaintext), key.CreateParams{
		ID:        s.idGen.New(),
		OwnerID:   p.OwnerID,
		Name:      p.Name,
		Tier:      tier,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	if err := s.keys.Create(ctx, k); err != nil {
		return "", key.Key{}, fmt.Errorf("create key: %w", err)
	}

	s.logger.Info().
		Str("key_id", k.ID).
		Str("owner_id", k.OwnerID).
		Str("tier", string(k.Tier)).
		Msg("api key issued")
	return plaintext, k, nil
}

// Revoke permanently disables a key.
func (s *KeyService) Revoke(ctx context.Context, id string) error {
	k, err := s.keys.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if k.Status == key.StatusRevoked {
		return ErrAlreadyRevoked
	}
	if err := s.keys.Revoke(ctx, id); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	s.logger.Info().Str("key_id", id).Msg("api key revoked")
	return nil
}

// List returns the keys of an owner, or all keys when ownerID is empty.
func (s *KeyService) List(ctx context.Context, ownerID string) ([]key.Key, error) {
	if ownerID == "" {
		return s.keys.List(ctx)
	}
	return s.keys.ListByOwner(ctx, ownerID)
}

// Get returns a key by ID.
func (s *KeyService) Get(ctx context.Context, id string) (key.Key, error) {
	return s.keys.GetByID(ctx, id)
}

// Usage returns the current window counts of a key.
func (s *KeyService) Usage(ctx context.Context, id string, now time.Time) (ratelimit.Counts, error) {
	if s.ledger == nil {
		return ratelimit.Counts{}, ErrNoLedger
	}
	if _, err := s.keys.GetByID(ctx, id); err != nil {
		return ratelimit.Counts{}, err
	}
	return s.ledger.Counts(ctx, id, now)
}

// ResetLimits clears every rate limit window of a key.
func (s *KeyService) ResetLimits(ctx context.Context, id string) error {
	if s.ledger == nil {
		return ErrNoLedger
	}
	if _, err := s.keys.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.ledger.Reset(ctx, id); err != nil {
		return fmt.Errorf("reset limits: %w", err)
	}
	s.logger.Info().Str("key_id", id).Msg("rate limits reset")
	return nil
}
