// Package key provides API key value types and pure validation functions.
// This package has NO dependencies on I/O or external packages.
package key

import (
	"fmt"
	"time"
)

// LivePrefix starts every plaintext API key.
const LivePrefix = "xbrl_live_"

// Plaintext layout: LivePrefix + SecretLength base62 characters.
const (
	SecretLength  = 32
	DisplayLength = len(LivePrefix) + 6
)

// Tier is a named service level that selects rate-limit thresholds.
type Tier string

// Tiers, in ascending order of allowance.
const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// AllTiers lists every valid tier.
var AllTiers = []Tier{TierFree, TierBasic, TierPro, TierEnterprise}

// ParseTier converts a string into a Tier.
func ParseTier(s string) (Tier, error) {
	for _, t := range AllTiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Status is the lifecycle state of a key.
type Status string

// Key statuses. Revoked is terminal.
const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// ParseStatus converts a stored string into a Status.
// Unknown values are treated as revoked so they can never authorize.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusActive, StatusExpired:
		return Status(s)
	default:
		return StatusRevoked
	}
}

// Key represents an API key (immutable value type).
type Key struct {
	ID        string
	OwnerID   string
	Hash      string // hex HMAC-SHA256 of the plaintext
	Prefix    string // first DisplayLength chars, safe to show
	Name      string
	Tier      Tier
	Status    Status
	ExpiresAt *time.Time // nil = never expires
	CreatedAt time.Time
	LastUsed  *time.Time

	TotalRequests int64

	// Per-key overrides of the tier limits. Zero keeps the tier value.
	HourlyLimit  int
	DailyLimit   int
	MonthlyLimit int
}

// ValidationResult represents the outcome of key validation (value type).
type ValidationResult struct {
	Valid  bool
	Reason string // Populated only if Valid=false

	// MarkExpired is set when the key is past its expiry but still stored as active.
	MarkExpired bool
}

// Reasons for validation failure.
const (
	ReasonValid   = ""
	ReasonExpired = "key_expired"
	ReasonRevoked = "key_revoked"
)

// Source draws random base62 strings. ports.Random satisfies it.
type Source interface {
	String(n int) (string, error)
}

// CreateParams contains parameters for creating a new key.
type CreateParams struct {
	ID        string
	OwnerID   string
	Name      string
	Tier      Tier
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Generate creates a new plaintext key from src.
// The caller hashes the plaintext and stores only the hash.
func Generate(src Source) (string, error) {
	secret, err := src.String(SecretLength)
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return LivePrefix + secret, nil
}

// New builds the stored Key for a freshly generated plaintext.
func New(plaintext, hash string, p CreateParams) Key {
	tier := p.Tier
	if tier == "" {
		tier = TierFree
	}
	name := p.Name
	if name == "" {
		name = "Default"
	}
	return Key{
		ID:        p.ID,
		OwnerID:   p.OwnerID,
		Hash:      hash,
		Prefix:    DisplayPrefix(plaintext),
		Name:      name,
		Tier:      tier,
		Status:    StatusActive,
		ExpiresAt: p.ExpiresAt,
		CreatedAt: p.CreatedAt,
	}
}

// DisplayPrefix returns the non-secret leading fragment of a plaintext key.
func DisplayPrefix(plaintext string) string {
	if len(plaintext) <= DisplayLength {
		return plaintext
	}
	return plaintext[:DisplayLength]
}

// base62 is the alphabet of the secret part.
const base62 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
