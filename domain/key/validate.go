package key

import (
	"strings"
	"time"
)

// Validate checks if a key may authorize at the given time.
// This is a PURE function - no side effects, deterministic.
func Validate(k Key, now time.Time) ValidationResult {
	// Revocation wins over everything else
	if k.Status == StatusRevoked {
		return ValidationResult{Reason: ReasonRevoked}
	}

	if k.Status == StatusExpired {
		return ValidationResult{Reason: ReasonExpired}
	}

	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return ValidationResult{
			Reason:      ReasonExpired,
			MarkExpired: true,
		}
	}

	return ValidationResult{Valid: true}
}

// ValidateFormat reports whether a raw key has the shape of an issued key.
// It is used for diagnostics only: unknown and malformed keys share one deny reason.
// This is a PURE function.
func ValidateFormat(rawKey string) bool {
	if !strings.HasPrefix(rawKey, LivePrefix) {
		return false
	}
	secret := rawKey[len(LivePrefix):]
	if len(secret) != SecretLength {
		return false
	}
	for i := 0; i < len(secret); i++ {
		if strings.IndexByte(base62, secret[i]) < 0 {
			return false
		}
	}
	return true
}

// IsActive reports whether a key counts toward the per-owner active key limit.
func IsActive(k Key, now time.Time) bool {
	return Validate(k, now).Valid
}
