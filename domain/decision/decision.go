// Package decision provides the authorization Decision value type.
// A Decision is the only thing route handlers see from the authorizer.
package decision

import (
	"math"
	"net/http"
	"time"

	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/domain/ratelimit"
)

// Outcome is allow or deny. The zero value denies.
type Outcome int

const (
	Deny Outcome = iota
	Allow
)

// String returns the outcome name.
func (o Outcome) String() string {
	if o == Allow {
		return "allow"
	}
	return "deny"
}

// Reason explains a Decision.
type Reason string

// Decision reasons.
const (
	ReasonNone           Reason = "none"
	ReasonKeyMissing     Reason = "key_missing"
	ReasonKeyInvalid     Reason = "key_invalid"
	ReasonKeyRevoked     Reason = "key_revoked"
	ReasonKeyExpired     Reason = "key_expired"
	ReasonRateLimitHour  Reason = "rate_limit_hour"
	ReasonRateLimitDay   Reason = "rate_limit_day"
	ReasonRateLimitMonth Reason = "rate_limit_month"
)

// IsRateLimit reports whether r is a quota denial.
func (r Reason) IsRateLimit() bool {
	return r == ReasonRateLimitHour || r == ReasonRateLimitDay || r == ReasonRateLimitMonth
}

// ForWindow returns the rate-limit reason of a violated window.
func ForWindow(w ratelimit.Window) Reason {
	switch w {
	case ratelimit.Hour:
		return ReasonRateLimitHour
	case ratelimit.Day:
		return ReasonRateLimitDay
	case ratelimit.Month:
		return ReasonRateLimitMonth
	default:
		return ReasonKeyInvalid
	}
}

// Decision is the result of authorizing one request (value type, not persisted).
type Decision struct {
	Outcome Outcome
	Reason  Reason

	// Quota of the most restrictive window. Meaningful on Allow only.
	Remaining int
	Limit     int
	ResetAt   time.Time

	// Set on rate-limit denials only.
	RetryAfter time.Time

	// Identity of the caller. Empty when the key was not resolved.
	KeyID   string
	OwnerID string
	Tier    key.Tier
}

// Denied returns a deny Decision with the given reason.
func Denied(reason Reason) Decision {
	return Decision{Outcome: Deny, Reason: reason}
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

// HTTPStatus maps the decision to a response status.
func (d Decision) HTTPStatus() int {
	switch {
	case d.Outcome == Allow:
		return http.StatusOK
	case d.Reason.IsRateLimit():
		return http.StatusTooManyRequests
	default:
		return http.StatusUnauthorized
	}
}

// Code returns the stable wire error code for a denial.
func (d Decision) Code() string {
	switch d.Reason {
	case ReasonKeyMissing:
		return "missing_api_key"
	case ReasonKeyRevoked:
		return "revoked_api_key"
	case ReasonKeyExpired:
		return "expired_api_key"
	case ReasonRateLimitHour, ReasonRateLimitDay, ReasonRateLimitMonth:
		return "rate_limit_exceeded"
	case ReasonNone:
		return ""
	default:
		return "invalid_api_key"
	}
}

// Message returns a human readable explanation of a denial.
func (d Decision) Message() string {
	switch d.Reason {
	case ReasonKeyMissing:
		return "An API key is required"
	case ReasonKeyRevoked:
		return "The API key has been revoked"
	case ReasonKeyExpired:
		return "The API key has expired"
	case ReasonRateLimitHour:
		return "Hourly rate limit exceeded"
	case ReasonRateLimitDay:
		return "Daily rate limit exceeded"
	case ReasonRateLimitMonth:
		return "Monthly rate limit exceeded"
	case ReasonNone:
		return ""
	default:
		return "The provided API key is invalid"
	}
}

// RetryAfterSeconds returns whole seconds until RetryAfter, rounded up, at least 1.
// Returns 0 when the decision carries no retry instant.
func (d Decision) RetryAfterSeconds(now time.Time) int {
	if d.RetryAfter.IsZero() {
		return 0
	}
	delay := ratelimit.CalculateDelay(ratelimit.Result{RetryAfter: d.RetryAfter}, now)
	secs := int(math.Ceil(delay.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
