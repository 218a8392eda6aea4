// Package usage provides usage record types and aggregation functions.
// All functions are pure - no side effects.
package usage

import "time"

// Record is one processed request (immutable, append-only).
type Record struct {
	APIKeyID   string
	OwnerID    string
	Endpoint   string
	Method     string
	StatusCode int
	LatencyMs  int64
	Timestamp  time.Time
	CallerIP   string
	UserAgent  string

	// Reason is the deny reason, empty when the request was allowed.
	Reason string
}

// IsError reports whether the response was a 4xx or 5xx.
func (r Record) IsError() bool {
	return r.StatusCode >= 400
}
