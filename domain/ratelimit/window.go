// Package ratelimit provides pure fixed-window rate limiting algorithms.
// All functions are deterministic - same input always produces same output.
//
// Windows are aligned to UTC boundaries (top of the hour, midnight, first of
// the month). A burst straddling a boundary can see up to twice a window's
// limit.
package ratelimit

import (
	"fmt"
	"time"
)

// Window is a counting granularity.
type Window int

// Windows in ascending strictness order. The zero value means no window.
const (
	Hour Window = iota + 1
	Day
	Month
)

// Windows lists every granularity in evaluation order.
var Windows = []Window{Hour, Day, Month}

// String returns the window name.
func (w Window) String() string {
	switch w {
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Month:
		return "month"
	default:
		return "none"
	}
}

// Start returns the beginning of the window containing now.
// This is a PURE function.
func (w Window) Start(now time.Time) time.Time {
	now = now.UTC()
	switch w {
	case Hour:
		return now.Truncate(time.Hour)
	case Day:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case Month:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}
	}
}

// End returns the start of the window following the one containing now.
// This is a PURE function.
func (w Window) End(now time.Time) time.Time {
	start := w.Start(now)
	switch w {
	case Hour:
		return start.Add(time.Hour)
	case Day:
		return start.AddDate(0, 0, 1)
	case Month:
		return start.AddDate(0, 1, 0)
	default:
		return time.Time{}
	}
}

// CounterID names the counter of keyID for the window containing now.
// Keying on the window start makes rollover a fresh counter.
func CounterID(keyID string, w Window, now time.Time) string {
	return fmt.Sprintf("%s:%s:%d", keyID, w, w.Start(now).Unix())
}

// Limits holds the ceilings for each window (value type).
// A value of zero or less disables that window.
type Limits struct {
	Hour  int `yaml:"hourly"`
	Day   int `yaml:"daily"`
	Month int `yaml:"monthly"`
}

// For returns the limit of a window.
func (l Limits) For(w Window) int {
	switch w {
	case Hour:
		return l.Hour
	case Day:
		return l.Day
	case Month:
		return l.Month
	default:
		return 0
	}
}

// Counts holds the current count of each window (value type).
type Counts struct {
	Hour  int
	Day   int
	Month int
}

// For returns the count of a window.
func (c Counts) For(w Window) int {
	switch w {
	case Hour:
		return c.Hour
	case Day:
		return c.Day
	case Month:
		return c.Month
	default:
		return 0
	}
}

// Set stores the count of a window.
func (c *Counts) Set(w Window, n int) {
	switch w {
	case Hour:
		c.Hour = n
	case Day:
		c.Day = n
	case Month:
		c.Month = n
	}
}

// Incr returns the counts after one consumed request.
func (c Counts) Incr() Counts {
	return Counts{Hour: c.Hour + 1, Day: c.Day + 1, Month: c.Month + 1}
}

// Unlimited is the Remaining value when no window has a limit.
const Unlimited = -1

// Result represents the outcome of a try-consume (value type).
type Result struct {
	Allowed bool

	// Most restrictive window on allow. Remaining is counted after the increment.
	Remaining int
	Limit     int
	ResetAt   time.Time

	// Populated only when Allowed=false.
	Violated   Window
	RetryAfter time.Time
}

// Evaluate decides a try-consume against the current counts.
// This is a PURE function - the caller increments every window only when Allowed.
//
// Windows are checked in strictness order; the first one at or over its limit
// denies, with RetryAfter at that window's end.
func Evaluate(counts Counts, limits Limits, now time.Time) Result {
	for _, w := range Windows {
		limit := limits.For(w)
		if limit <= 0 {
			continue
		}
		if counts.For(w) >= limit {
			end := w.End(now)
			return Result{
				Allowed:    false,
				Remaining:  0,
				Limit:      limit,
				ResetAt:    end,
				Violated:   w,
				RetryAfter: end,
			}
		}
	}

	result := Result{Allowed: true, Remaining: Unlimited}
	bestRatio := 2.0
	for _, w := range Windows {
		limit := limits.For(w)
		if limit <= 0 {
			continue
		}
		remaining := limit - (counts.For(w) + 1)
		ratio := float64(remaining) / float64(limit)
		if ratio < bestRatio {
			bestRatio = ratio
			result.Remaining = remaining
			result.Limit = limit
			result.ResetAt = w.End(now)
		}
	}
	return result
}

// CalculateDelay returns how long to wait before retrying.
// This is a PURE function.
func CalculateDelay(result Result, now time.Time) time.Duration {
	if result.Allowed {
		return 0
	}
	delay := result.RetryAfter.Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}
