package ratelimit

import "github.com/artpar/xbrlgate/domain/key"

// Tiers maps each tier to its limits.
type Tiers map[key.Tier]Limits

// DefaultTiers returns the built-in tier table.
func DefaultTiers() Tiers {
	return Tiers{
		key.TierFree:       {Hour: 100, Day: 1_000, Month: 10_000},
		key.TierBasic:      {Hour: 500, Day: 5_000, Month: 50_000},
		key.TierPro:        {Hour: 2_000, Day: 20_000, Month: 200_000},
		key.TierEnterprise: {Hour: 10_000, Day: 100_000, Month: 1_000_000},
	}
}

// Resolve returns the effective limits of k.
// Unknown tiers fall back to the free tier; per-key overrides win when set.
// This is a PURE function.
func (t Tiers) Resolve(k key.Key) Limits {
	limits, ok := t[k.Tier]
	if !ok {
		limits = t[key.TierFree]
	}
	if k.HourlyLimit > 0 {
		limits.Hour = k.HourlyLimit
	}
	if k.DailyLimit > 0 {
		limits.Day = k.DailyLimit
	}
	if k.MonthlyLimit > 0 {
		limits.Month = k.MonthlyLimit
	}
	return limits
}

// Merge overlays non-zero fields of other onto t and returns a new table.
func (t Tiers) Merge(other Tiers) Tiers {
	out := make(Tiers, len(t))
	for tier, l := range t {
		out[tier] = l
	}
	for tier, l := range other {
		base := out[tier]
		if l.Hour != 0 {
			base.Hour = l.Hour
		}
		if l.Day != 0 {
			base.Day = l.Day
		}
		if l.Month != 0 {
			base.Month = l.Month
		}
		out[tier] = base
	}
	return out
}
