package usage

import (
	"sort"
	"time"
)

// Summary represents aggregated usage for a period (value type).
type Summary struct {
	APIKeyID     string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	RequestCount int64
	SuccessCount int64 // 2xx and 3xx
	ClientErrors int64 // 4xx
	ServerErrors int64 // 5xx
	RateLimited  int64 // 429
	AvgLatencyMs int64
	Endpoints    []EndpointCount // sorted by count, descending
}

// EndpointCount is the number of requests to one endpoint.
type EndpointCount struct {
	Endpoint string
	Count    int64
}

// Aggregate summarizes the records that fall in [periodStart, periodEnd).
// This is a PURE function.
func Aggregate(records []Record, periodStart, periodEnd time.Time) Summary {
	s := Summary{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}

	var totalLatency int64
	byEndpoint := make(map[string]int64)
	for _, r := range records {
		if r.Timestamp.Before(periodStart) || !r.Timestamp.Before(periodEnd) {
			continue
		}
		if s.APIKeyID == "" {
			s.APIKeyID = r.APIKeyID
		}

		s.RequestCount++
		totalLatency += r.LatencyMs
		byEndpoint[r.Endpoint]++

		switch {
		case r.StatusCode >= 500:
			s.ServerErrors++
		case r.StatusCode >= 400:
			s.ClientErrors++
			if r.StatusCode == 429 {
				s.RateLimited++
			}
		default:
			s.SuccessCount++
		}
	}

	if s.RequestCount > 0 {
		s.AvgLatencyMs = totalLatency / s.RequestCount
	}
	s.Endpoints = sortEndpoints(byEndpoint)
	return s
}

// ErrorRate returns the share of 4xx and 5xx responses in [0, 1].
func (s Summary) ErrorRate() float64 {
	if s.RequestCount == 0 {
		return 0
	}
	return float64(s.ClientErrors+s.ServerErrors) / float64(s.RequestCount)
}

func sortEndpoints(m map[string]int64) []EndpointCount {
	out := make([]EndpointCount, 0, len(m))
	for ep, n := range m {
		out = append(out, EndpointCount{Endpoint: ep, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	return out
}
