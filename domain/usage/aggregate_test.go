package usage_test

import (
	"testing"
	"time"

	"github.com/artpar/xbrlgate/domain/usage"
)

var (
	periodStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	inPeriod    = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
)

func TestAggregate(t *testing.T) {
	records := []usage.Record{
		{APIKeyID: "k1", Endpoint: "/api/v1/companies", StatusCode: 200, LatencyMs: 100, Timestamp: inPeriod},
		{APIKeyID: "k1", Endpoint: "/api/v1/companies", StatusCode: 200, LatencyMs: 200, Timestamp: inPeriod},
		{APIKeyID: "k1", Endpoint: "/api/v1/filings", StatusCode: 429, LatencyMs: 5, Timestamp: inPeriod},
		{APIKeyID: "k1", Endpoint: "/api/v1/filings", StatusCode: 500, LatencyMs: 55, Timestamp: inPeriod},
	}

	summary := usage.Aggregate(records, periodStart, periodEnd)

	if summary.RequestCount != 4 {
		t.Errorf("RequestCount = %d, want 4", summary.RequestCount)
	}
	if summary.SuccessCount != 2 {
		t.Errorf("SuccessCount = %d, want 2", summary.SuccessCount)
	}
	if summary.ClientErrors != 1 || summary.RateLimited != 1 {
		t.Errorf("ClientErrors = %d, RateLimited = %d, want 1 and 1", summary.ClientErrors, summary.RateLimited)
	}
	if summary.ServerErrors != 1 {
		t.Errorf("ServerErrors = %d, want 1", summary.ServerErrors)
	}
	if summary.AvgLatencyMs != 90 { // (100+200+5+55)/4
		t.Errorf("AvgLatencyMs = %d, want 90", summary.AvgLatencyMs)
	}
	if summary.ErrorRate() != 0.5 {
		t.Errorf("ErrorRate = %f, want 0.5", summary.ErrorRate())
	}
	if summary.APIKeyID != "k1" {
		t.Errorf("APIKeyID = %q, want k1", summary.APIKeyID)
	}
}

func TestAggregate_EndpointsSorted(t *testing.T) {
	records := []usage.Record{
		{Endpoint: "/b", Timestamp: inPeriod},
		{Endpoint: "/a", Timestamp: inPeriod},
		{Endpoint: "/c", Timestamp: inPeriod},
		{Endpoint: "/c", Timestamp: inPeriod},
	}

	summary := usage.Aggregate(records, periodStart, periodEnd)

	want := []string{"/c", "/a", "/b"}
	if len(summary.Endpoints) != len(want) {
		t.Fatalf("len(Endpoints) = %d, want %d", len(summary.Endpoints), len(want))
	}
	for i, ep := range want {
		if summary.Endpoints[i].Endpoint != ep {
			t.Errorf("Endpoints[%d] = %s, want %s", i, summary.Endpoints[i].Endpoint, ep)
		}
	}
	if summary.Endpoints[0].Count != 2 {
		t.Errorf("top count = %d, want 2", summary.Endpoints[0].Count)
	}
}

func TestAggregate_FiltersPeriod(t *testing.T) {
	records := []usage.Record{
		{StatusCode: 200, Timestamp: periodStart.Add(-time.Second)},
		{StatusCode: 200, Timestamp: periodStart},
		{StatusCode: 200, Timestamp: periodEnd},
	}

	summary := usage.Aggregate(records, periodStart, periodEnd)

	if summary.RequestCount != 1 {
		t.Errorf("RequestCount = %d, want 1 (start inclusive, end exclusive)", summary.RequestCount)
	}
}

func TestAggregate_Empty(t *testing.T) {
	summary := usage.Aggregate(nil, periodStart, periodEnd)

	if summary.RequestCount != 0 {
		t.Errorf("RequestCount = %d, want 0", summary.RequestCount)
	}
	if summary.ErrorRate() != 0 {
		t.Errorf("ErrorRate = %f, want 0", summary.ErrorRate())
	}
	if !summary.PeriodStart.Equal(periodStart) {
		t.Errorf("PeriodStart = %v, want %v", summary.PeriodStart, periodStart)
	}
}
