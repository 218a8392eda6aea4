package clock_test

import (
	"testing"
	"time"

	"github.com/artpar/xbrlgate/adapters/clock"
)

func TestReal_Now(t *testing.T) {
	c := clock.Real{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", got, before, after)
	}
	if got.Location() != time.UTC {
		t.Errorf("Now() location = %v, want UTC", got.Location())
	}
}

func TestFake(t *testing.T) {
	start := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(90 * time.Minute)
	if want := start.Add(90 * time.Minute); !c.Now().Equal(want) {
		t.Errorf("after Advance, Now() = %v, want %v", c.Now(), want)
	}

	jst := time.FixedZone("JST", 9*60*60)
	c.Set(time.Date(2024, 2, 1, 9, 0, 0, 0, jst))
	if c.Now().Location() != time.UTC {
		t.Errorf("Set should normalize to UTC, got %v", c.Now().Location())
	}
	if c.Now().Hour() != 0 {
		t.Errorf("Hour = %d, want 0 UTC", c.Now().Hour())
	}
}
