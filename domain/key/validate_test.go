package key_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/artpar/xbrlgate/adapters/random"
	"github.com/artpar/xbrlgate/domain/key"
)

// Test fixtures
var (
	baseTime   = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	pastTime   = baseTime.Add(-24 * time.Hour)
	futureTime = baseTime.Add(24 * time.Hour)
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name            string
		key             key.Key
		now             time.Time
		wantValid       bool
		wantReason      string
		wantMarkExpired bool
	}{
		{
			name:      "valid key",
			key:       key.Key{ID: "key-1", OwnerID: "user-1", Status: key.StatusActive, CreatedAt: pastTime},
			now:       baseTime,
			wantValid: true,
		},
		{
			name: "valid key with future expiry",
			key: key.Key{
				ID:        "key-2",
				OwnerID:   "user-1",
				Status:    key.StatusActive,
				ExpiresAt: &futureTime,
				CreatedAt: pastTime,
			},
			now:       baseTime,
			wantValid: true,
		},
		{
			name: "expired key still stored as active",
			key: key.Key{
				ID:        "key-3",
				OwnerID:   "user-1",
				Status:    key.StatusActive,
				ExpiresAt: &pastTime,
			},
			now:             baseTime,
			wantReason:      key.ReasonExpired,
			wantMarkExpired: true,
		},
		{
			name:       "expired status without expiry instant",
			key:        key.Key{ID: "key-4", Status: key.StatusExpired},
			now:        baseTime,
			wantReason: key.ReasonExpired,
		},
		{
			name:       "revoked key",
			key:        key.Key{ID: "key-5", Status: key.StatusRevoked, ExpiresAt: &futureTime},
			now:        baseTime,
			wantReason: key.ReasonRevoked,
		},
		{
			name:       "revoked takes precedence over expired",
			key:        key.Key{ID: "key-6", Status: key.StatusRevoked, ExpiresAt: &pastTime},
			now:        baseTime,
			wantReason: key.ReasonRevoked,
		},
		{
			name:      "expiry instant itself is still valid",
			key:       key.Key{ID: "key-7", Status: key.StatusActive, ExpiresAt: &baseTime},
			now:       baseTime,
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := key.Validate(tt.key, tt.now)

			if result.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", result.Valid, tt.wantValid)
			}
			if result.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", result.Reason, tt.wantReason)
			}
			if result.MarkExpired != tt.wantMarkExpired {
				t.Errorf("MarkExpired = %v, want %v", result.MarkExpired, tt.wantMarkExpired)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	raw, err := key.Generate(random.Real{})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	if !strings.HasPrefix(raw, key.LivePrefix) {
		t.Errorf("raw key %q does not start with %q", raw, key.LivePrefix)
	}
	if len(raw) != len(key.LivePrefix)+key.SecretLength {
		t.Errorf("len(raw) = %d, want %d", len(raw), len(key.LivePrefix)+key.SecretLength)
	}
	if !key.ValidateFormat(raw) {
		t.Errorf("generated key %q fails ValidateFormat", raw)
	}
}

func TestGenerate_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		raw, err := key.Generate(random.Real{})
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		if seen[raw] {
			t.Fatalf("duplicate key generated: %s", raw)
		}
		seen[raw] = true
	}
}

func TestGenerate_DeterministicSource(t *testing.T) {
	a, err := key.Generate(random.NewFake())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	b, err := key.Generate(random.NewFake())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if a != b {
		t.Errorf("same fake source produced %q and %q", a, b)
	}
}

type failingSource struct{}

func (failingSource) String(n int) (string, error) { return "", errors.New("entropy exhausted") }

func TestGenerate_SourceError(t *testing.T) {
	if _, err := key.Generate(failingSource{}); err == nil {
		t.Fatal("Generate should fail when the source fails")
	}
}

func TestGenerate_UsesSourceString(t *testing.T) {
	want, _ := random.NewFake().String(key.SecretLength)
	raw, err := key.Generate(random.NewFake())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if raw != key.LivePrefix+want {
		t.Errorf("Generate = %q, want prefix + %q", raw, want)
	}
}

func TestNew(t *testing.T) {
	raw := key.LivePrefix + strings.Repeat("a", key.SecretLength)

	k := key.New(raw, "deadbeef", key.CreateParams{
		ID:        "key-1",
		OwnerID:   "user-1",
		CreatedAt: baseTime,
	})

	if k.Prefix != "xbrl_live_aaaaaa" {
		t.Errorf("Prefix = %q, want xbrl_live_aaaaaa", k.Prefix)
	}
	if k.Tier != key.TierFree {
		t.Errorf("Tier = %q, want free", k.Tier)
	}
	if k.Name != "Default" {
		t.Errorf("Name = %q, want Default", k.Name)
	}
	if k.Status != key.StatusActive {
		t.Errorf("Status = %q, want active", k.Status)
	}
	if strings.Contains(k.Prefix+k.Hash+k.Name, raw) {
		t.Error("stored key must not contain the plaintext")
	}
}

func TestValidateFormat(t *testing.T) {
	valid := key.LivePrefix + strings.Repeat("Ab9", 10) + "zz"

	tests := []struct {
		name   string
		rawKey string
		want   bool
	}{
		{"valid", valid, true},
		{"empty", "", false},
		{"wrong prefix", "xbrl_test_" + strings.Repeat("a", key.SecretLength), false},
		{"too short", key.LivePrefix + "abc", false},
		{"too long", valid + "a", false},
		{"non base62", key.LivePrefix + strings.Repeat("-", key.SecretLength), false},
		{"bogus from docs", "xbrl_bogus_123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := key.ValidateFormat(tt.rawKey); got != tt.want {
				t.Errorf("ValidateFormat(%q) = %v, want %v", tt.rawKey, got, tt.want)
			}
		})
	}
}

func TestParseTier(t *testing.T) {
	for _, tier := range key.AllTiers {
		got, err := key.ParseTier(string(tier))
		if err != nil {
			t.Errorf("ParseTier(%q) error: %v", tier, err)
		}
		if got != tier {
			t.Errorf("ParseTier(%q) = %q", tier, got)
		}
	}

	if _, err := key.ParseTier("platinum"); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]key.Status{
		"active":  key.StatusActive,
		"expired": key.StatusExpired,
		"revoked": key.StatusRevoked,
		"":        key.StatusRevoked,
		"weird":   key.StatusRevoked,
	}
	for in, want := range tests {
		if got := key.ParseStatus(in); got != want {
			t.Errorf("ParseStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
