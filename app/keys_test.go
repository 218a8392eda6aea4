package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artpar/xbrlgate/adapters/clock"
	"github.com/artpar/xbrlgate/adapters/hasher"
	"github.com/artpar/xbrlgate/adapters/idgen"
	"github.com/artpar/xbrlgate/adapters/memory"
	"github.com/artpar/xbrlgate/adapters/random"
	"github.com/artpar/xbrlgate/app"
	"github.com/artpar/xbrlgate/domain/decision"
	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/domain/ratelimit"
	"github.com/artpar/xbrlgate/ports"
	"github.com/rs/zerolog"
)

type keyFixture struct {
	svc    *app.KeyService
	keys   *memory.KeyStore
	ledger *memory.Ledger
	clock  *clock.Fake
	hasher *hasher.HMAC
}

func newKeyFixture(t *testing.T, cfg app.KeyServiceConfig) *keyFixture {
	t.Helper()
	h, err := hasher.NewHMAC(testPepper)
	if err != nil {
		t.Fatalf("NewHMAC: %v", err)
	}
	keys := memory.NewKeyStore()
	clk := clock.NewFake(baseTime)
	ledger := memory.NewLedger(memory.LedgerConfig{CleanupInterval: time.Hour, Clock: clk})
	t.Cleanup(func() { ledger.Close() })

	svc := app.NewKeyService(app.KeyServiceDeps{
		Keys:   keys,
		Ledger: ledger,
		Hasher: h,
		Random: random.NewFake(),
		IDGen:  idgen.NewSequential("key-"),
		Clock:  clk,
		Logger: zerolog.Nop(),
	}, cfg)

	return &keyFixture{svc: svc, keys: keys, ledger: ledger, clock: clk, hasher: h}
}

func TestKeyService_Issue(t *testing.T) {
	f := newKeyFixture(t, app.KeyServiceConfig{})
	ctx := context.Background()

	plaintext, k, err := f.svc.Issue(ctx, app.IssueParams{OwnerID: "user-1", Name: "ci", Tier: "pro"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if !key.ValidateFormat(plaintext) {
		t.Errorf("plaintext %q is not a well-formed key", plaintext)
	}
	if k.Hash != f.hasher.Hash(plaintext) {
		t.Error("stored hash does not match plaintext")
	}
	if k.Hash == plaintext {
		t.Error("plaintext stored as hash")
	}
	if k.ID != "key-1" || k.OwnerID != "user-1" || k.Name != "ci" {
		t.Errorf("key = %+v", k)
	}
	if k.Tier != key.TierPro || k.Status != key.StatusActive {
		t.Errorf("tier/status = %s/%s", k.Tier, k.Status)
	}
	if k.Prefix != plaintext[:key.DisplayLength] {
		t.Errorf("prefix = %q", k.Prefix)
	}
	if k.ExpiresAt == nil || !k.ExpiresAt.Equal(baseTime.Add(365*24*time.Hour)) {
		t.Errorf("expiresAt = %v, want one year out", k.ExpiresAt)
	}

	got, err := f.keys.FindByHash(ctx, f.hasher.Hash(plaintext))
	if err != nil || got.ID != k.ID {
		t.Errorf("FindByHash = %v, %v", got.ID, err)
	}
}

func TestKeyService_IssueExpiry(t *testing.T) {
	f := newKeyFixture(t, app.KeyServiceConfig{DefaultExpiry: 30 * 24 * time.Hour, MaxActiveKeys: 10})
	ctx := context.Background()

	_, def, _ := f.svc.Issue(ctx, app.IssueParams{OwnerID: "u"})
	if def.ExpiresAt == nil || !def.ExpiresAt.Equal(baseTime.Add(30*24*time.Hour)) {
		t.Errorf("default expiresAt = %v", def.ExpiresAt)
	}

	_, custom, _ := f.svc.Issue(ctx, app.IssueParams{OwnerID: "u", ExpiresIn: time.Hour})
	if custom.ExpiresAt == nil || !custom.ExpiresAt.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("custom expiresAt = %v", custom.ExpiresAt)
	}

	_, never, _ := f.svc.Issue(ctx, app.IssueParams{OwnerID: "u", ExpiresIn: -1})
	if never.ExpiresAt != nil {
		t.Errorf("never expiresAt = %v, want nil", never.ExpiresAt)
	}
	if never.Tier != key.TierFree || never.Name != "Default" {
		t.Errorf("defaults = %s/%s", never.Tier, never.Name)
	}
}

func TestKeyService_IssueValidation(t *testing.T) {
	f := newKeyFixture(t, app.KeyServiceConfig{})
	ctx := context.Background()

	if _, _, err := f.svc.Issue(ctx, app.IssueParams{}); !errors.Is(err, app.ErrOwnerRequired) {
		t.Errorf("err = %v, want ErrOwnerRequired", err)
	}
	if _, _, err := f.svc.Issue(ctx, app.IssueParams{OwnerID: "u", Tier: "gold"}); !errors.Is(err, app.ErrInvalidTier) {
		t.Errorf("err = %v, want ErrInvalidTier", err)
	}
}

func TestKeyService_ActiveKeyLimit(t *testing.T) {
	f := newKeyFixture(t, app.KeyServiceConfig{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		_, k, err := f.svc.Issue(ctx, app.IssueParams{OwnerID: "user-1"})
		if err != nil {
			t.Fatalf("Issue %d: %v", i, err)
		}
		ids = append(ids, k.ID)
	}

	if _, _, err := f.svc.Issue(ctx, app.IssueParams{OwnerID: "user-1"}); !errors.Is(err, app.ErrTooManyKeys) {
		t.Fatalf("err = %v, want ErrTooManyKeys", err)
	}

	// Other owners are unaffected.
	if _, _, err := f.svc.Issue(ctx, app.IssueParams{OwnerID: "user-2"}); err != nil {
		t.Errorf("other owner: %v", err)
	}

	// Revoking frees a slot.
	if err := f.svc.Revoke(ctx, ids[0]); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, _, err := f.svc.Issue(ctx, app.IssueParams{OwnerID: "user-1"}); err != nil {
		t.Errorf("Issue after revoke: %v", err)
	}
}

func TestKeyService_ActiveKeyLimitConcurrent(t *testing.T) {
	f := newKeyFixture(t, app.KeyServiceConfig{MaxActiveKeys: 2})
	ctx := context.Background()

	var wg sync.WaitGroup
	var issued, rejected atomic.Int64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.Issue(ctx, app.IssueParams{OwnerID: "user-1"})
			switch {
			case err == nil:
				issued.Add(1)
			case errors.Is(err, app.ErrTooManyKeys):
				rejected.Add(1)
			default:
				t.Errorf("Issue: %v", err)
			}
		}()
	}
	wg.Wait()

	if issued.Load() != 2 || rejected.Load() != 8 {
		t.Errorf("issued = %d, rejected = %d, want 2 and 8", issued.Load(), rejected.Load())
	}
	keys, _ := f.keys.ListByOwner(ctx, "user-1")
	if len(keys) != 2 {
		t.Errorf("stored keys = %d, want 2", len(keys))
	}
}

func TestKeyService_ExpiredKeysDoNotCount(t *testing.T) {
	f := newKeyFixture(t, app.KeyServiceConfig{MaxActiveKeys: 1})
	ctx := context.Background()

	if _, _, err := f.svc.Issue(ctx, app.IssueParams{OwnerID: "u", ExpiresIn: time.Hour}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	f.clock.Advance(2 * time.Hour)
	if _, _, err := f.svc.Issue(ctx, app.IssueParams{OwnerID: "u"}); err != nil {
		t.Errorf("expired key still counted: %v", err)
	}
}

func TestKeyService_Revoke(t *testing.T) {
	f := newKeyFixture(t, app.KeyServiceConfig{})
	ctx := context.Background()

	_, k, _ := f.svc.Issue(ctx, app.IssueParams{OwnerID: "user-1"})

	if err := f.svc.Revoke(ctx, k.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	got, _ := f.svc.Get(ctx, k.ID)
	if got.Status != key.StatusRevoked {
		t.Errorf("status = %s, want revoked", got.Status)
	}

	if err := f.svc.Revoke(ctx, k.ID); !errors.Is(err, app.ErrAlreadyRevoked) {
		t.Errorf("second Revoke = %v, want ErrAlreadyRevoked", err)
	}
	if err := f.svc.Revoke(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Revoke missing = %v, want ErrNotFound", err)
	}
}

func TestKeyService_List(t *testing.T) {
	f := newKeyFixture(t, app.KeyServiceConfig{})
	ctx := context.Background()

	f.svc.Issue(ctx, app.IssueParams{OwnerID: "user-1"})
	f.clock.Advance(time.Minute)
	f.svc.Issue(ctx, app.IssueParams{OwnerID: "user-1"})
	f.svc.Issue(ctx, app.IssueParams{OwnerID: "user-2"})

	own, err := f.svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(own) != 2 {
		t.Fatalf("user-1 keys = %d, want 2", len(own))
	}
	if own[0].ID != "key-2" {
		t.Errorf("first key = %s, want newest key-2", own[0].ID)
	}

	all, _ := f.svc.List(ctx, "")
	if len(all) != 3 {
		t.Errorf("all keys = %d, want 3", len(all))
	}
}

func TestKeyService_IssuedKeyAuthorizes(t *testing.T) {
	f := newKeyFixture(t, app.KeyServiceConfig{})
	ctx := context.Background()
	ledger := memory.NewLedger(memory.LedgerConfig{CleanupInterval: time.Hour})
	defer ledger.Close()

	auth := app.NewAuthorizer(app.AuthorizerDeps{
		Keys:   f.keys,
		Hasher: f.hasher,
		Ledger: ledger,
		Logger: zerolog.Nop(),
	}, app.AuthorizerConfig{})

	plaintext, k, _ := f.svc.Issue(ctx, app.IssueParams{OwnerID: "user-1", Tier: "basic"})

	d := auth.Authorize(ctx, plaintext, "/x", f.clock.Now())
	auth.Wait()
	if !d.Allowed() || d.Limit != 500 {
		t.Fatalf("got %s limit %d, want allow at basic limit 500", d.Reason, d.Limit)
	}

	f.svc.Revoke(ctx, k.ID)
	if d := auth.Authorize(ctx, plaintext, "/x", f.clock.Now()); d.Reason != decision.ReasonKeyRevoked {
		t.Errorf("reason = %s, want key_revoked", d.Reason)
	}
}

func TestKeyService_ResetLimits(t *testing.T) {
	f := newKeyFixture(t, app.KeyServiceConfig{})
	ctx := context.Background()

	_, k, _ := f.svc.Issue(ctx, app.IssueParams{OwnerID: "user-1"})
	for i := 0; i < 3; i++ {
		if _, err := f.ledger.TryConsume(ctx, k.ID, ratelimit.Limits{Hour: 10}, f.clock.Now()); err != nil {
			t.Fatalf("TryConsume: %v", err)
		}
	}

	counts, err := f.svc.Usage(ctx, k.ID, f.clock.Now())
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if counts.Hour != 3 {
		t.Fatalf("hour count = %d, want 3", counts.Hour)
	}

	if err := f.svc.ResetLimits(ctx, k.ID); err != nil {
		t.Fatalf("ResetLimits: %v", err)
	}
	counts, _ = f.svc.Usage(ctx, k.ID, f.clock.Now())
	if counts != (ratelimit.Counts{}) {
		t.Errorf("counts after reset = %+v", counts)
	}

	if err := f.svc.ResetLimits(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("ResetLimits missing = %v, want ErrNotFound", err)
	}
}
