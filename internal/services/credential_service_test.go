package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"number-lookup-api/internal/clock"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestCredentials(t *testing.T) (*CredentialService, *QuotaLedger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clk := clock.NewManualClock(time.Unix(1700000000, 0))
	return NewCredentialService(client, clk), NewQuotaLedger(client, clk, FailClosed), mr
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	svc, ledger, mr := newTestCredentials(t)

	cred, err := svc.Generate(ctx, "partner-a", 500, false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(cred.Key, "key_") {
		t.Errorf("key = %q, want key_ prefix", cred.Key)
	}
	if cred.Limit != 500 || cred.Unlimited || !cred.IsActive {
		t.Errorf("credential = %+v, want active limit=500", cred)
	}
	indexed, err := redis.NewClient(&redis.Options{Addr: mr.Addr()}).SIsMember(ctx, CredentialIndexKey, cred.Key).Result()
	if err != nil || !indexed {
		t.Errorf("generated key missing from index (indexed=%v, err=%v)", indexed, err)
	}

	// A freshly generated key is immediately usable by the ledger.
	d, err := ledger.CheckAndConsume(ctx, cred.Key)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Accepted || d.Used != 1 {
		t.Errorf("decision = %+v, want accepted used=1", d)
	}

	t.Run("unlimited zeroes the limit", func(t *testing.T) {
		cred, err := svc.Generate(ctx, "", 500, true)
		if err != nil {
			t.Fatal(err)
		}
		if cred.Limit != 0 || !cred.Unlimited || cred.Name != "Unknown" {
			t.Errorf("credential = %+v, want unlimited limit=0 name=Unknown", cred)
		}
	})

	t.Run("default limit", func(t *testing.T) {
		cred, err := svc.Generate(ctx, "x", 0, false)
		if err != nil {
			t.Fatal(err)
		}
		if cred.Limit != DefaultKeyLimit {
			t.Errorf("limit = %d, want %d", cred.Limit, DefaultKeyLimit)
		}
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestCredentials(t)

	cred, err := svc.Generate(ctx, "partner-b", 10, false)
	if err != nil {
		t.Fatal(err)
	}

	// Exhaust the budget, then reset it administratively: the ledger must
	// see the reset on its next check without any coordination.
	for i := 0; i < 10; i++ {
		if d, err := ledger.CheckAndConsume(ctx, cred.Key); err != nil || !d.Accepted {
			t.Fatalf("consume %d: (%+v, %v)", i+1, d, err)
		}
	}
	if d, _ := ledger.CheckAndConsume(ctx, cred.Key); d.Accepted {
		t.Fatal("exhausted key still accepted")
	}

	updated, changes, err := svc.Update(ctx, cred.Key, CredentialUpdate{ResetUsage: true})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Used != 0 || updated.LastReset == 0 {
		t.Errorf("updated = %+v, want used=0 with lastReset stamped", updated)
	}
	if len(changes) != 1 || changes[0] != "usage reset to zero" {
		t.Errorf("changes = %v", changes)
	}
	if d, err := ledger.CheckAndConsume(ctx, cred.Key); err != nil || !d.Accepted {
		t.Errorf("post-reset consume = (%+v, %v), want accepted", d, err)
	}

	t.Run("deactivation rejects immediately", func(t *testing.T) {
		inactive := false
		if _, _, err := svc.Update(ctx, cred.Key, CredentialUpdate{IsActive: &inactive}); err != nil {
			t.Fatal(err)
		}
		d, err := ledger.CheckAndConsume(ctx, cred.Key)
		if err != nil {
			t.Fatal(err)
		}
		if d.Accepted || d.Reason != RejectInactive {
			t.Errorf("decision = %+v, want inactive rejection", d)
		}
	})

	t.Run("unlimited update zeroes limit", func(t *testing.T) {
		unlimited := true
		updated, _, err := svc.Update(ctx, cred.Key, CredentialUpdate{Unlimited: &unlimited})
		if err != nil {
			t.Fatal(err)
		}
		if !updated.Unlimited || updated.Limit != 0 {
			t.Errorf("updated = %+v, want unlimited limit=0", updated)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		if _, _, err := svc.Update(ctx, "ghost", CredentialUpdate{ResetUsage: true}); !errors.Is(err, ErrUnknownKey) {
			t.Errorf("err = %v, want ErrUnknownKey", err)
		}
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestCredentials(t)

	a, _ := svc.Generate(ctx, "first", 100, false)
	b, _ := svc.Generate(ctx, "second", 0, true)
	inactive := false
	svc.Update(ctx, b.Key, CredentialUpdate{IsActive: &inactive})
	ledger.CheckAndConsume(ctx, a.Key)

	creds, summary, err := svc.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(creds) != 2 {
		t.Fatalf("listed %d keys, want 2", len(creds))
	}
	if summary.TotalKeys != 2 || summary.ActiveKeys != 1 || summary.UnlimitedKeys != 1 || summary.TotalRequests != 1 {
		t.Errorf("summary = %+v", summary)
	}

	t.Run("search filter", func(t *testing.T) {
		creds, _, err := svc.List(ctx, strings.ToUpper(a.Key[:12]))
		if err != nil {
			t.Fatal(err)
		}
		if len(creds) != 1 || creds[0].Key != a.Key {
			t.Errorf("filtered list = %+v, want only %s", creds, a.Key)
		}
	})
}
