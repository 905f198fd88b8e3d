package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"number-lookup-api/internal/clock"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestLedger(t *testing.T, policy FailurePolicy) (*QuotaLedger, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clk := clock.NewManualClock(time.Unix(1700000000, 0))
	return NewQuotaLedger(client, clk, policy), mr, client
}

func seedCredential(t *testing.T, mr *miniredis.Miniredis, key string, limit, used int64, unlimited, active bool) {
	t.Helper()
	mr.HSet(CredentialKeyPrefix+key,
		"limit", strconv.FormatInt(limit, 10),
		"used", strconv.FormatInt(used, 10),
		"unlimited", boolStr(unlimited),
		"isActive", boolStr(active),
		"createdAt", "1700000000000",
		"name", "test key",
	)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestCheckAndConsume(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown key", func(t *testing.T) {
		l, _, _ := newTestLedger(t, FailClosed)
		_, err := l.CheckAndConsume(ctx, "no_such_key")
		if !errors.Is(err, ErrUnknownKey) {
			t.Errorf("err = %v, want ErrUnknownKey", err)
		}
	})

	t.Run("empty key", func(t *testing.T) {
		l, _, _ := newTestLedger(t, FailClosed)
		if _, err := l.CheckAndConsume(ctx, ""); !errors.Is(err, ErrUnknownKey) {
			t.Errorf("err = %v, want ErrUnknownKey", err)
		}
	})

	t.Run("inactive key rejected regardless of quota", func(t *testing.T) {
		l, mr, _ := newTestLedger(t, FailClosed)
		seedCredential(t, mr, "k1", 100, 0, false, false)
		d, err := l.CheckAndConsume(ctx, "k1")
		if err != nil {
			t.Fatal(err)
		}
		if d.Accepted || d.Reason != RejectInactive {
			t.Errorf("decision = %+v, want inactive rejection", d)
		}
		if got := mr.HGet(CredentialKeyPrefix+"k1", "used"); got != "0" {
			t.Errorf("inactive rejection consumed quota: used = %s", got)
		}
	})

	t.Run("accept increments used", func(t *testing.T) {
		l, mr, _ := newTestLedger(t, FailClosed)
		seedCredential(t, mr, "k2", 100, 41, false, true)
		d, err := l.CheckAndConsume(ctx, "k2")
		if err != nil {
			t.Fatal(err)
		}
		if !d.Accepted || d.Used != 42 || d.Limit != 100 {
			t.Errorf("decision = %+v, want accepted used=42 limit=100", d)
		}
		if got := mr.HGet(CredentialKeyPrefix+"k2", "lastUsed"); got == "" {
			t.Error("acceptance did not stamp lastUsed")
		}
	})

	t.Run("last unit then limit exceeded", func(t *testing.T) {
		l, mr, _ := newTestLedger(t, FailClosed)
		seedCredential(t, mr, "k3", 100, 99, false, true)

		d, err := l.CheckAndConsume(ctx, "k3")
		if err != nil {
			t.Fatal(err)
		}
		if !d.Accepted || d.Used != 100 {
			t.Errorf("decision = %+v, want accepted used_after=100", d)
		}

		d, err = l.CheckAndConsume(ctx, "k3")
		if err != nil {
			t.Fatal(err)
		}
		if d.Accepted || d.Reason != RejectLimitExceeded || d.Used != 100 || d.Limit != 100 {
			t.Errorf("decision = %+v, want limit_exceeded used=100 limit=100", d)
		}
	})

	t.Run("unlimited ignores limit", func(t *testing.T) {
		l, mr, _ := newTestLedger(t, FailClosed)
		seedCredential(t, mr, "k4", 0, 123456, true, true)
		d, err := l.CheckAndConsume(ctx, "k4")
		if err != nil {
			t.Fatal(err)
		}
		if !d.Accepted || !d.Unlimited || d.Used != 123457 {
			t.Errorf("decision = %+v, want accepted unlimited used=123457", d)
		}
	})

	t.Run("missing used field reads as zero", func(t *testing.T) {
		l, mr, _ := newTestLedger(t, FailClosed)
		mr.HSet(CredentialKeyPrefix+"k5", "limit", "10", "unlimited", "false", "isActive", "true")
		d, err := l.CheckAndConsume(ctx, "k5")
		if err != nil {
			t.Fatal(err)
		}
		if !d.Accepted || d.Used != 1 {
			t.Errorf("decision = %+v, want accepted used=1", d)
		}
	})
}

func TestCheckAndConsumeFailsClosed(t *testing.T) {
	ctx := context.Background()
	l, mr, _ := newTestLedger(t, FailClosed)
	seedCredential(t, mr, "k1", 100, 0, false, true)
	mr.Close()

	_, err := l.CheckAndConsume(ctx, "k1")
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Errorf("err = %v, want ErrLedgerUnavailable: an unreachable ledger must reject", err)
	}
}

func TestCheckAndConsumeConcurrent(t *testing.T) {
	ctx := context.Background()
	l, mr, _ := newTestLedger(t, FailClosed)
	seedCredential(t, mr, "hot", 100, 0, false, true)

	const requests = 150
	var accepted int64
	var wg sync.WaitGroup
	wg.Add(requests)
	for i := 0; i < requests; i++ {
		go func() {
			defer wg.Done()
			d, err := l.CheckAndConsume(ctx, "hot")
			if err != nil {
				t.Errorf("CheckAndConsume: %v", err)
				return
			}
			if d.Accepted {
				atomic.AddInt64(&accepted, 1)
			}
		}()
	}
	wg.Wait()

	// HINCRBY is the single arbiter: even when many requests pass the
	// pre-check together, acceptances never exceed the limit.
	if accepted != 100 {
		t.Errorf("accepted %d requests with limit 100", accepted)
	}
}

func TestGetCredential(t *testing.T) {
	ctx := context.Background()
	l, mr, _ := newTestLedger(t, FailClosed)
	seedCredential(t, mr, "k1", 100, 40, false, true)

	cred, err := l.GetCredential(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if cred.Remaining() != 60 {
		t.Errorf("Remaining = %d, want 60", cred.Remaining())
	}
	if got := mr.HGet(CredentialKeyPrefix+"k1", "used"); got != "40" {
		t.Errorf("GetCredential must not consume quota: used = %s", got)
	}

	if _, err := l.GetCredential(ctx, "ghost"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("err = %v, want ErrUnknownKey", err)
	}
}
