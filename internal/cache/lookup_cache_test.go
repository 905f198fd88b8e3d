package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"number-lookup-api/internal/clock"
	"number-lookup-api/internal/models"
	"number-lookup-api/internal/partition"
	"number-lookup-api/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestCache(t *testing.T, ttl time.Duration) (*LookupCache, *store.PartitionedStore, *clock.ManualClock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewPartitionedStore(client, partition.NewRouter(1000))
	clk := clock.NewManualClock(time.Unix(1700000000, 0))
	return NewLookupCache(client, s, ttl, clk), s, clk, mr
}

func seed(t *testing.T, s *store.PartitionedStore, name string) {
	t.Helper()
	_, err := s.PutBatch(context.Background(), []store.Entry{
		{Number: "9876543210", Record: &models.Record{Name: name, Number: "9876543210", Source: "db1"}},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGetOrPopulate(t *testing.T) {
	ctx := context.Background()
	c, s, _, mr := newTestCache(t, time.Hour)
	seed(t, s, "Cached Person")

	t.Run("first read misses and populates", func(t *testing.T) {
		rec, fromCache, err := c.GetOrPopulate(ctx, "9876543210")
		if err != nil {
			t.Fatal(err)
		}
		if fromCache {
			t.Error("first read reported fromCache = true")
		}
		if rec == nil || rec.Name != "Cached Person" {
			t.Fatalf("rec = %+v, want the seeded record", rec)
		}
		if !mr.Exists("num:9876543210") {
			t.Error("populate did not write the cache entry")
		}
	})

	t.Run("second read hits", func(t *testing.T) {
		rec, fromCache, err := c.GetOrPopulate(ctx, "9876543210")
		if err != nil {
			t.Fatal(err)
		}
		if !fromCache {
			t.Error("second read reported fromCache = false")
		}
		if rec == nil || rec.Name != "Cached Person" {
			t.Fatalf("rec = %+v, want the seeded record", rec)
		}
	})

	t.Run("absent number caches nothing", func(t *testing.T) {
		rec, fromCache, err := c.GetOrPopulate(ctx, "6000000001")
		if err != nil || rec != nil || fromCache {
			t.Fatalf("absent lookup = (%+v, %v, %v), want (nil, false, nil)", rec, fromCache, err)
		}
		if mr.Exists("num:6000000001") {
			t.Error("negative result was cached")
		}
	})
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, s, clk, _ := newTestCache(t, time.Hour)
	seed(t, s, "Original")

	if _, _, err := c.GetOrPopulate(ctx, "9876543210"); err != nil {
		t.Fatal(err)
	}

	// The store is updated underneath the cache; within TTL the stale cached
	// value is still served, past TTL the next read must hit the store.
	seed(t, s, "Updated")

	clk.Advance(59 * time.Minute)
	rec, fromCache, err := c.GetOrPopulate(ctx, "9876543210")
	if err != nil {
		t.Fatal(err)
	}
	if !fromCache || rec.Name != "Original" {
		t.Errorf("within TTL: got (%q, fromCache=%v), want cached Original", rec.Name, fromCache)
	}

	clk.Advance(2 * time.Minute)
	rec, fromCache, err = c.GetOrPopulate(ctx, "9876543210")
	if err != nil {
		t.Fatal(err)
	}
	if fromCache {
		t.Error("entry older than TTL was served from cache")
	}
	if rec.Name != "Updated" {
		t.Errorf("expired read returned %q, want fresh Updated", rec.Name)
	}

	// The expired entry was overwritten in place; the next read hits again.
	_, fromCache, err = c.GetOrPopulate(ctx, "9876543210")
	if err != nil {
		t.Fatal(err)
	}
	if !fromCache {
		t.Error("repopulated entry was not served from cache")
	}
}

func TestNegativeResultNotMasked(t *testing.T) {
	ctx := context.Background()
	c, s, _, _ := newTestCache(t, time.Hour)

	if rec, _, err := c.GetOrPopulate(ctx, "9876543210"); err != nil || rec != nil {
		t.Fatalf("lookup before load = (%+v, %v), want (nil, nil)", rec, err)
	}

	// A write after a failed lookup must be visible immediately; nothing
	// negative is cached in between.
	seed(t, s, "Arrived Later")
	rec, fromCache, err := c.GetOrPopulate(ctx, "9876543210")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Name != "Arrived Later" || fromCache {
		t.Errorf("post-write lookup = (%+v, fromCache=%v), want fresh record", rec, fromCache)
	}
}

func TestStoreErrorSurfaced(t *testing.T) {
	ctx := context.Background()
	c, _, _, mr := newTestCache(t, time.Hour)
	mr.Close()

	_, _, err := c.GetOrPopulate(ctx, "9876543210")
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("err = %v, want store.ErrUnavailable", err)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	c, s, _, mr := newTestCache(t, time.Hour)
	seed(t, s, "Someone")

	if _, _, err := c.GetOrPopulate(ctx, "9876543210"); err != nil {
		t.Fatal(err)
	}
	n, err := c.Clear(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Clear removed %d entries, want 1", n)
	}
	if mr.Exists("num:9876543210") {
		t.Error("cache entry survived Clear")
	}

	// Partitions are a different namespace; records must survive.
	if rec, _, err := c.GetOrPopulate(ctx, "9876543210"); err != nil || rec == nil {
		t.Errorf("record lost after cache Clear: (%+v, %v)", rec, err)
	}
}
