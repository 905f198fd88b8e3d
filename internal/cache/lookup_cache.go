// Package cache is the cache-aside layer in front of the partitioned store.
//
// Reads check the cache first and fall through to the store on a miss; a
// found record is written back with the current timestamp. Writes from the
// bulk loader never touch the cache; entries are superseded by TTL expiry,
// not invalidation.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"number-lookup-api/internal/clock"
	"number-lookup-api/internal/models"
	"number-lookup-api/internal/store"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// KeyPrefix is the Redis namespace for cached lookups.
const KeyPrefix = "num:"

// entry carries the record together with its insertion time so both tiers
// can apply the same TTL rule regardless of backend expiry precision.
type entry struct {
	Record   *models.Record `json:"record"`
	CachedAt int64          `json:"cached_at"`
}

// LookupCache is a two-tier cache: a best-effort in-process tier in front of
// Redis. Neither tier is authoritative; an entry past its TTL is treated as
// a miss and overwritten in place by the next populate. Concurrent populates
// for the same number may race. Last populate wins, which is harmless since
// both derive from the same backing record.
type LookupCache struct {
	client *redis.Client
	store  *store.PartitionedStore
	local  *gocache.Cache
	ttl    time.Duration
	clk    clock.Clock
}

func NewLookupCache(client *redis.Client, s *store.PartitionedStore, ttl time.Duration, clk clock.Clock) *LookupCache {
	return &LookupCache{
		client: client,
		store:  s,
		local:  gocache.New(ttl, 2*ttl),
		ttl:    ttl,
		clk:    clk,
	}
}

// GetOrPopulate returns the record for a number, reporting whether it was
// served from cache. Cache-tier failures degrade to a store read; only a
// store failure is surfaced. A number with no record returns (nil, false,
// nil) and caches nothing; negative results are deliberately not cached.
func (c *LookupCache) GetOrPopulate(ctx context.Context, number string) (*models.Record, bool, error) {
	key := KeyPrefix + number
	now := c.clk.Now()

	if v, found := c.local.Get(key); found {
		if e, ok := v.(entry); ok && c.fresh(e, now) {
			return e.Record, true, nil
		}
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var e entry
		if jsonErr := json.Unmarshal(data, &e); jsonErr == nil && c.fresh(e, now) {
			c.local.Set(key, e, c.ttl)
			return e.Record, true, nil
		}
	} else if err != redis.Nil {
		log.Printf("Cache read failed for %s, falling through to store: %v", key, err)
	}

	rec, err := c.store.Get(ctx, number)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}

	c.populate(ctx, key, rec, now)
	return rec, false, nil
}

func (c *LookupCache) fresh(e entry, now time.Time) bool {
	if e.Record == nil {
		return false
	}
	age := now.Sub(time.UnixMilli(e.CachedAt))
	return age >= 0 && age <= c.ttl
}

func (c *LookupCache) populate(ctx context.Context, key string, rec *models.Record, now time.Time) {
	e := entry{Record: rec, CachedAt: now.UnixMilli()}
	c.local.Set(key, e, c.ttl)

	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Printf("Cache populate failed for %s: %v", key, err)
	}
}

// Clear drops every cached lookup from both tiers. Admin-only.
func (c *LookupCache) Clear(ctx context.Context) (int, error) {
	c.local.Flush()
	return store.DeleteByPattern(ctx, c.client, KeyPrefix+"*")
}
