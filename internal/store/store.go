// Package store implements the partitioned record store on top of Redis.
//
// Every record lives inside one of N partition hashes (part:0 .. part:N-1)
// resolved by the partition router; keeping partitions small is what keeps
// point reads fast at hundreds of millions of rows.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"number-lookup-api/internal/models"
	"number-lookup-api/internal/partition"

	"github.com/go-redis/redis/v8"
)

// ErrUnavailable wraps transient backend failures (timeouts, connection
// errors). The store never retries internally; retry policy belongs to the
// caller, which knows whether it is doing bulk ingestion or an interactive
// lookup.
var ErrUnavailable = errors.New("store unavailable")

// searchScanCap bounds how many matches a single search collects before
// stopping the partition scan. Pagination happens above this layer.
const searchScanCap = 500

// Entry is one record keyed by its subscriber number, as supplied by the
// bulk loader.
type Entry struct {
	Number string
	Record *models.Record
}

type PartitionedStore struct {
	client *redis.Client
	router *partition.Router
}

func NewPartitionedStore(client *redis.Client, router *partition.Router) *PartitionedStore {
	return &PartitionedStore{client: client, router: router}
}

func (s *PartitionedStore) Router() *partition.Router {
	return s.router
}

// PutBatch writes a batch of entries, grouped so that each touched partition
// receives a single HSET inside one pipeline. Re-running a batch with
// overlapping numbers is safe: the write is last-write-wins per number.
// The cache is deliberately not touched; stale entries age out via TTL.
func (s *PartitionedStore) PutBatch(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	grouped := make(map[string]map[string]interface{})
	count := 0
	for _, e := range entries {
		if e.Record == nil || !partition.IsValidNumber(e.Number) {
			continue
		}
		number := strings.TrimSpace(e.Number)
		data, err := json.Marshal(e.Record)
		if err != nil {
			return count, fmt.Errorf("encode record %s: %w", number, err)
		}
		pk := s.router.PartitionKey(number)
		if grouped[pk] == nil {
			grouped[pk] = make(map[string]interface{})
		}
		grouped[pk][number] = string(data)
		count++
	}

	pipe := s.client.Pipeline()
	for pk, fields := range grouped {
		pipe.HSet(ctx, pk, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return count, nil
}

// Get reads one record by number. A missing number is (nil, nil), never an
// error; only backend failures produce a non-nil error.
func (s *PartitionedStore) Get(ctx context.Context, number string) (*models.Record, error) {
	data, err := s.client.HGet(ctx, s.router.PartitionKey(number), number).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var rec models.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", number, err)
	}
	return &rec, nil
}

// Search scans partition hashes for records whose field values contain the
// query (case-insensitive). field narrows the match to one field name; empty
// means all text fields. The scan stops once searchScanCap matches are
// collected.
func (s *PartitionedStore) Search(ctx context.Context, query, field string) ([]*models.Record, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	results := make([]*models.Record, 0)
	for p := 0; p < s.router.Partitions(); p++ {
		entries, err := s.client.HGetAll(ctx, partition.KeyPrefix+fmt.Sprint(p)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for number, data := range entries {
			var rec models.Record
			if err := json.Unmarshal([]byte(data), &rec); err != nil {
				continue
			}
			if rec.Number == "" {
				rec.Number = number
			}
			if matchRecord(&rec, query, field) {
				results = append(results, &rec)
				if len(results) >= searchScanCap {
					return results, nil
				}
			}
		}
	}
	return results, nil
}

func matchRecord(rec *models.Record, query, field string) bool {
	contains := func(v string) bool {
		return v != "" && strings.Contains(strings.ToLower(v), query)
	}

	switch field {
	case "name":
		return contains(rec.Name) || contains(rec.GuardianName)
	case "number":
		return contains(rec.Number) || contains(rec.AltNumber)
	case "address":
		return contains(rec.Address) || contains(rec.District) ||
			contains(rec.Town) || contains(rec.State) || contains(rec.Pincode)
	default:
		return contains(rec.Name) || contains(rec.GuardianName) ||
			contains(rec.Number) || contains(rec.AltNumber) ||
			contains(rec.Address) || contains(rec.District) ||
			contains(rec.Town) || contains(rec.State) || contains(rec.Pincode)
	}
}

// ClearPartitions deletes every partition hash. Admin-only; used together
// with the lookup cache's Clear when reloading from scratch.
func (s *PartitionedStore) ClearPartitions(ctx context.Context) (int, error) {
	return DeleteByPattern(ctx, s.client, partition.KeyPrefix+"*")
}

// Stats summarizes the backing store for the status endpoints.
type Stats struct {
	TotalKeys        int64 `json:"total_keys"`
	EstimatedRecords int64 `json:"estimated_records"`
	Partitions       int   `json:"partitions"`
}

func (s *PartitionedStore) Stats(ctx context.Context) (*Stats, error) {
	size, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Stats{
		TotalKeys:        size,
		EstimatedRecords: size * 150,
		Partitions:       s.router.Partitions(),
	}, nil
}

// DeleteByPattern removes all keys matching a glob pattern via SCAN and
// returns how many were deleted.
func DeleteByPattern(ctx context.Context, client *redis.Client, pattern string) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
