package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"number-lookup-api/internal/clock"
	"number-lookup-api/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultKeyLimit is the request budget assigned when none is specified.
const DefaultKeyLimit = 100

// CredentialService is the administrative side of the credential namespace.
// It writes the same apikey:<key> hashes the quota ledger reads, using the
// shared field encoding (integer strings, "true"/"false" booleans, epoch-ms
// timestamps). Keys are never physically deleted; deactivation is the
// retirement path.
type CredentialService struct {
	client *redis.Client
	clk    clock.Clock
}

func NewCredentialService(client *redis.Client, clk clock.Clock) *CredentialService {
	return &CredentialService{client: client, clk: clk}
}

// Generate issues a new API key and registers it in the index.
func (s *CredentialService) Generate(ctx context.Context, name string, limit int64, unlimited bool) (*models.Credential, error) {
	key := "key_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	if name == "" {
		name = "Unknown"
	}
	if limit <= 0 {
		limit = DefaultKeyLimit
	}
	if unlimited {
		limit = 0
	}
	now := s.clk.Now().UnixMilli()

	fields := map[string]interface{}{
		"limit":     strconv.FormatInt(limit, 10),
		"used":      "0",
		"unlimited": models.FormatBool(unlimited),
		"isActive":  "true",
		"createdAt": strconv.FormatInt(now, 10),
		"name":      name,
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, CredentialKeyPrefix+key, fields)
	pipe.SAdd(ctx, CredentialIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	return &models.Credential{
		Key:       key,
		Limit:     limit,
		Unlimited: unlimited,
		IsActive:  true,
		Name:      name,
		CreatedAt: now,
	}, nil
}

// CredentialUpdate is a partial administrative update; nil pointers leave
// the field untouched.
type CredentialUpdate struct {
	Limit      *int64
	Unlimited  *bool
	ResetUsage bool
	IsActive   *bool
	Name       *string
	Email      *string
}

// Update applies an administrative change and returns the fresh credential
// plus a human-readable change list. The ledger is not involved: it reads
// whatever values are current on its next check.
func (s *CredentialService) Update(ctx context.Context, key string, upd CredentialUpdate) (*models.Credential, []string, error) {
	hashKey := CredentialKeyPrefix + key
	existing, err := s.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if !models.HashExists(existing) {
		return nil, nil, ErrUnknownKey
	}

	now := s.clk.Now().UnixMilli()
	fields := make(map[string]interface{})
	changes := []string{}

	if upd.Limit != nil {
		fields["limit"] = strconv.FormatInt(*upd.Limit, 10)
		changes = append(changes, fmt.Sprintf("limit set to %d", *upd.Limit))
	}
	if upd.Unlimited != nil {
		fields["unlimited"] = models.FormatBool(*upd.Unlimited)
		if *upd.Unlimited {
			fields["limit"] = "0"
		}
		changes = append(changes, fmt.Sprintf("unlimited %s", enabledWord(*upd.Unlimited)))
	}
	if upd.ResetUsage {
		fields["used"] = "0"
		fields["lastReset"] = strconv.FormatInt(now, 10)
		changes = append(changes, "usage reset to zero")
	}
	if upd.IsActive != nil {
		fields["isActive"] = models.FormatBool(*upd.IsActive)
		if *upd.IsActive {
			changes = append(changes, "status activated")
		} else {
			changes = append(changes, "status deactivated")
		}
	}
	if upd.Name != nil {
		fields["name"] = *upd.Name
		changes = append(changes, "name updated to "+*upd.Name)
	}
	if upd.Email != nil {
		fields["email"] = *upd.Email
		changes = append(changes, "email updated to "+*upd.Email)
	}

	if len(fields) > 0 {
		fields["lastUpdated"] = strconv.FormatInt(now, 10)
		if err := s.client.HSet(ctx, hashKey, fields).Err(); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
	}

	updated, err := s.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return models.CredentialFromHash(key, updated), changes, nil
}

func enabledWord(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// ListSummary aggregates the key population for the admin listing.
type ListSummary struct {
	TotalKeys     int   `json:"total_keys"`
	ActiveKeys    int   `json:"active_keys"`
	UnlimitedKeys int   `json:"unlimited_keys"`
	TotalRequests int64 `json:"total_requests"`
}

// List returns credentials matching the optional substring filter, newest
// first, plus population totals.
func (s *CredentialService) List(ctx context.Context, search string) ([]*models.Credential, *ListSummary, error) {
	keys, err := s.client.SMembers(ctx, CredentialIndexKey).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	search = strings.ToLower(search)
	creds := make([]*models.Credential, 0, len(keys))
	summary := &ListSummary{TotalKeys: len(keys)}

	for _, key := range keys {
		if search != "" && !strings.Contains(strings.ToLower(key), search) {
			continue
		}
		fields, err := s.client.HGetAll(ctx, CredentialKeyPrefix+key).Result()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		if !models.HashExists(fields) {
			continue
		}
		cred := models.CredentialFromHash(key, fields)
		creds = append(creds, cred)
		summary.TotalRequests += cred.Used
		if cred.IsActive {
			summary.ActiveKeys++
		}
		if cred.Unlimited {
			summary.UnlimitedKeys++
		}
	}

	sort.Slice(creds, func(i, j int) bool {
		return creds[i].CreatedAt > creds[j].CreatedAt
	})

	return creds, summary, nil
}
