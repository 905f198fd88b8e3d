package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"number-lookup-api/internal/clock"
	"number-lookup-api/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	// CredentialKeyPrefix namespaces credential hashes; the admin surface
	// writes the same hashes the ledger reads.
	CredentialKeyPrefix = "apikey:"
	// CredentialIndexKey is the set of all issued API keys.
	CredentialIndexKey = "api_keys_index"
	// UsageChannel carries fire-and-forget usage events for the websocket feed.
	UsageChannel = "usage_updates"
)

var (
	ErrUnknownKey        = errors.New("unknown api key")
	ErrLedgerUnavailable = errors.New("quota ledger unavailable")
)

type QuotaRejectReason string

const (
	RejectInactive      QuotaRejectReason = "inactive"
	RejectLimitExceeded QuotaRejectReason = "limit_exceeded"
)

// QuotaDecision is the outcome of one check-and-consume. On acceptance Used
// is the post-increment value; on rejection it is the usage that triggered
// the rejection.
type QuotaDecision struct {
	Accepted  bool
	Reason    QuotaRejectReason
	Used      int64
	Limit     int64
	Unlimited bool
}

// UsageEvent is published on UsageChannel after every accepted consumption.
type UsageEvent struct {
	Key       string `json:"key"`
	Used      int64  `json:"used"`
	Timestamp int64  `json:"timestamp"`
}

// QuotaLedger enforces the lifetime request budget per credential. The
// credential hash in Redis is the sole source of truth; the ledger keeps no
// in-process counters. HINCRBY is the single atomic arbiter between
// concurrent requests on the same key: the pre-check keeps the common path
// cheap, and the post-increment re-check rejects any request whose
// incremented value overshot the limit, so acceptances can never exceed it.
type QuotaLedger struct {
	client *redis.Client
	clk    clock.Clock
	policy FailurePolicy
}

func NewQuotaLedger(client *redis.Client, clk clock.Clock, policy FailurePolicy) *QuotaLedger {
	return &QuotaLedger{client: client, clk: clk, policy: policy}
}

// CheckAndConsume validates the credential and, if it has budget, consumes
// one unit. The consumed unit is not refunded if a later admission step
// rejects the request. Unknown keys are an error (the transport maps it to
// 401); over-limit and inactive are decisions, not errors.
func (l *QuotaLedger) CheckAndConsume(ctx context.Context, keyID string) (QuotaDecision, error) {
	if keyID == "" {
		return QuotaDecision{}, ErrUnknownKey
	}

	hashKey := CredentialKeyPrefix + keyID
	fields, err := l.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return l.failed(err)
	}
	if !models.HashExists(fields) {
		return QuotaDecision{}, ErrUnknownKey
	}

	cred := models.CredentialFromHash(keyID, fields)
	if !cred.IsActive {
		return QuotaDecision{Reason: RejectInactive, Used: cred.Used, Limit: cred.Limit}, nil
	}
	if !cred.Unlimited && cred.Used >= cred.Limit {
		return QuotaDecision{Reason: RejectLimitExceeded, Used: cred.Used, Limit: cred.Limit}, nil
	}

	usedAfter, err := l.client.HIncrBy(ctx, hashKey, "used", 1).Result()
	if err != nil {
		return l.failed(err)
	}

	// Two concurrent requests can both pass the pre-check at used = limit-1;
	// the increment decides. The loser is rejected without compensating the
	// counter, keeping `used` monotonic.
	if !cred.Unlimited && usedAfter > cred.Limit {
		return QuotaDecision{Reason: RejectLimitExceeded, Used: usedAfter, Limit: cred.Limit}, nil
	}

	now := l.clk.Now().UnixMilli()
	if err := l.client.HSet(ctx, hashKey, "lastUsed", strconv.FormatInt(now, 10)).Err(); err != nil {
		log.Printf("Failed to stamp lastUsed for %s: %v", keyID, err)
	}
	l.publish(ctx, keyID, usedAfter, now)

	return QuotaDecision{Accepted: true, Used: usedAfter, Limit: cred.Limit, Unlimited: cred.Unlimited}, nil
}

func (l *QuotaLedger) failed(err error) (QuotaDecision, error) {
	if l.policy == FailOpen {
		log.Printf("Quota ledger backend error, %s policy admits request: %v", l.policy, err)
		return QuotaDecision{Accepted: true, Unlimited: true}, nil
	}
	return QuotaDecision{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
}

func (l *QuotaLedger) publish(ctx context.Context, keyID string, used, now int64) {
	data, err := json.Marshal(UsageEvent{Key: keyID, Used: used, Timestamp: now})
	if err != nil {
		return
	}
	if err := l.client.Publish(ctx, UsageChannel, data).Err(); err != nil {
		log.Printf("Usage event publish failed: %v", err)
	}
}

// GetCredential reads a credential without consuming quota. Used by the
// transport to report remaining budget.
func (l *QuotaLedger) GetCredential(ctx context.Context, keyID string) (*models.Credential, error) {
	fields, err := l.client.HGetAll(ctx, CredentialKeyPrefix+keyID).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if !models.HashExists(fields) {
		return nil, ErrUnknownKey
	}
	return models.CredentialFromHash(keyID, fields), nil
}
