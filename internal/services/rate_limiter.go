package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"number-lookup-api/internal/clock"

	"github.com/go-redis/redis/v8"
)

// RateLimitKeyPrefix namespaces per-credential timestamp sets.
const RateLimitKeyPrefix = "ratelimit:"

var ErrLimiterUnavailable = errors.New("rate limiter unavailable")

// RateDecision is the outcome of one sliding-window check. RetryAfter is in
// whole seconds and only meaningful when Allowed is false. FailedOpen marks
// decisions that were admitted because the backend was unreachable.
type RateDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter int
	FailedOpen bool
}

// SlidingWindowLimiter bounds request rate per credential with a trailing
// window kept in a Redis sorted set of request timestamps (epoch ms as both
// score and member). Prune, count and insert are separate operations, so
// concurrent requests can transiently miscount by a small margin, accepted
// for a protective heuristic, unlike the quota ledger where HINCRBY is the
// strict arbiter.
type SlidingWindowLimiter struct {
	client *redis.Client
	clk    clock.Clock
	window time.Duration
	max    int
	policy FailurePolicy
}

func NewSlidingWindowLimiter(client *redis.Client, clk clock.Clock, window time.Duration, max int, policy FailurePolicy) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{client: client, clk: clk, window: window, max: max, policy: policy}
}

// Allow prunes timestamps older than the window, then either rejects with a
// retry hint derived from the oldest surviving timestamp or records the
// request. The whole set expires after one idle window so dormant
// credentials clean up after themselves.
func (rl *SlidingWindowLimiter) Allow(ctx context.Context, keyID string) (RateDecision, error) {
	key := RateLimitKeyPrefix + keyID
	now := rl.clk.Now()
	nowMs := now.UnixMilli()
	windowStartMs := nowMs - rl.window.Milliseconds()

	if err := rl.client.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStartMs, 10)).Err(); err != nil {
		return rl.failed(err)
	}

	count, err := rl.client.ZCard(ctx, key).Result()
	if err != nil {
		return rl.failed(err)
	}

	if count >= int64(rl.max) {
		oldest, err := rl.client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err != nil {
			return rl.failed(err)
		}
		retryAfter := 1
		if len(oldest) > 0 {
			resetMs := int64(oldest[0].Score) + rl.window.Milliseconds() - nowMs
			if secs := int((resetMs + 999) / 1000); secs > retryAfter {
				retryAfter = secs
			}
		}
		return RateDecision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	member := strconv.FormatInt(nowMs, 10)
	if err := rl.client.ZAdd(ctx, key, &redis.Z{Score: float64(nowMs), Member: member}).Err(); err != nil {
		return rl.failed(err)
	}
	if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
		log.Printf("Failed to set expiry on %s: %v", key, err)
	}

	return RateDecision{Allowed: true, Remaining: rl.max - int(count) - 1}, nil
}

func (rl *SlidingWindowLimiter) failed(err error) (RateDecision, error) {
	if rl.policy == FailOpen {
		log.Printf("Rate limiter backend error, %s policy admits request: %v", rl.policy, err)
		return RateDecision{Allowed: true, Remaining: rl.max, FailedOpen: true}, nil
	}
	return RateDecision{}, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
}
