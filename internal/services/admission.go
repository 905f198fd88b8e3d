package services

import "context"

// AdmissionReason classifies why a request was turned away.
type AdmissionReason string

const (
	AdmitOK            AdmissionReason = ""
	AdmitInactive      AdmissionReason = "inactive_key"
	AdmitQuotaExceeded AdmissionReason = "quota_exceeded"
	AdmitRateLimited   AdmissionReason = "rate_limited"
)

// AdmissionResult combines the quota and rate decisions for one request.
type AdmissionResult struct {
	Allowed    bool
	Reason     AdmissionReason
	Quota      QuotaDecision
	Rate       RateDecision
	RetryAfter int
}

// AdmissionGate composes the quota ledger and the sliding-window limiter
// into a single accept/reject decision. Quota runs first: it is the cheaper
// semantic check and the invariant that must hold strictly. The ordering is
// a behavioral contract: a request rejected on quota never consumes rate
// budget, while a rate-limited request has already been charged one quota
// unit.
type AdmissionGate struct {
	ledger  *QuotaLedger
	limiter *SlidingWindowLimiter
}

func NewAdmissionGate(ledger *QuotaLedger, limiter *SlidingWindowLimiter) *AdmissionGate {
	return &AdmissionGate{ledger: ledger, limiter: limiter}
}

// Admit runs quota then rate. ErrUnknownKey and ErrLedgerUnavailable come
// back as errors for the transport to map; rejections are results.
func (g *AdmissionGate) Admit(ctx context.Context, keyID string) (AdmissionResult, error) {
	quota, err := g.ledger.CheckAndConsume(ctx, keyID)
	if err != nil {
		return AdmissionResult{}, err
	}
	if !quota.Accepted {
		reason := AdmitQuotaExceeded
		if quota.Reason == RejectInactive {
			reason = AdmitInactive
		}
		return AdmissionResult{Reason: reason, Quota: quota}, nil
	}

	rate, err := g.limiter.Allow(ctx, keyID)
	if err != nil {
		return AdmissionResult{}, err
	}
	if !rate.Allowed {
		return AdmissionResult{
			Reason:     AdmitRateLimited,
			Quota:      quota,
			Rate:       rate,
			RetryAfter: rate.RetryAfter,
		}, nil
	}

	return AdmissionResult{Allowed: true, Quota: quota, Rate: rate}, nil
}
