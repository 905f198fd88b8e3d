package services

// FailurePolicy is the explicit stance a component takes when its backend
// cannot answer: fail closed (reject) or fail open (allow). It is a
// constructor argument rather than something inferred from error handling so
// the choice stays auditable and testable per component. The quota ledger
// fails closed (an unavailable ledger must not grant unmetered access); the
// rate limiter fails open (a limiter outage must not become a full outage).
type FailurePolicy int

const (
	FailClosed FailurePolicy = iota
	FailOpen
)

func (p FailurePolicy) String() string {
	if p == FailOpen {
		return "fail-open"
	}
	return "fail-closed"
}
