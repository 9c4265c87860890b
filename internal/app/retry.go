package app

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"
)

type FailureClass int

const (
	// ClassTransient covers timeouts, connection resets and unexpected
	// transport statuses; worth another attempt after backoff.
	ClassTransient FailureClass = iota
	// ClassAuthExpired means the session is no longer accepted; the task is
	// requeued immediately once re-authentication is triggered.
	ClassAuthExpired
	// ClassPermanent is surfaced without blind retry. Unrecognized rejection
	// codes land here: they may indicate a remote policy change.
	ClassPermanent
)

func (c FailureClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassAuthExpired:
		return "auth_expired"
	case ClassPermanent:
		return "permanent"
	}
	return "unknown"
}

// RetryPolicy is the single place failures are classified and backoff is
// computed. Both the session manager and the scheduler consume it; no retry
// logic lives at call sites.
type RetryPolicy struct {
	Base     time.Duration
	MaxDelay time.Duration
	// MaxAttempts is the consecutive-failure ceiling after which a task is
	// marked failed.
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        2 * time.Second,
		MaxDelay:    2 * time.Minute,
		MaxAttempts: 5,
	}
}

// Backoff computes min(MaxDelay, Base*2^attempt) plus proportional jitter.
// Jitter stays below the next exponential step, so delays never decrease
// while the curve is still below MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultRetryPolicy().Base
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultRetryPolicy().MaxDelay
	}
	if attempt < 0 {
		attempt = 0
	}

	d := base
	for i := 0; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

// Classify maps an error to its failure class.
func (p RetryPolicy) Classify(err error) FailureClass {
	if err == nil {
		return ClassTransient
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		if authErr.Kind == AuthSessionExpired {
			return ClassAuthExpired
		}
		return ClassPermanent
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Kind == TransportUnexpectedStatus &&
			(transportErr.Status == 401 || transportErr.Status == 403) {
			return ClassAuthExpired
		}
		return ClassTransient
	}

	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return ClassPermanent
	}

	var schedErr *SchedulingError
	if errors.As(err, &schedErr) {
		return ClassPermanent
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	return ClassTransient
}

// Exhausted reports whether the given consecutive attempt count is past the
// retry budget.
func (p RetryPolicy) Exhausted(attempts int) bool {
	limit := p.MaxAttempts
	if limit <= 0 {
		limit = DefaultRetryPolicy().MaxAttempts
	}
	return attempts >= limit
}
