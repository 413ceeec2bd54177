package batch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a remote call failure and drives the retry policy.
type ErrorKind int

const (
	// KindTransient covers timeouts, 5xx responses and any failure shape
	// the adapter does not recognize. Retried with standard backoff.
	KindTransient ErrorKind = iota
	// KindRateLimit means the provider refused the call rate. Retried
	// with a longer backoff.
	KindRateLimit
	// KindCostLimit means the batch exceeded the provider's per-call
	// token/size limit. Never retried as-is; items are re-split.
	KindCostLimit
	// KindPermanent means the input itself is unprocessable. The affected
	// items fall back immediately.
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindCostLimit:
		return "cost_limit"
	case KindPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// ClassifiedError tags an underlying remote error with its kind. Remote API
// adapters wrap their provider-specific failures in one of these; the engine
// never inspects message text.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(err error) error { return &ClassifiedError{Kind: KindTransient, Err: err} }

// RateLimited wraps err as a rate-limit failure.
func RateLimited(err error) error { return &ClassifiedError{Kind: KindRateLimit, Err: err} }

// CostLimited wraps err as a per-call size failure.
func CostLimited(err error) error { return &ClassifiedError{Kind: KindCostLimit, Err: err} }

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) error { return &ClassifiedError{Kind: KindPermanent, Err: err} }

// Classify extracts the kind from err. Unrecognized errors are treated as
// transient so they are retried rather than dropped.
func Classify(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}
