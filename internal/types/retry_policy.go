package types

import "time"

// BackoffStrategy selects the delay formula between retry attempts.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// ErrorCategory is the classification assigned by the Error Handler.
type ErrorCategory string

const (
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategorySystem        ErrorCategory = "system"
	ErrorCategoryBusinessLogic ErrorCategory = "business-logic"
	ErrorCategoryTransient     ErrorCategory = "transient"
)

// RetryPolicy configures how the Message Bus retries a failed delivery.
type RetryPolicy struct {
	MaxRetries      int
	Backoff         BackoffStrategy
	RetryableErrors map[ErrorCategory]struct{}
	Timeout         time.Duration
}

// IsRetryable reports whether the given category should be retried under this policy.
func (p RetryPolicy) IsRetryable(cat ErrorCategory) bool {
	if p.RetryableErrors == nil {
		return false
	}
	_, ok := p.RetryableErrors[cat]
	return ok
}

// Validate checks the structural invariants of spec.md §3 for RetryPolicy.
func (p RetryPolicy) Validate() error {
	var fields []string
	if p.MaxRetries < 0 {
		fields = append(fields, "max_retries must be non-negative")
	}
	switch p.Backoff {
	case BackoffFixed, BackoffLinear, BackoffExponential:
	default:
		fields = append(fields, "backoff is not a recognized strategy")
	}
	if p.Timeout <= 0 {
		fields = append(fields, "timeout must be positive")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// DefaultRetryPolicy returns the spec.md §6 default: maxRetries 3, exponential
// backoff, retryable = {transient}, timeout 5000ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Backoff:    BackoffExponential,
		RetryableErrors: map[ErrorCategory]struct{}{
			ErrorCategoryTransient: {},
		},
		Timeout: 5 * time.Second,
	}
}

// RetryPolicyFor returns the strategy-table policy (spec.md §4.3) for a category.
// The second return value is false for categories that are never retried.
func RetryPolicyFor(cat ErrorCategory) (RetryPolicy, bool) {
	switch cat {
	case ErrorCategoryTransient:
		return RetryPolicy{
			MaxRetries:      3,
			Backoff:         BackoffExponential,
			RetryableErrors: map[ErrorCategory]struct{}{ErrorCategoryTransient: {}},
			Timeout:         5 * time.Second,
		}, true
	case ErrorCategoryBusinessLogic:
		return RetryPolicy{
			MaxRetries:      2,
			Backoff:         BackoffLinear,
			RetryableErrors: map[ErrorCategory]struct{}{ErrorCategoryBusinessLogic: {}},
			Timeout:         3 * time.Second,
		}, true
	default:
		return RetryPolicy{}, false
	}
}
