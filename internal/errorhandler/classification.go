// Package errorhandler implements the Error Handler: classification,
// logging, dependent-failure notification, and strategy selection
// (spec.md §4.3).
package errorhandler

import (
	"strings"

	"github.com/aosanya/agentruntime/internal/types"
)

// Classify categorizes an error using message/name substring heuristics, a
// pure function of the error artifact (spec.md §4.3). Unknown errors
// default to transient, matching the teacher's "unknown -> retry, don't
// give up" posture for network/timeout style failures.
func Classify(err error) types.ErrorCategory {
	if err == nil {
		return types.ErrorCategoryTransient
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "invalid", "validation", "required", "must not be empty", "malformed"):
		return types.ErrorCategoryValidation
	case containsAny(msg, "panic", "fatal", "corrupt", "out of memory", "critical", "infrastructure", "system failure"):
		return types.ErrorCategorySystem
	case containsAny(msg, "business rule", "rejected", "not permitted", "policy", "business-logic", "business logic"):
		return types.ErrorCategoryBusinessLogic
	default:
		return types.ErrorCategoryTransient
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Strategy is the strategy-table row for a category (spec.md §4.3).
type Strategy struct {
	Category           types.ErrorCategory
	Retry              bool
	Policy             types.RetryPolicy
	NotifyDependents   bool
	Escalate           bool
}

// StrategyFor returns the strategy-table entry for the given category.
func StrategyFor(cat types.ErrorCategory) Strategy {
	switch cat {
	case types.ErrorCategoryTransient:
		policy, _ := types.RetryPolicyFor(types.ErrorCategoryTransient)
		return Strategy{Category: cat, Retry: true, Policy: policy}
	case types.ErrorCategoryBusinessLogic:
		policy, _ := types.RetryPolicyFor(types.ErrorCategoryBusinessLogic)
		return Strategy{Category: cat, Retry: true, Policy: policy}
	case types.ErrorCategorySystem:
		return Strategy{Category: cat, NotifyDependents: true, Escalate: true}
	default: // validation
		return Strategy{Category: types.ErrorCategoryValidation}
	}
}
