// Package budget decides whether notifications fit the monthly quota.
package budget

import (
	"fmt"

	"github.com/ogulcanaydogan/outagewatch/pkg/model"
)

// DefaultMonthlyLimit keeps a safety margin under the X free tier of 500 posts.
const DefaultMonthlyLimit = 450

// Throttling bands as a percentage of the monthly limit.
const (
	ConservePct = 90 // status changes suppressed
	CriticalPct = 96 // new outages only
)

// Band indicates how much of the monthly quota has been consumed.
type Band string

const (
	BandNormal    Band = "normal"    // All change kinds allowed
	BandConserve  Band = "conserve"  // Past the conserve threshold
	BandCritical  Band = "critical"  // Past the critical threshold
	BandExhausted Band = "exhausted" // Hard ceiling reached
)

// threshold returns floor(limit*pct/100) for non-negative limits.
func threshold(limit, pct int) int {
	return limit * pct / 100
}

// CanSend reports whether any notification may be attempted this month.
func CanSend(count, limit int) bool {
	return count < limit
}

// ShouldNotify applies graduated throttling to a single change. Both bands
// currently allow only new outages; they are kept apart so that the conserve
// band can be loosened independently.
func ShouldNotify(count, limit int, kind model.ChangeKind) bool {
	if count >= threshold(limit, CriticalPct) {
		return kind == model.ChangeNew
	}

	if count >= threshold(limit, ConservePct) {
		return kind == model.ChangeNew
	}

	return true
}

// Policy binds the decision functions to a configured monthly limit.
type Policy struct {
	limit int
}

// NewPolicy creates a policy for the given monthly limit.
func NewPolicy(limit int) (*Policy, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("monthly limit must be positive, got %d", limit)
	}
	return &Policy{limit: limit}, nil
}

// Limit returns the monthly notification ceiling.
func (p *Policy) Limit() int { return p.limit }

// CanSend reports whether count is still under the ceiling.
func (p *Policy) CanSend(count int) bool {
	return CanSend(count, p.limit)
}

// ShouldNotify reports whether a change of the given kind may be sent.
func (p *Policy) ShouldNotify(count int, kind model.ChangeKind) bool {
	return ShouldNotify(count, p.limit, kind)
}

// Remaining returns how many notifications are left this month.
func (p *Policy) Remaining(count int) int {
	if count >= p.limit {
		return 0
	}
	return p.limit - count
}

// Band classifies the current usage.
func (p *Policy) Band(count int) Band {
	switch {
	case count >= p.limit:
		return BandExhausted
	case count >= threshold(p.limit, CriticalPct):
		return BandCritical
	case count >= threshold(p.limit, ConservePct):
		return BandConserve
	default:
		return BandNormal
	}
}

// UsagePct returns count as a percentage of the limit.
func (p *Policy) UsagePct(count int) float64 {
	return float64(count) / float64(p.limit) * 100
}
