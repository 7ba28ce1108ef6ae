package pricing

import (
	"strings"
	"time"

	"github.com/wanderlane/pricing-engine/internal/models"
)

// Candidate carries the dimensions of a line item the matcher gates on.
// Destination and Supplier are the effective values after item-level
// overrides have been resolved against the quote context.
type Candidate struct {
	AppliesTo   models.AppliesTo
	Destination string
	Supplier    string
}

// Match selects at most one rule for a candidate at the evaluation instant.
// Rules must be pre-sorted ascending by (priority, created_at); the first
// rule surviving every gate wins. This is deliberately first-match, not
// best-match: priority is the sole ranking key, destination and supplier are
// gates. Returns false when no rule survives.
func Match(rules []models.PricingRule, c Candidate, at time.Time) (models.PricingRule, bool) {
	for _, r := range rules {
		if !r.Active || r.AppliesTo != c.AppliesTo {
			continue
		}
		if r.ValidFrom != nil && at.Before(*r.ValidFrom) {
			continue
		}
		if r.ValidTo != nil && at.After(*r.ValidTo) {
			continue
		}
		if !scopeMatches(r.Destination, c.Destination) {
			continue
		}
		if !scopeMatches(r.Supplier, c.Supplier) {
			continue
		}
		return r, true
	}
	return models.PricingRule{}, false
}

// scopeMatches applies the specificity gate: a scoped rule requires a
// case-insensitive match, and an item with no value to compare against is
// rejected rather than matched. Unscoped rules match unconditionally.
func scopeMatches(ruleScope, itemValue string) bool {
	if ruleScope == "" {
		return true
	}
	if itemValue == "" {
		return false
	}
	return strings.EqualFold(ruleScope, itemValue)
}
