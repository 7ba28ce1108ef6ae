package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCurrency is applied when neither the quote nor a line item carries one.
const DefaultCurrency = "INR"

// AppliesTo is the service category a pricing rule is restricted to.
type AppliesTo string

const (
	AppliesToHotel     AppliesTo = "hotel"
	AppliesToTransfer  AppliesTo = "transfer"
	AppliesToActivity  AppliesTo = "activity"
	AppliesToPackage   AppliesTo = "package"
	AppliesToVisa      AppliesTo = "visa"
	AppliesToInsurance AppliesTo = "insurance"
	AppliesToFlightFee AppliesTo = "flight_fee"
)

// Valid reports whether the value is one of the closed set of categories.
func (a AppliesTo) Valid() bool {
	switch a {
	case AppliesToHotel, AppliesToTransfer, AppliesToActivity, AppliesToPackage,
		AppliesToVisa, AppliesToInsurance, AppliesToFlightFee:
		return true
	}
	return false
}

// RuleType selects how a rule's value is applied to a base cost.
type RuleType string

const (
	RuleTypePercent RuleType = "percent"
	RuleTypeFixed   RuleType = "fixed"
)

func (t RuleType) Valid() bool {
	return t == RuleTypePercent || t == RuleTypeFixed
}

// Channel identifies the sales channel a quote is priced for.
type Channel string

const (
	ChannelB2C   Channel = "b2c"
	ChannelAgent Channel = "agent"
)

func (c Channel) Valid() bool {
	return c == ChannelB2C || c == ChannelAgent
}

// VersionStatus is the lifecycle state of a pricing version.
type VersionStatus string

const (
	VersionDraft    VersionStatus = "draft"
	VersionActive   VersionStatus = "active"
	VersionArchived VersionStatus = "archived"
)

// PricingRule is a single markup rule. Destination and Supplier are gates:
// empty means the rule is generic for that dimension.
type PricingRule struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	AppliesTo   AppliesTo  `json:"appliesTo"`
	Destination string     `json:"destination,omitempty"`
	Supplier    string     `json:"supplier,omitempty"`
	RuleType    RuleType   `json:"ruleType"`
	Value       float64    `json:"value"`
	Currency    string     `json:"currency"`
	Priority    int        `json:"priority"`
	Active      bool       `json:"active"`
	ValidFrom   *time.Time `json:"validFrom,omitempty"`
	ValidTo     *time.Time `json:"validTo,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Usable reports whether a stored rule row is fit to enter a candidate set.
// Rows failing this are dropped at the store boundary, never defaulted.
func (r PricingRule) Usable() bool {
	if r.ID == uuid.Nil {
		return false
	}
	if !r.AppliesTo.Valid() || !r.RuleType.Valid() {
		return false
	}
	if r.Value < 0 {
		return false
	}
	return true
}

// PricingVersion is one generation of the rule set. At most one version is
// active at any time.
type PricingVersion struct {
	ID        uuid.UUID     `json:"id"`
	Version   int           `json:"version"`
	Status    VersionStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// PriceQuoteItem is one priceable unit supplied by the checkout caller.
// Destination, Supplier and Currency override the quote-level context when set.
type PriceQuoteItem struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title,omitempty"`
	AppliesTo   AppliesTo `json:"appliesTo"`
	BaseCost    float64   `json:"baseCost"`
	Destination string    `json:"destination,omitempty"`
	Supplier    string    `json:"supplier,omitempty"`
	Currency    string    `json:"currency,omitempty"`
}

// PriceQuoteInput is the full request to the quote calculator. When Items is
// empty a single package-type line is synthesized from BaseCost. A zero At
// means "price at the current instant".
type PriceQuoteInput struct {
	Channel     Channel          `json:"channel,omitempty"`
	Currency    string           `json:"currency,omitempty"`
	Destination string           `json:"destination,omitempty"`
	Supplier    string           `json:"supplier,omitempty"`
	BaseCost    float64          `json:"baseCost,omitempty"`
	Items       []PriceQuoteItem `json:"items,omitempty"`
	At          *time.Time       `json:"at,omitempty"`
}

// PriceLine is the priced form of one input item. The Rule* fields are nil
// when no rule matched. CurrencyMismatch flags a matched rule whose currency
// differs from the line's effective currency; no conversion is performed.
type PriceLine struct {
	ItemID           string     `json:"itemId,omitempty"`
	Title            string     `json:"title,omitempty"`
	AppliesTo        AppliesTo  `json:"appliesTo"`
	BaseCost         float64    `json:"baseCost"`
	Markup           float64    `json:"markup"`
	Tax              float64    `json:"tax"`
	Total            float64    `json:"total"`
	RuleID           *uuid.UUID `json:"ruleId,omitempty"`
	RuleName         *string    `json:"ruleName,omitempty"`
	RuleType         *RuleType  `json:"ruleType,omitempty"`
	RuleValue        *float64   `json:"ruleValue,omitempty"`
	CurrencyMismatch bool       `json:"currencyMismatch,omitempty"`
}

// PriceQuoteResult is the priced quote. Version is nil on the degraded path
// (no active version, or the store was unreachable).
type PriceQuoteResult struct {
	Version     *int        `json:"version"`
	Degraded    bool        `json:"degraded,omitempty"`
	Subtotal    float64     `json:"subtotal"`
	Markup      float64     `json:"markup"`
	Taxes       float64     `json:"taxes"`
	Total       float64     `json:"total"`
	Currency    string      `json:"currency"`
	Channel     Channel     `json:"channel"`
	Destination string      `json:"destination,omitempty"`
	Lines       []PriceLine `json:"lines"`
}
