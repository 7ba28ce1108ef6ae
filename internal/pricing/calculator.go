package pricing

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wanderlane/pricing-engine/internal/models"
)

// RuleSource is the slice of the store the calculator reads. Any error other
// than a clean "no active version" is treated as store-unavailable and
// recovered into a degraded quote; pricing sits on the checkout critical path
// and must never hard-fail it.
type RuleSource interface {
	GetActiveVersion(ctx context.Context) (models.PricingVersion, error)
	LoadRuleSet(ctx context.Context, versionID uuid.UUID) ([]models.PricingRule, error)
}

type Calculator struct {
	src          RuleSource
	storeTimeout time.Duration
	now          func() time.Time
}

const defaultStoreTimeout = 5 * time.Second

func NewCalculator(src RuleSource, storeTimeout time.Duration) *Calculator {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Calculator{
		src:          src,
		storeTimeout: storeTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// PriceQuote computes a quote. It never returns an error: when no version is
// active or the store is unreachable, every line degrades to raw base cost
// with a nil version.
func (c *Calculator) PriceQuote(ctx context.Context, in models.PriceQuoteInput) models.PriceQuoteResult {
	if !in.Channel.Valid() {
		in.Channel = models.ChannelB2C
	}
	if in.Currency == "" {
		in.Currency = models.DefaultCurrency
	}
	at := c.now()
	if in.At != nil && !in.At.IsZero() {
		at = in.At.UTC()
	}
	items := in.Items
	if len(items) == 0 {
		items = []models.PriceQuoteItem{{
			Title:     "Package",
			AppliesTo: models.AppliesToPackage,
			BaseCost:  in.BaseCost,
		}}
	}

	version, rules, ok := c.loadSnapshot(ctx)
	if !ok {
		return c.assemble(in, items, nil, nil, at)
	}
	return c.assemble(in, items, &version, rules, at)
}

// loadSnapshot resolves the active version and its rule set once per quote so
// every line sees the same snapshot even if rules change mid-call.
func (c *Calculator) loadSnapshot(ctx context.Context) (models.PricingVersion, []models.PricingRule, bool) {
	vctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	version, err := c.src.GetActiveVersion(vctx)
	if err != nil {
		return models.PricingVersion{}, nil, false
	}
	rctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	rules, err := c.src.LoadRuleSet(rctx, version.ID)
	if err != nil {
		return models.PricingVersion{}, nil, false
	}
	return version, rules, true
}

func (c *Calculator) assemble(in models.PriceQuoteInput, items []models.PriceQuoteItem,
	version *models.PricingVersion, rules []models.PricingRule, at time.Time) models.PriceQuoteResult {
	result := models.PriceQuoteResult{
		Currency:    in.Currency,
		Channel:     in.Channel,
		Destination: in.Destination,
		Lines:       make([]models.PriceLine, 0, len(items)),
	}
	if version != nil {
		v := version.Version
		result.Version = &v
	} else {
		result.Degraded = true
	}

	var subtotal, markup, taxes float64
	for _, item := range items {
		line := priceLine(item, in, rules, at)
		subtotal += line.BaseCost
		markup += line.Markup
		taxes += line.Tax
		result.Lines = append(result.Lines, line)
	}
	result.Subtotal = Round2(subtotal)
	result.Markup = Round2(markup)
	result.Taxes = Round2(taxes)
	result.Total = Round2(result.Subtotal + result.Markup + result.Taxes)
	return result
}

func priceLine(item models.PriceQuoteItem, in models.PriceQuoteInput,
	rules []models.PricingRule, at time.Time) models.PriceLine {
	base := item.BaseCost
	if base < 0 {
		base = 0
	}
	base = Round2(base)

	line := models.PriceLine{
		ItemID:    item.ID,
		Title:     item.Title,
		AppliesTo: item.AppliesTo,
		BaseCost:  base,
		Tax:       0, // reserved; taxes are a passthrough for now
	}

	rule, ok := Match(rules, Candidate{
		AppliesTo:   item.AppliesTo,
		Destination: firstNonEmpty(item.Destination, in.Destination),
		Supplier:    firstNonEmpty(item.Supplier, in.Supplier),
	}, at)
	if ok {
		var amount float64
		switch rule.RuleType {
		case models.RuleTypePercent:
			amount = base * rule.Value / 100
		case models.RuleTypeFixed:
			amount = rule.Value
		}
		if amount < 0 {
			amount = 0
		}
		line.Markup = Round2(amount)
		ruleID := rule.ID
		ruleName := rule.Name
		ruleType := rule.RuleType
		ruleValue := rule.Value
		line.RuleID = &ruleID
		line.RuleName = &ruleName
		line.RuleType = &ruleType
		line.RuleValue = &ruleValue
		// Cross-currency application is flagged, not converted.
		lineCurrency := firstNonEmpty(item.Currency, in.Currency)
		if !strings.EqualFold(rule.Currency, lineCurrency) {
			line.CurrencyMismatch = true
		}
	}
	line.Total = Round2(base + line.Markup + line.Tax)
	return line
}

// Round2 rounds half away from zero to 2 decimal places. Applied at the line
// level before summation so aggregates never drift from displayed lines.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
