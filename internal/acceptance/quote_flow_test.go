package acceptance

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/wanderlane/pricing-engine/internal/models"
	"github.com/wanderlane/pricing-engine/internal/pricing"
	"github.com/wanderlane/pricing-engine/internal/service"
	"github.com/wanderlane/pricing-engine/internal/store"
)

func TestQuoteLifecycleFlow(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	admin := service.New(mem, nil, nil)
	calc := pricing.NewCalculator(mem, 0)

	// Before any version exists, checkout still gets a usable quote.
	quote := calc.PriceQuote(ctx, models.PriceQuoteInput{BaseCost: 50000, Destination: "Dubai"})
	if quote.Version != nil {
		t.Fatalf("expected nil version before activation, got %v", *quote.Version)
	}
	if quote.Total != 50000 {
		t.Fatalf("expected raw cost total, got %v", quote.Total)
	}

	generic, err := admin.CreateRule(ctx, service.CreateRuleInput{
		Name:      "Generic package markup",
		AppliesTo: models.AppliesToPackage,
		RuleType:  models.RuleTypePercent,
		Value:     10,
		Priority:  intPtr(200),
	})
	if err != nil {
		t.Fatalf("create generic rule: %v", err)
	}
	dubai, err := admin.CreateRule(ctx, service.CreateRuleInput{
		Name:        "Dubai package fee",
		AppliesTo:   models.AppliesToPackage,
		Destination: "Dubai",
		RuleType:    models.RuleTypeFixed,
		Value:       2000,
		Priority:    intPtr(50),
	})
	if err != nil {
		t.Fatalf("create dubai rule: %v", err)
	}

	v1, err := admin.CreateDraftVersion(ctx)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := admin.ActivateVersion(ctx, v1.ID, true); err != nil {
		t.Fatalf("activate v1: %v", err)
	}

	quote = calc.PriceQuote(ctx, models.PriceQuoteInput{BaseCost: 50000, Destination: "Dubai"})
	if quote.Version == nil || *quote.Version != v1.Version {
		t.Fatalf("expected version %d on quote, got %v", v1.Version, quote.Version)
	}
	if quote.Total != 52000 {
		t.Fatalf("expected 52000 for Dubai, got %v", quote.Total)
	}
	if quote.Lines[0].RuleID == nil || *quote.Lines[0].RuleID != dubai.ID {
		t.Fatalf("expected the Dubai fee to win on priority")
	}

	quote = calc.PriceQuote(ctx, models.PriceQuoteInput{BaseCost: 50000, Destination: "Singapore"})
	if quote.Total != 55000 {
		t.Fatalf("expected 55000 for Singapore, got %v", quote.Total)
	}

	// A draft scoped to just the generic rule drops the Dubai fee once active.
	v2, err := admin.CreateDraftVersion(ctx)
	if err != nil {
		t.Fatalf("create draft v2: %v", err)
	}
	if err := admin.ReplaceVersionRules(ctx, v2.ID, []uuid.UUID{generic.ID}); err != nil {
		t.Fatalf("link rules: %v", err)
	}
	if _, err := admin.ActivateVersion(ctx, v2.ID, true); err != nil {
		t.Fatalf("activate v2: %v", err)
	}

	prev, err := mem.GetVersion(ctx, v1.ID)
	if err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if prev.Status != models.VersionArchived {
		t.Fatalf("expected v1 archived, got %s", prev.Status)
	}

	quote = calc.PriceQuote(ctx, models.PriceQuoteInput{BaseCost: 50000, Destination: "Dubai"})
	if quote.Version == nil || *quote.Version != v2.Version {
		t.Fatalf("expected version %d, got %v", v2.Version, quote.Version)
	}
	if quote.Total != 55000 {
		t.Fatalf("expected generic markup under scoped version, got %v", quote.Total)
	}
	if quote.Lines[0].RuleID == nil || *quote.Lines[0].RuleID != generic.ID {
		t.Fatalf("expected the generic rule under the scoped version")
	}

	// Toggling the generic rule off leaves nothing to match.
	if _, err := admin.ToggleRule(ctx, generic.ID); err != nil {
		t.Fatalf("toggle rule: %v", err)
	}
	quote = calc.PriceQuote(ctx, models.PriceQuoteInput{BaseCost: 50000, Destination: "Dubai"})
	if quote.Total != 50000 {
		t.Fatalf("expected raw cost after disabling rules, got %v", quote.Total)
	}
	if quote.Version == nil {
		t.Fatalf("an active version with no matching rules is not the degraded path")
	}
}

func intPtr(v int) *int { return &v }
