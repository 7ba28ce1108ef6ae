package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/wanderlane/pricing-engine/internal/models"
	"github.com/wanderlane/pricing-engine/internal/service"
	"github.com/wanderlane/pricing-engine/internal/store"
)

type fakeAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeAuditor) Publish(ctx context.Context, action string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

type fakeArchiver struct {
	versions []models.PricingVersion
	rules    [][]models.PricingRule
}

func (f *fakeArchiver) ArchiveVersion(ctx context.Context, v models.PricingVersion, rules []models.PricingRule) error {
	f.versions = append(f.versions, v)
	f.rules = append(f.rules, rules)
	return nil
}

func newService(t *testing.T) (*service.AdminService, *store.MemoryStore, *fakeAuditor, *fakeArchiver) {
	t.Helper()
	st := store.NewMemoryStore()
	auditor := &fakeAuditor{}
	archiver := &fakeArchiver{}
	return service.New(st, auditor, archiver), st, auditor, archiver
}

func TestCreateRuleValidation(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    service.CreateRuleInput
		field string
	}{
		{
			name:  "missing name",
			in:    service.CreateRuleInput{AppliesTo: models.AppliesToHotel, RuleType: models.RuleTypePercent},
			field: "name",
		},
		{
			name:  "bad category",
			in:    service.CreateRuleInput{Name: "x", AppliesTo: "timeshare", RuleType: models.RuleTypePercent},
			field: "appliesTo",
		},
		{
			name:  "bad rule type",
			in:    service.CreateRuleInput{Name: "x", AppliesTo: models.AppliesToHotel, RuleType: "divide"},
			field: "ruleType",
		},
		{
			name:  "negative value",
			in:    service.CreateRuleInput{Name: "x", AppliesTo: models.AppliesToHotel, RuleType: models.RuleTypeFixed, Value: -1},
			field: "value",
		},
		{
			name:  "bad currency",
			in:    service.CreateRuleInput{Name: "x", AppliesTo: models.AppliesToHotel, RuleType: models.RuleTypeFixed, Currency: "rupees"},
			field: "currency",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRule(ctx, tc.in)
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestCreateRuleWindowValidation(t *testing.T) {
	svc, _, _, _ := newService(t)
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(-24 * time.Hour)

	_, err := svc.CreateRule(context.Background(), service.CreateRuleInput{
		Name:      "Backwards window",
		AppliesTo: models.AppliesToActivity,
		RuleType:  models.RuleTypePercent,
		Value:     5,
		ValidFrom: &from,
		ValidTo:   &to,
	})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	assert.Equal(t, "validTo", verr.Field)
}

func TestCreateRuleDefaults(t *testing.T) {
	svc, _, auditor, _ := newService(t)

	rule, err := svc.CreateRule(context.Background(), service.CreateRuleInput{
		Name:      "Hotel markup",
		AppliesTo: models.AppliesToHotel,
		RuleType:  models.RuleTypePercent,
		Value:     12,
	})
	assert.NoError(t, err)
	assert.Equal(t, 100, rule.Priority)
	assert.True(t, rule.Active)
	assert.Equal(t, models.DefaultCurrency, rule.Currency)
	assert.Contains(t, auditor.actions, "rule.created")
}

func TestActivateVersionRequiresConfirm(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()

	draft, err := svc.CreateDraftVersion(ctx)
	assert.NoError(t, err)

	_, err = svc.ActivateVersion(ctx, draft.ID, false)
	assert.ErrorIs(t, err, service.ErrConfirmationRequired)

	// No state change: the version is still a draft and nothing is active.
	got, err := st.GetVersion(ctx, draft.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.VersionDraft, got.Status)
	_, err = st.GetActiveVersion(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestActivateVersionArchivesPrevious(t *testing.T) {
	svc, st, auditor, archiver := newService(t)
	ctx := context.Background()

	v1, err := svc.CreateDraftVersion(ctx)
	assert.NoError(t, err)
	_, err = svc.ActivateVersion(ctx, v1.ID, true)
	assert.NoError(t, err)

	v2, err := svc.CreateDraftVersion(ctx)
	assert.NoError(t, err)
	assert.Equal(t, v1.Version+1, v2.Version)

	activated, err := svc.ActivateVersion(ctx, v2.ID, true)
	assert.NoError(t, err)
	assert.Equal(t, models.VersionActive, activated.Status)

	prev, err := st.GetVersion(ctx, v1.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.VersionArchived, prev.Status)

	active, err := st.GetActiveVersion(ctx)
	assert.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)

	assert.Contains(t, auditor.actions, "version.activated")
	assert.Len(t, archiver.versions, 2)
}

func TestReactivateActiveVersionIsNoOp(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()

	v, err := svc.CreateDraftVersion(ctx)
	assert.NoError(t, err)
	_, err = svc.ActivateVersion(ctx, v.ID, true)
	assert.NoError(t, err)
	_, err = svc.ActivateVersion(ctx, v.ID, true)
	assert.NoError(t, err)

	versions, err := st.ListVersions(ctx)
	assert.NoError(t, err)
	activeCount := 0
	for _, version := range versions {
		if version.Status == models.VersionActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestReplaceVersionRulesOnlyOnDrafts(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, service.CreateRuleInput{
		Name:      "Scoped",
		AppliesTo: models.AppliesToPackage,
		RuleType:  models.RuleTypePercent,
		Value:     10,
	})
	assert.NoError(t, err)

	draft, err := svc.CreateDraftVersion(ctx)
	assert.NoError(t, err)
	assert.NoError(t, svc.ReplaceVersionRules(ctx, draft.ID, []uuid.UUID{rule.ID}))

	_, err = svc.ActivateVersion(ctx, draft.ID, true)
	assert.NoError(t, err)

	err = svc.ReplaceVersionRules(ctx, draft.ID, nil)
	assert.ErrorIs(t, err, store.ErrVersionNotDraft)
}

func TestToggleRuleFlipsActive(t *testing.T) {
	svc, _, auditor, _ := newService(t)
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, service.CreateRuleInput{
		Name:      "Flippable",
		AppliesTo: models.AppliesToTransfer,
		RuleType:  models.RuleTypeFixed,
		Value:     50,
	})
	assert.NoError(t, err)
	assert.True(t, rule.Active)

	toggled, err := svc.ToggleRule(ctx, rule.ID)
	assert.NoError(t, err)
	assert.False(t, toggled.Active)
	assert.Contains(t, auditor.actions, "rule.toggled")
}

func TestUpdateRuleValidatesPatch(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, service.CreateRuleInput{
		Name:      "Editable",
		AppliesTo: models.AppliesToHotel,
		RuleType:  models.RuleTypePercent,
		Value:     5,
	})
	assert.NoError(t, err)

	bad := -2.0
	_, err = svc.UpdateRule(ctx, rule.ID, store.RuleUpdate{Value: &bad})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	assert.Equal(t, "value", verr.Field)

	good := 7.5
	updated, err := svc.UpdateRule(ctx, rule.ID, store.RuleUpdate{Value: &good})
	assert.NoError(t, err)
	assert.Equal(t, 7.5, updated.Value)
}
