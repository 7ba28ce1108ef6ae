package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/wanderlane/pricing-engine/internal/models"
	"github.com/wanderlane/pricing-engine/internal/store"
)

// ErrConfirmationRequired is returned by ActivateVersion when the caller did
// not set confirm. Distinct from not-found so a UI can present a confirmation
// step instead of a generic error.
var ErrConfirmationRequired = errors.New("confirmation required")

// Auditor publishes an audit event for an admin mutation. Publishing is
// best-effort: failures are logged by the service and never fail the write.
type Auditor interface {
	Publish(ctx context.Context, action string, payload interface{}) error
}

// Archiver stores a snapshot of an activated version and its rule set for
// audit history.
type Archiver interface {
	ArchiveVersion(ctx context.Context, version models.PricingVersion, rules []models.PricingRule) error
}

// AdminService owns the write path: rule CRUD and version lifecycle. Unlike
// the quote path it surfaces store failures to the caller; administrative
// writes must not silently no-op.
type AdminService struct {
	store   store.Store
	auditor Auditor
	archive Archiver
}

func New(st store.Store, auditor Auditor, archive Archiver) *AdminService {
	return &AdminService{
		store:   st,
		auditor: auditor,
		archive: archive,
	}
}

type CreateRuleInput struct {
	Name        string           `json:"name"`
	AppliesTo   models.AppliesTo `json:"appliesTo"`
	Destination string           `json:"destination"`
	Supplier    string           `json:"supplier"`
	RuleType    models.RuleType  `json:"ruleType"`
	Value       float64          `json:"value"`
	Currency    string           `json:"currency"`
	Priority    *int             `json:"priority"`
	Active      *bool            `json:"active"`
	ValidFrom   *time.Time       `json:"validFrom"`
	ValidTo     *time.Time       `json:"validTo"`
}

const defaultPriority = 100

func (s *AdminService) CreateRule(ctx context.Context, in CreateRuleInput) (models.PricingRule, error) {
	if in.Name == "" {
		return models.PricingRule{}, models.Invalid("name", "required")
	}
	if !in.AppliesTo.Valid() {
		return models.PricingRule{}, models.Invalid("appliesTo", "unrecognized category")
	}
	if !in.RuleType.Valid() {
		return models.PricingRule{}, models.Invalid("ruleType", "must be percent or fixed")
	}
	if in.Value < 0 {
		return models.PricingRule{}, models.Invalid("value", "must be non-negative")
	}
	if err := validateCurrency(in.Currency); err != nil {
		return models.PricingRule{}, err
	}
	if err := validateWindow(in.ValidFrom, in.ValidTo); err != nil {
		return models.PricingRule{}, err
	}

	rule := models.PricingRule{
		ID:          uuid.New(),
		Name:        in.Name,
		AppliesTo:   in.AppliesTo,
		Destination: in.Destination,
		Supplier:    in.Supplier,
		RuleType:    in.RuleType,
		Value:       in.Value,
		Currency:    in.Currency,
		Priority:    defaultPriority,
		Active:      true,
		ValidFrom:   in.ValidFrom,
		ValidTo:     in.ValidTo,
	}
	if in.Priority != nil {
		rule.Priority = *in.Priority
	}
	if in.Active != nil {
		rule.Active = *in.Active
	}

	created, err := s.store.CreateRule(ctx, rule)
	if err != nil {
		return models.PricingRule{}, err
	}
	s.emit(ctx, "rule.created", created)
	return created, nil
}

func (s *AdminService) UpdateRule(ctx context.Context, id uuid.UUID, upd store.RuleUpdate) (models.PricingRule, error) {
	if upd.AppliesTo != nil && !upd.AppliesTo.Valid() {
		return models.PricingRule{}, models.Invalid("appliesTo", "unrecognized category")
	}
	if upd.RuleType != nil && !upd.RuleType.Valid() {
		return models.PricingRule{}, models.Invalid("ruleType", "must be percent or fixed")
	}
	if upd.Value != nil && *upd.Value < 0 {
		return models.PricingRule{}, models.Invalid("value", "must be non-negative")
	}
	if upd.Currency != nil {
		if err := validateCurrency(*upd.Currency); err != nil {
			return models.PricingRule{}, err
		}
	}
	if err := validateWindow(upd.ValidFrom, upd.ValidTo); err != nil {
		return models.PricingRule{}, err
	}

	updated, err := s.store.UpdateRule(ctx, id, upd)
	if err != nil {
		return models.PricingRule{}, err
	}
	s.emit(ctx, "rule.updated", updated)
	return updated, nil
}

func (s *AdminService) ToggleRule(ctx context.Context, id uuid.UUID) (models.PricingRule, error) {
	rule, err := s.store.ToggleRule(ctx, id)
	if err != nil {
		return models.PricingRule{}, err
	}
	s.emit(ctx, "rule.toggled", rule)
	return rule, nil
}

func (s *AdminService) ListRules(ctx context.Context, f store.RuleFilter) ([]models.PricingRule, error) {
	return s.store.ListRules(ctx, f)
}

func (s *AdminService) ListVersions(ctx context.Context) ([]models.PricingVersion, error) {
	return s.store.ListVersions(ctx)
}

func (s *AdminService) GetVersion(ctx context.Context, id uuid.UUID) (models.PricingVersion, error) {
	return s.store.GetVersion(ctx, id)
}

func (s *AdminService) VersionRules(ctx context.Context, id uuid.UUID) ([]models.PricingRule, error) {
	if _, err := s.store.GetVersion(ctx, id); err != nil {
		return nil, err
	}
	return s.store.LoadRuleSet(ctx, id)
}

func (s *AdminService) CreateDraftVersion(ctx context.Context) (models.PricingVersion, error) {
	version, err := s.store.CreateDraftVersion(ctx)
	if err != nil {
		return models.PricingVersion{}, err
	}
	s.emit(ctx, "version.created", version)
	return version, nil
}

// ActivateVersion promotes a version to active after an explicit confirm.
// The swap itself is atomic in the store; on success the new snapshot is
// archived and an audit event emitted, both best-effort.
func (s *AdminService) ActivateVersion(ctx context.Context, id uuid.UUID, confirm bool) (models.PricingVersion, error) {
	if !confirm {
		return models.PricingVersion{}, ErrConfirmationRequired
	}
	version, err := s.store.ActivateVersion(ctx, id)
	if err != nil {
		return models.PricingVersion{}, err
	}
	s.emit(ctx, "version.activated", version)
	if s.archive != nil {
		rules, err := s.store.LoadRuleSet(ctx, version.ID)
		if err != nil {
			log.Printf("audit: load rule set for snapshot: %v", err)
		} else if err := s.archive.ArchiveVersion(ctx, version, rules); err != nil {
			log.Printf("audit: archive version snapshot: %v", err)
		}
	}
	return version, nil
}

func (s *AdminService) ReplaceVersionRules(ctx context.Context, id uuid.UUID, ruleIDs []uuid.UUID) error {
	if err := s.store.ReplaceVersionRules(ctx, id, ruleIDs); err != nil {
		return err
	}
	s.emit(ctx, "version.rules_replaced", map[string]interface{}{
		"versionId": id,
		"ruleIds":   ruleIDs,
	})
	return nil
}

func (s *AdminService) emit(ctx context.Context, action string, payload interface{}) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Publish(ctx, action, payload); err != nil {
		log.Printf("audit: publish %s: %v", action, err)
	}
}

func validateCurrency(code string) error {
	if code == "" {
		return nil
	}
	if len(code) != 3 {
		return models.Invalid("currency", "must be a 3-letter code")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return models.Invalid("currency", "must be a 3-letter code")
		}
	}
	return nil
}

func validateWindow(from, to *time.Time) error {
	if from != nil && to != nil && to.Before(*from) {
		return models.Invalid("validTo", "must not precede validFrom")
	}
	return nil
}
