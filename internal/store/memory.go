package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wanderlane/pricing-engine/internal/models"
)

// MemoryStore provides an in-memory implementation useful for tests.
type MemoryStore struct {
	mu          sync.RWMutex
	rules       map[uuid.UUID]models.PricingRule
	versions    map[uuid.UUID]models.PricingVersion
	links       map[uuid.UUID][]uuid.UUID
	nextVersion int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:    map[uuid.UUID]models.PricingRule{},
		versions: map[uuid.UUID]models.PricingVersion{},
		links:    map[uuid.UUID][]uuid.UUID{},
	}
}

func sortRules(rules []models.PricingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}

func matchesFilter(rule models.PricingRule, f RuleFilter) bool {
	if f.AppliesTo != nil && rule.AppliesTo != *f.AppliesTo {
		return false
	}
	if f.Destination != nil && !strings.EqualFold(rule.Destination, *f.Destination) {
		return false
	}
	if f.Active != nil && rule.Active != *f.Active {
		return false
	}
	return true
}

func (m *MemoryStore) ListRules(ctx context.Context, f RuleFilter) ([]models.PricingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.PricingRule{}
	for _, rule := range m.rules {
		if !rule.Usable() {
			continue
		}
		if matchesFilter(rule, f) {
			out = append(out, rule)
		}
	}
	sortRules(out)
	return out, nil
}

func (m *MemoryStore) GetRule(ctx context.Context, id uuid.UUID) (models.PricingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.rules[id]
	if !ok {
		return models.PricingRule{}, ErrNotFound
	}
	return rule, nil
}

func (m *MemoryStore) CreateRule(ctx context.Context, rule models.PricingRule) (models.PricingRule, error) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.Currency == "" {
		rule.Currency = models.DefaultCurrency
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *MemoryStore) UpdateRule(ctx context.Context, id uuid.UUID, upd RuleUpdate) (models.PricingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return models.PricingRule{}, ErrNotFound
	}
	if upd.Name != nil {
		rule.Name = *upd.Name
	}
	if upd.AppliesTo != nil {
		rule.AppliesTo = *upd.AppliesTo
	}
	if upd.Destination != nil {
		rule.Destination = *upd.Destination
	}
	if upd.Supplier != nil {
		rule.Supplier = *upd.Supplier
	}
	if upd.RuleType != nil {
		rule.RuleType = *upd.RuleType
	}
	if upd.Value != nil {
		rule.Value = *upd.Value
	}
	if upd.Currency != nil {
		rule.Currency = *upd.Currency
	}
	if upd.Priority != nil {
		rule.Priority = *upd.Priority
	}
	if upd.Active != nil {
		rule.Active = *upd.Active
	}
	if upd.ValidFrom != nil {
		t := *upd.ValidFrom
		rule.ValidFrom = &t
	}
	if upd.ValidTo != nil {
		t := *upd.ValidTo
		rule.ValidTo = &t
	}
	m.rules[id] = rule
	return rule, nil
}

func (m *MemoryStore) ToggleRule(ctx context.Context, id uuid.UUID) (models.PricingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return models.PricingRule{}, ErrNotFound
	}
	rule.Active = !rule.Active
	m.rules[id] = rule
	return rule, nil
}

func (m *MemoryStore) GetActiveVersion(ctx context.Context) (models.PricingVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		found  bool
		active models.PricingVersion
	)
	for _, v := range m.versions {
		if v.Status != models.VersionActive {
			continue
		}
		if !found || v.Version > active.Version ||
			(v.Version == active.Version && v.CreatedAt.After(active.CreatedAt)) {
			active = v
			found = true
		}
	}
	if !found {
		return models.PricingVersion{}, ErrNotFound
	}
	return active, nil
}

func (m *MemoryStore) GetVersion(ctx context.Context, id uuid.UUID) (models.PricingVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.versions[id]
	if !ok {
		return models.PricingVersion{}, ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) ListVersions(ctx context.Context) ([]models.PricingVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.PricingVersion{}
	for _, v := range m.versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (m *MemoryStore) CreateDraftVersion(ctx context.Context) (models.PricingVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextVersion++
	v := models.PricingVersion{
		ID:        uuid.New(),
		Version:   m.nextVersion,
		Status:    models.VersionDraft,
		CreatedAt: time.Now().UTC(),
	}
	m.versions[v.ID] = v
	return v, nil
}

func (m *MemoryStore) ActivateVersion(ctx context.Context, id uuid.UUID) (models.PricingVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.versions[id]
	if !ok {
		return models.PricingVersion{}, ErrNotFound
	}
	for vid, v := range m.versions {
		if vid != id && v.Status == models.VersionActive {
			v.Status = models.VersionArchived
			m.versions[vid] = v
		}
	}
	target.Status = models.VersionActive
	m.versions[id] = target
	return target, nil
}

func (m *MemoryStore) ReplaceVersionRules(ctx context.Context, versionID uuid.UUID, ruleIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok {
		return ErrNotFound
	}
	if v.Status != models.VersionDraft {
		return ErrVersionNotDraft
	}
	m.links[versionID] = append([]uuid.UUID(nil), ruleIDs...)
	return nil
}

func (m *MemoryStore) LoadRuleSet(ctx context.Context, versionID uuid.UUID) ([]models.PricingRule, error) {
	m.mu.RLock()
	linked := m.links[versionID]
	m.mu.RUnlock()
	if len(linked) == 0 {
		active := true
		return m.ListRules(ctx, RuleFilter{Active: &active})
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.PricingRule{}
	for _, id := range linked {
		rule, ok := m.rules[id]
		if !ok || !rule.Active || !rule.Usable() {
			continue
		}
		out = append(out, rule)
	}
	sortRules(out)
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
