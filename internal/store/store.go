package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wanderlane/pricing-engine/internal/models"
)

var ErrNotFound = errors.New("not found")

// ErrVersionNotDraft is returned when rule linkage is attempted on a version
// that has already been activated or archived.
var ErrVersionNotDraft = errors.New("version is not a draft")

// Store is the persistence boundary for rules and versions. Read-path callers
// treat any error other than ErrNotFound as "store unavailable".
type Store interface {
	ListRules(ctx context.Context, f RuleFilter) ([]models.PricingRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (models.PricingRule, error)
	CreateRule(ctx context.Context, rule models.PricingRule) (models.PricingRule, error)
	UpdateRule(ctx context.Context, id uuid.UUID, upd RuleUpdate) (models.PricingRule, error)
	ToggleRule(ctx context.Context, id uuid.UUID) (models.PricingRule, error)

	GetActiveVersion(ctx context.Context) (models.PricingVersion, error)
	GetVersion(ctx context.Context, id uuid.UUID) (models.PricingVersion, error)
	ListVersions(ctx context.Context) ([]models.PricingVersion, error)
	CreateDraftVersion(ctx context.Context) (models.PricingVersion, error)
	ActivateVersion(ctx context.Context, id uuid.UUID) (models.PricingVersion, error)
	ReplaceVersionRules(ctx context.Context, versionID uuid.UUID, ruleIDs []uuid.UUID) error
	LoadRuleSet(ctx context.Context, versionID uuid.UUID) ([]models.PricingRule, error)

	Ping(ctx context.Context) error
}

// RuleFilter narrows ListRules. Nil fields match everything.
type RuleFilter struct {
	AppliesTo   *models.AppliesTo
	Destination *string
	Active      *bool
}

// RuleUpdate carries a partial rule update. Nil fields are left untouched.
type RuleUpdate struct {
	Name        *string
	AppliesTo   *models.AppliesTo
	Destination *string
	Supplier    *string
	RuleType    *models.RuleType
	Value       *float64
	Currency    *string
	Priority    *int
	Active      *bool
	ValidFrom   *time.Time
	ValidTo     *time.Time
}

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const ruleColumns = `id, name, applies_to, destination, supplier, rule_type, value, currency, priority, active, valid_from, valid_to, created_at`

// scanRules collects usable rule rows. A row that fails to scan or fails
// shape validation is dropped: one corrupt row must not fail an entire quote.
func scanRules(rows *sql.Rows) ([]models.PricingRule, error) {
	defer rows.Close()
	out := []models.PricingRule{}
	for rows.Next() {
		var (
			id        sql.NullString
			name      sql.NullString
			appliesTo sql.NullString
			dest      sql.NullString
			supplier  sql.NullString
			ruleType  sql.NullString
			value     sql.NullFloat64
			currency  sql.NullString
			priority  sql.NullInt64
			active    sql.NullBool
			validFrom sql.NullTime
			validTo   sql.NullTime
			createdAt sql.NullTime
		)
		if err := rows.Scan(&id, &name, &appliesTo, &dest, &supplier, &ruleType,
			&value, &currency, &priority, &active, &validFrom, &validTo, &createdAt); err != nil {
			continue
		}
		rule, ok := buildRule(id, name, appliesTo, dest, supplier, ruleType,
			value, currency, priority, active, validFrom, validTo, createdAt)
		if !ok {
			continue
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

func buildRule(id, name, appliesTo, dest, supplier, ruleType sql.NullString,
	value sql.NullFloat64, currency sql.NullString, priority sql.NullInt64,
	active sql.NullBool, validFrom, validTo, createdAt sql.NullTime) (models.PricingRule, bool) {
	if !id.Valid || !appliesTo.Valid || !ruleType.Valid || !value.Valid {
		return models.PricingRule{}, false
	}
	ruleID, err := uuid.Parse(id.String)
	if err != nil {
		return models.PricingRule{}, false
	}
	rule := models.PricingRule{
		ID:          ruleID,
		Name:        name.String,
		AppliesTo:   models.AppliesTo(appliesTo.String),
		Destination: dest.String,
		Supplier:    supplier.String,
		RuleType:    models.RuleType(ruleType.String),
		Value:       value.Float64,
		Currency:    models.DefaultCurrency,
		Priority:    int(priority.Int64),
		Active:      active.Bool,
		CreatedAt:   createdAt.Time,
	}
	if currency.Valid && currency.String != "" {
		rule.Currency = currency.String
	}
	if validFrom.Valid {
		t := validFrom.Time
		rule.ValidFrom = &t
	}
	if validTo.Valid {
		t := validTo.Time
		rule.ValidTo = &t
	}
	if !rule.Usable() {
		return models.PricingRule{}, false
	}
	return rule, true
}

func (s *PGStore) ListRules(ctx context.Context, f RuleFilter) ([]models.PricingRule, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.AppliesTo != nil {
		args = append(args, string(*f.AppliesTo))
		conds = append(conds, fmt.Sprintf("applies_to = $%d", len(args)))
	}
	if f.Destination != nil {
		args = append(args, *f.Destination)
		conds = append(conds, fmt.Sprintf("LOWER(destination) = LOWER($%d)", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		conds = append(conds, fmt.Sprintf("active = $%d", len(args)))
	}
	query := `SELECT ` + ruleColumns + ` FROM pricing_rules`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY priority ASC, created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return scanRules(rows)
}

func (s *PGStore) GetRule(ctx context.Context, id uuid.UUID) (models.PricingRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM pricing_rules WHERE id = $1`, id)
	if err != nil {
		return models.PricingRule{}, fmt.Errorf("get rule: %w", err)
	}
	rules, err := scanRules(rows)
	if err != nil {
		return models.PricingRule{}, err
	}
	if len(rules) == 0 {
		return models.PricingRule{}, ErrNotFound
	}
	return rules[0], nil
}

func (s *PGStore) CreateRule(ctx context.Context, rule models.PricingRule) (models.PricingRule, error) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.Currency == "" {
		rule.Currency = models.DefaultCurrency
	}
	query := `
		INSERT INTO pricing_rules (id, name, applies_to, destination, supplier, rule_type, value, currency, priority, active, valid_from, valid_to)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := s.db.QueryRowContext(ctx, query, rule.ID, rule.Name, rule.AppliesTo,
		nullString(rule.Destination), nullString(rule.Supplier), rule.RuleType,
		rule.Value, rule.Currency, rule.Priority, rule.Active,
		rule.ValidFrom, rule.ValidTo).Scan(&createdAt); err != nil {
		return models.PricingRule{}, fmt.Errorf("insert rule: %w", err)
	}
	rule.CreatedAt = createdAt
	return rule, nil
}

func (s *PGStore) UpdateRule(ctx context.Context, id uuid.UUID, upd RuleUpdate) (models.PricingRule, error) {
	var (
		sets []string
		args []interface{}
	)
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.AppliesTo != nil {
		set("applies_to", string(*upd.AppliesTo))
	}
	if upd.Destination != nil {
		set("destination", nullString(*upd.Destination))
	}
	if upd.Supplier != nil {
		set("supplier", nullString(*upd.Supplier))
	}
	if upd.RuleType != nil {
		set("rule_type", string(*upd.RuleType))
	}
	if upd.Value != nil {
		set("value", *upd.Value)
	}
	if upd.Currency != nil {
		set("currency", *upd.Currency)
	}
	if upd.Priority != nil {
		set("priority", *upd.Priority)
	}
	if upd.Active != nil {
		set("active", *upd.Active)
	}
	if upd.ValidFrom != nil {
		set("valid_from", *upd.ValidFrom)
	}
	if upd.ValidTo != nil {
		set("valid_to", *upd.ValidTo)
	}
	if len(sets) == 0 {
		return s.GetRule(ctx, id)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE pricing_rules SET %s WHERE id = $%d`,
		strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return models.PricingRule{}, fmt.Errorf("update rule: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.PricingRule{}, ErrNotFound
	}
	return s.GetRule(ctx, id)
}

func (s *PGStore) ToggleRule(ctx context.Context, id uuid.UUID) (models.PricingRule, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pricing_rules SET active = NOT active WHERE id = $1`, id)
	if err != nil {
		return models.PricingRule{}, fmt.Errorf("toggle rule: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.PricingRule{}, ErrNotFound
	}
	return s.GetRule(ctx, id)
}

func (s *PGStore) GetActiveVersion(ctx context.Context) (models.PricingVersion, error) {
	// Tie-break is defensive: the activation transaction keeps the invariant
	// of a single active row, but resolution must stay deterministic anyway.
	const query = `
		SELECT id, version, status, created_at
		FROM pricing_versions
		WHERE status = 'active'
		ORDER BY version DESC, created_at DESC
		LIMIT 1
	`
	var v models.PricingVersion
	err := s.db.QueryRowContext(ctx, query).Scan(&v.ID, &v.Version, &v.Status, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PricingVersion{}, ErrNotFound
		}
		return models.PricingVersion{}, fmt.Errorf("get active version: %w", err)
	}
	return v, nil
}

func (s *PGStore) GetVersion(ctx context.Context, id uuid.UUID) (models.PricingVersion, error) {
	const query = `SELECT id, version, status, created_at FROM pricing_versions WHERE id = $1`
	var v models.PricingVersion
	err := s.db.QueryRowContext(ctx, query, id).Scan(&v.ID, &v.Version, &v.Status, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PricingVersion{}, ErrNotFound
		}
		return models.PricingVersion{}, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

func (s *PGStore) ListVersions(ctx context.Context) ([]models.PricingVersion, error) {
	const query = `SELECT id, version, status, created_at FROM pricing_versions ORDER BY version DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()
	out := []models.PricingVersion{}
	for rows.Next() {
		var v models.PricingVersion
		if err := rows.Scan(&v.ID, &v.Version, &v.Status, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

func (s *PGStore) CreateDraftVersion(ctx context.Context) (models.PricingVersion, error) {
	id := uuid.New()
	query := `
		INSERT INTO pricing_versions (id, version, status)
		VALUES ($1, (SELECT COALESCE(MAX(version), 0) + 1 FROM pricing_versions), 'draft')
		RETURNING version, created_at
	`
	v := models.PricingVersion{ID: id, Status: models.VersionDraft}
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&v.Version, &v.CreatedAt); err != nil {
		return models.PricingVersion{}, fmt.Errorf("create draft version: %w", err)
	}
	return v, nil
}

// ActivateVersion archives every other version and promotes the target in a
// single transaction, then re-verifies the single-active invariant before
// committing. Activating the already-active version is a no-op that succeeds.
func (s *PGStore) ActivateVersion(ctx context.Context, id uuid.UUID) (models.PricingVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.PricingVersion{}, fmt.Errorf("begin activation: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE pricing_versions SET status = 'archived' WHERE status = 'active' AND id <> $1`, id); err != nil {
		return models.PricingVersion{}, fmt.Errorf("archive versions: %w", err)
	}

	var v models.PricingVersion
	err = tx.QueryRowContext(ctx,
		`UPDATE pricing_versions SET status = 'active' WHERE id = $1 RETURNING id, version, status, created_at`, id).
		Scan(&v.ID, &v.Version, &v.Status, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PricingVersion{}, ErrNotFound
		}
		return models.PricingVersion{}, fmt.Errorf("activate version: %w", err)
	}

	var activeCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pricing_versions WHERE status = 'active'`).Scan(&activeCount); err != nil {
		return models.PricingVersion{}, fmt.Errorf("verify activation: %w", err)
	}
	if activeCount != 1 {
		return models.PricingVersion{}, fmt.Errorf("activation postcondition violated: %d active versions", activeCount)
	}

	if err := tx.Commit(); err != nil {
		return models.PricingVersion{}, fmt.Errorf("commit activation: %w", err)
	}
	return v, nil
}

func (s *PGStore) ReplaceVersionRules(ctx context.Context, versionID uuid.UUID, ruleIDs []uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin linkage: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM pricing_versions WHERE id = $1`, versionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get version status: %w", err)
	}
	if models.VersionStatus(status) != models.VersionDraft {
		return ErrVersionNotDraft
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pricing_version_rules WHERE version_id = $1`, versionID); err != nil {
		return fmt.Errorf("clear linkage: %w", err)
	}
	for _, ruleID := range ruleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pricing_version_rules (version_id, rule_id) VALUES ($1, $2)`,
			versionID, ruleID); err != nil {
			return fmt.Errorf("link rule %s: %w", ruleID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit linkage: %w", err)
	}
	return nil
}

// LoadRuleSet returns the candidate rules for a version. When the version has
// linkage rows the set is restricted to linked active rules; otherwise the
// version is treated as unscoped and all active rules are returned.
func (s *PGStore) LoadRuleSet(ctx context.Context, versionID uuid.UUID) ([]models.PricingRule, error) {
	var linked int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pricing_version_rules WHERE version_id = $1`, versionID).Scan(&linked); err != nil {
		return nil, fmt.Errorf("count version rules: %w", err)
	}
	if linked == 0 {
		active := true
		return s.ListRules(ctx, RuleFilter{Active: &active})
	}
	query := `
		SELECT r.` + strings.ReplaceAll(ruleColumns, ", ", ", r.") + `
		FROM pricing_rules r
		JOIN pricing_version_rules vr ON vr.rule_id = r.id
		WHERE vr.version_id = $1 AND r.active = TRUE
		ORDER BY r.priority ASC, r.created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("load version rules: %w", err)
	}
	return scanRules(rows)
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
