package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/wanderlane/pricing-engine/internal/models"
	"github.com/wanderlane/pricing-engine/internal/store"
)

var ruleCols = []string{"id", "name", "applies_to", "destination", "supplier", "rule_type",
	"value", "currency", "priority", "active", "valid_from", "valid_to", "created_at"}

func newMock(t *testing.T) (*store.PGStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	return store.NewPGStore(db), mock, func() { db.Close() }
}

func TestListRulesDropsCorruptRows(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	now := time.Now().UTC()
	good := uuid.New()
	rows := sqlmock.NewRows(ruleCols).
		AddRow(good.String(), "Generic markup", "package", nil, nil, "percent", 10.0, "INR", 100, true, nil, nil, now).
		// unrecognized applies_to must be dropped, not defaulted
		AddRow(uuid.New().String(), "Bad category", "timeshare", nil, nil, "percent", 5.0, "INR", 10, true, nil, nil, now).
		// negative value violates the rule invariant
		AddRow(uuid.New().String(), "Bad value", "hotel", nil, nil, "fixed", -3.0, "INR", 10, true, nil, nil, now).
		// unparseable id
		AddRow("not-a-uuid", "Bad id", "hotel", nil, nil, "fixed", 3.0, "INR", 10, true, nil, nil, now)

	mock.ExpectQuery("FROM pricing_rules").WillReturnRows(rows)

	rules, err := st.ListRules(context.Background(), store.RuleFilter{})
	assert.NoError(t, err)
	assert.Len(t, rules, 1)
	assert.Equal(t, good, rules[0].ID)
	assert.Equal(t, "Generic markup", rules[0].Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRulesDefaultsCurrency(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	rows := sqlmock.NewRows(ruleCols).
		AddRow(uuid.New().String(), "No currency", "visa", nil, nil, "fixed", 500.0, nil, 10, true, nil, nil, time.Now().UTC())
	mock.ExpectQuery("FROM pricing_rules").WillReturnRows(rows)

	rules, err := st.ListRules(context.Background(), store.RuleFilter{})
	assert.NoError(t, err)
	assert.Len(t, rules, 1)
	assert.Equal(t, models.DefaultCurrency, rules[0].Currency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveVersion(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	id := uuid.New()
	created := time.Now().UTC()
	mock.ExpectQuery("FROM pricing_versions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "status", "created_at"}).
			AddRow(id.String(), 7, "active", created))

	v, err := st.GetActiveVersion(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, id, v.ID)
	assert.Equal(t, 7, v.Version)
	assert.Equal(t, models.VersionActive, v.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveVersionNone(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery("FROM pricing_versions").WillReturnError(sql.ErrNoRows)

	_, err := st.GetActiveVersion(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateVersionTransaction(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	id := uuid.New()
	created := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE pricing_versions SET status = 'archived'").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE pricing_versions SET status = 'active'").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "status", "created_at"}).
			AddRow(id.String(), 2, "active", created))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	v, err := st.ActivateVersion(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, models.VersionActive, v.Status)
	assert.Equal(t, 2, v.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateVersionNotFound(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE pricing_versions SET status = 'archived'").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("UPDATE pricing_versions SET status = 'active'").
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := st.ActivateVersion(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateVersionPostconditionViolation(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE pricing_versions SET status = 'archived'").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE pricing_versions SET status = 'active'").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "status", "created_at"}).
			AddRow(id.String(), 2, "active", time.Now().UTC()))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := st.ActivateVersion(context.Background(), id)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDraftVersionAllocatesNextNumber(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	created := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO pricing_versions").
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at"}).AddRow(4, created))

	v, err := st.CreateDraftVersion(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 4, v.Version)
	assert.Equal(t, models.VersionDraft, v.Status)
	assert.NotEqual(t, uuid.Nil, v.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRuleSetFallsBackWhenUnlinked(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	versionID := uuid.New()
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(versionID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	// No linkage rows: the version is unscoped, all active rules apply.
	mock.ExpectQuery("FROM pricing_rules").
		WillReturnRows(sqlmock.NewRows(ruleCols).
			AddRow(uuid.New().String(), "Generic", "package", nil, nil, "percent", 10.0, "INR", 100, true, nil, nil, time.Now().UTC()))

	rules, err := st.LoadRuleSet(context.Background(), versionID)
	assert.NoError(t, err)
	assert.Len(t, rules, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRuleSetScopedWhenLinked(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	versionID := uuid.New()
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(versionID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("JOIN pricing_version_rules").
		WithArgs(versionID).
		WillReturnRows(sqlmock.NewRows(ruleCols).
			AddRow(uuid.New().String(), "Linked A", "hotel", nil, nil, "percent", 5.0, "INR", 10, true, nil, nil, time.Now().UTC()).
			AddRow(uuid.New().String(), "Linked B", "hotel", nil, nil, "fixed", 100.0, "INR", 20, true, nil, nil, time.Now().UTC()))

	rules, err := st.LoadRuleSet(context.Background(), versionID)
	assert.NoError(t, err)
	assert.Len(t, rules, 2)
	assert.Equal(t, "Linked A", rules[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleRuleNotFound(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	id := uuid.New()
	mock.ExpectExec("UPDATE pricing_rules SET active").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := st.ToggleRule(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
