package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-orchestrator/internal/models"
)

func testAlert() *models.BudgetAlert {
	return &models.BudgetAlert{
		ID:         "a-1",
		MerchantID: "m-1",
		Threshold:  80,
		Message:    "LLM spend reached 80% of the $100.00 monthly budget ($85.0000 used)",
		Period:     "2026-08",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestAlertRepoCreateOnceInserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	alert := testAlert()
	mock.ExpectExec("INSERT INTO budget_alerts").
		WithArgs(alert.ID, alert.MerchantID, alert.Threshold, alert.Message, alert.Period,
			alert.Read, alert.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAlertRepo(db)
	created, err := repo.CreateOnce(context.Background(), alert)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestAlertRepoCreateOnceConflictIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO budget_alerts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewAlertRepo(db)
	created, err := repo.CreateOnce(context.Background(), testAlert())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestAlertRepoUnread(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM budget_alerts").
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "merchant_id", "threshold", "message", "period", "read", "created_at"}).
			AddRow("a-2", "m-1", 100, "budget exhausted", "2026-08", false, now).
			AddRow("a-1", "m-1", 80, "approaching budget", "2026-08", false, now.Add(-time.Hour)))

	repo := NewAlertRepo(db)
	alerts, err := repo.Unread(context.Background(), "m-1")
	require.NoError(t, err)

	require.Len(t, alerts, 2)
	assert.Equal(t, 100, alerts[0].Threshold)
	assert.False(t, alerts[1].Read)
}

func TestAlertRepoMarkRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE budget_alerts SET read = true").
		WithArgs("a-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAlertRepo(db)
	require.NoError(t, repo.MarkRead(context.Background(), "a-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerchantRepoFindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "name", "monthly_budget_usd", "primary_provider", "backup_provider", "model_override", "handoff_keywords"}
	mock.ExpectQuery("SELECT (.+) FROM merchants WHERE id").
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("m-1", "Acme Shoes", 150.0, "openai", "groq", nil, `{atendente,"falar com humano"}`))

	repo := NewMerchantRepo(db)
	merchant, err := repo.FindByID(context.Background(), "m-1")
	require.NoError(t, err)

	assert.Equal(t, "Acme Shoes", merchant.Name)
	assert.Equal(t, 150.0, merchant.MonthlyBudgetUSD)
	assert.Equal(t, "groq", merchant.BackupProvider)
	assert.Empty(t, merchant.ModelOverride)
	assert.Equal(t, []string{"atendente", "falar com humano"}, merchant.HandoffKeywords)
}

func TestMerchantRepoFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "name", "monthly_budget_usd", "primary_provider", "backup_provider", "model_override", "handoff_keywords"}
	mock.ExpectQuery("SELECT (.+) FROM merchants WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cols))

	repo := NewMerchantRepo(db)
	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
