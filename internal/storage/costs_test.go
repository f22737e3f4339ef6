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

func TestCostRepoAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := &models.CostRecord{
		ID:               "r-1",
		ConversationID:   "c-1",
		MerchantID:       "m-1",
		Provider:         "openai",
		Model:            "gpt-4o-mini",
		PromptTokens:     1000,
		CompletionTokens: 500,
		TotalTokens:      1500,
		InputCost:        0.00015,
		OutputCost:       0.0003,
		TotalCost:        0.00045,
		ProcessingMS:     820,
		CreatedAt:        time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO cost_records").
		WithArgs(rec.ID, rec.ConversationID, rec.MerchantID, rec.Provider, rec.Model,
			rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
			rec.InputCost, rec.OutputCost, rec.TotalCost, rec.ProcessingMS, rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewCostRepo(db)
	require.NoError(t, repo.Append(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRepoMonthlySpend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(total_cost\\), 0\\)").
		WithArgs("m-1", "2026-08").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(12.3456))

	repo := NewCostRepo(db)
	spend, err := repo.MonthlySpend(context.Background(), "m-1", "2026-08")
	require.NoError(t, err)
	assert.InDelta(t, 12.3456, spend, 1e-9)
}

func TestCostRepoConversationTotalEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(total_cost\\), 0\\)").
		WithArgs("c-none").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0.0))

	repo := NewCostRepo(db)
	total, err := repo.ConversationTotal(context.Background(), "c-none")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCostRepoActiveMerchants(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT DISTINCT merchant_id").
		WithArgs("2026-08").
		WillReturnRows(sqlmock.NewRows([]string{"merchant_id"}).
			AddRow("m-1").
			AddRow("m-2"))

	repo := NewCostRepo(db)
	ids, err := repo.ActiveMerchants(context.Background(), "2026-08")
	require.NoError(t, err)
	assert.Equal(t, []string{"m-1", "m-2"}, ids)
}

func TestCostRepoProviderBreakdown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT provider, (.+) GROUP BY provider").
		WithArgs("m-1", "2026-08").
		WillReturnRows(sqlmock.NewRows([]string{"provider", "tokens", "cost", "requests"}).
			AddRow("groq", int64(125000), 0.012, int64(40)).
			AddRow("openai", int64(90000), 0.45, int64(61)))

	repo := NewCostRepo(db)
	breakdown, err := repo.ProviderBreakdown(context.Background(), "m-1", "2026-08")
	require.NoError(t, err)

	require.Len(t, breakdown, 2)
	assert.Equal(t, "groq", breakdown[0].Provider)
	assert.Equal(t, 125000, breakdown[0].TotalTokens)
	assert.Equal(t, "openai", breakdown[1].Provider)
	assert.InDelta(t, 0.45, breakdown[1].TotalCost, 1e-9)
	assert.Equal(t, 61, breakdown[1].Requests)
}
