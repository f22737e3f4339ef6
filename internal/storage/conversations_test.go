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

var conversationCols = []string{"id", "merchant_id", "channel", "sender_id", "state", "context", "created_at", "updated_at"}

func testConversation() *models.Conversation {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	return &models.Conversation{
		ID:         "c-1",
		MerchantID: "m-1",
		Channel:    "whatsapp",
		SenderID:   "+5511999999999",
		State:      models.ConversationActive,
		Context: models.ConversationContext{
			Entities: models.Entities{Category: "shoes"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestConversationRepoCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	conv := testConversation()
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(conv.ID, conv.MerchantID, conv.Channel, conv.SenderID, conv.State,
			sqlmock.AnyArg(), conv.CreatedAt, conv.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewConversationRepo(db)
	require.NoError(t, repo.Create(context.Background(), conv))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepoFindByIDRestoresContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	ctxJSON := `{"entities":{"category":"shoes","budget":{"amount":150,"currency":"USD"}},"recentIntents":[{"intent":"product_search","confidence":0.92,"at":"2026-08-15T12:00:00Z"}]}`
	mock.ExpectQuery("SELECT (.+) FROM conversations WHERE id").
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows(conversationCols).
			AddRow("c-1", "m-1", "whatsapp", "+5511999999999", "active", []byte(ctxJSON), now, now))

	repo := NewConversationRepo(db)
	conv, err := repo.FindByID(context.Background(), "c-1")
	require.NoError(t, err)

	assert.Equal(t, models.ConversationActive, conv.State)
	assert.Equal(t, "shoes", conv.Context.Entities.Category)
	require.NotNil(t, conv.Context.Entities.Budget)
	assert.Equal(t, float64(150), conv.Context.Entities.Budget.Amount)
	require.Len(t, conv.Context.RecentIntents, 1)
	assert.Equal(t, models.IntentProductSearch, conv.Context.RecentIntents[0].Intent)
}

func TestConversationRepoFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM conversations WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(conversationCols))

	repo := NewConversationRepo(db)
	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationRepoFindByChannelSender(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs("m-1", "web", "visitor-9").
		WillReturnRows(sqlmock.NewRows(conversationCols).
			AddRow("c-2", "m-1", "web", "visitor-9", "active", []byte(`{}`), now, now))

	repo := NewConversationRepo(db)
	conv, err := repo.FindByChannelSender(context.Background(), "m-1", "web", "visitor-9")
	require.NoError(t, err)
	assert.Equal(t, "c-2", conv.ID)
}

func TestConversationRepoUpdateTouchesUpdatedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	conv := testConversation()
	before := conv.UpdatedAt

	mock.ExpectExec("UPDATE conversations SET").
		WithArgs(conv.ID, conv.State, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewConversationRepo(db)
	require.NoError(t, repo.Update(context.Background(), conv))
	assert.True(t, conv.UpdatedAt.After(before))
	assert.NoError(t, mock.ExpectationsWereMet())
}
