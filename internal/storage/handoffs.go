// internal/storage/handoffs.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"commerce-orchestrator/internal/models"
)

// HandoffRepo is the PostgreSQL-backed handoff state repository.
type HandoffRepo struct {
	db *sql.DB
}

func NewHandoffRepo(db *sql.DB) *HandoffRepo {
	return &HandoffRepo{db: db}
}

const handoffColumns = `conversation_id, merchant_id, status, trigger_reason, triggered_at,
		consecutive_low_confidence, resolved_at, resolution_type, reopen_count,
		warning_sent_at, last_customer_message_at, last_operator_message_at, updated_at`

func (r *HandoffRepo) Get(ctx context.Context, conversationID string) (*models.HandoffState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+handoffColumns+`
		FROM handoff_states WHERE conversation_id = $1`, conversationID)

	state, err := scanHandoff(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return state, nil
}

// Upsert writes the full state row. Last writer wins; transitions are
// idempotent and monotonic in time, so no row locking is taken.
func (r *HandoffRepo) Upsert(ctx context.Context, state *models.HandoffState) error {
	state.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO handoff_states (`+handoffColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (conversation_id) DO UPDATE SET
			status = EXCLUDED.status,
			trigger_reason = EXCLUDED.trigger_reason,
			triggered_at = EXCLUDED.triggered_at,
			consecutive_low_confidence = EXCLUDED.consecutive_low_confidence,
			resolved_at = EXCLUDED.resolved_at,
			resolution_type = EXCLUDED.resolution_type,
			reopen_count = EXCLUDED.reopen_count,
			warning_sent_at = EXCLUDED.warning_sent_at,
			last_customer_message_at = EXCLUDED.last_customer_message_at,
			last_operator_message_at = EXCLUDED.last_operator_message_at,
			updated_at = EXCLUDED.updated_at`,
		state.ConversationID, state.MerchantID, state.Status, nullStr(string(state.TriggerReason)),
		state.TriggeredAt, state.ConsecutiveLowConfidence, state.ResolvedAt,
		nullStr(string(state.ResolutionType)), state.ReopenCount, state.WarningSentAt,
		state.LastCustomerMessageAt, state.LastOperatorMessageAt, state.UpdatedAt,
	)
	return err
}

// FindPendingBefore returns pending handoffs triggered before cutoff that have
// seen no operator message: escalation candidates.
func (r *HandoffRepo) FindPendingBefore(ctx context.Context, cutoff time.Time, cursor string, limit int) ([]*models.HandoffState, error) {
	return r.scan(ctx, `
		SELECT `+handoffColumns+`
		FROM handoff_states
		WHERE status = 'pending' AND triggered_at < $1
		  AND last_operator_message_at IS NULL
		  AND conversation_id > $2
		ORDER BY conversation_id LIMIT $3`, cutoff, cursor, limit)
}

// FindWarningCandidates returns active handoffs whose last operator reply is
// older than cutoff and that have not yet received the inactivity warning.
func (r *HandoffRepo) FindWarningCandidates(ctx context.Context, cutoff time.Time, cursor string, limit int) ([]*models.HandoffState, error) {
	return r.scan(ctx, `
		SELECT `+handoffColumns+`
		FROM handoff_states
		WHERE status = 'active'
		  AND last_operator_message_at < $1
		  AND warning_sent_at IS NULL
		  AND conversation_id > $2
		ORDER BY conversation_id LIMIT $3`, cutoff, cursor, limit)
}

// FindAutoCloseCandidates returns active or escalated handoffs where the
// customer has been inactive since before cutoff.
func (r *HandoffRepo) FindAutoCloseCandidates(ctx context.Context, cutoff time.Time, cursor string, limit int) ([]*models.HandoffState, error) {
	return r.scan(ctx, `
		SELECT `+handoffColumns+`
		FROM handoff_states
		WHERE status IN ('active', 'escalated')
		  AND last_customer_message_at < $1
		  AND conversation_id > $2
		ORDER BY conversation_id LIMIT $3`, cutoff, cursor, limit)
}

func (r *HandoffRepo) scan(ctx context.Context, query string, cutoff time.Time, cursor string, limit int) ([]*models.HandoffState, error) {
	rows, err := r.db.QueryContext(ctx, query, cutoff, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*models.HandoffState
	for rows.Next() {
		state, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHandoff(row rowScanner) (*models.HandoffState, error) {
	var state models.HandoffState
	var reason, resolution sql.NullString
	err := row.Scan(&state.ConversationID, &state.MerchantID, &state.Status, &reason,
		&state.TriggeredAt, &state.ConsecutiveLowConfidence, &state.ResolvedAt,
		&resolution, &state.ReopenCount, &state.WarningSentAt,
		&state.LastCustomerMessageAt, &state.LastOperatorMessageAt, &state.UpdatedAt)
	if err != nil {
		return nil, err
	}
	state.TriggerReason = models.HandoffReason(reason.String)
	state.ResolutionType = models.ResolutionType(resolution.String)
	return &state, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
