// internal/storage/alerts.go
package storage

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"commerce-orchestrator/internal/models"
)

// AlertRepo is the PostgreSQL-backed budget alert store.
type AlertRepo struct {
	db *sql.DB
}

func NewAlertRepo(db *sql.DB) *AlertRepo {
	return &AlertRepo{db: db}
}

// CreateOnce inserts the alert unless one already exists for the same
// (merchant, period, threshold). The unique index makes threshold crossings
// exactly-once per billing period even under concurrent recorders.
func (r *AlertRepo) CreateOnce(ctx context.Context, alert *models.BudgetAlert) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_alerts (id, merchant_id, threshold, message, period, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (merchant_id, period, threshold) DO NOTHING`,
		alert.ID, alert.MerchantID, alert.Threshold, alert.Message, alert.Period,
		alert.Read, alert.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *AlertRepo) Unread(ctx context.Context, merchantID string) ([]*models.BudgetAlert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, merchant_id, threshold, message, period, read, created_at
		FROM budget_alerts
		WHERE merchant_id = $1 AND read = false
		ORDER BY created_at DESC`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.BudgetAlert
	for rows.Next() {
		var a models.BudgetAlert
		if err := rows.Scan(&a.ID, &a.MerchantID, &a.Threshold, &a.Message, &a.Period,
			&a.Read, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func (r *AlertRepo) MarkRead(ctx context.Context, alertID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE budget_alerts SET read = true WHERE id = $1`, alertID)
	return err
}

// MerchantRepo is the PostgreSQL-backed merchant configuration store.
type MerchantRepo struct {
	db *sql.DB
}

func NewMerchantRepo(db *sql.DB) *MerchantRepo {
	return &MerchantRepo{db: db}
}

func (r *MerchantRepo) FindByID(ctx context.Context, id string) (*models.Merchant, error) {
	var m models.Merchant
	var backup, model sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, monthly_budget_usd, primary_provider, backup_provider, model_override, handoff_keywords
		FROM merchants WHERE id = $1`, id).Scan(
		&m.ID, &m.Name, &m.MonthlyBudgetUSD, &m.PrimaryProvider, &backup, &model,
		pq.Array(&m.HandoffKeywords))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m.BackupProvider = backup.String
	m.ModelOverride = model.String
	return &m, nil
}
