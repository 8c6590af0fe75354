package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zapflow/campaignd/internal/model"
)

type ShipmentsRepository interface {
	GetByID(ctx context.Context, id string) (*model.Shipment, error)

	// FindOrCreate inserts the shipment keyed by (campaignId, contactId)
	// or returns the existing row. The unique key makes this safe against
	// concurrent preparer attempts for the same recipient.
	FindOrCreate(ctx context.Context, s model.Shipment) (*model.Shipment, bool, error)

	// UpdateComposition rewrites the composed texts, but only while the
	// shipment is non-terminal and no confirmation went out.
	UpdateComposition(ctx context.Context, id, message, confirmationMessage string) error

	SetJobID(ctx context.Context, id, jobID string) error

	// MarkDelivered records the terminal outcome exactly once; a second
	// call reports false and leaves the row untouched.
	MarkDelivered(ctx context.Context, id string, messageID *string, delivered bool, at time.Time) (bool, error)

	MarkConfirmationRequested(ctx context.Context, id string, at time.Time) error

	// CountTerminal counts shipments of the campaign with a recorded
	// outcome, success or failure alike.
	CountTerminal(ctx context.Context, campaignID int64) (int64, error)

	// ListStalePending returns non-terminal shipments created before the
	// cutoff, excluding rows parked on a confirmation request. Bounded by
	// limit to keep reconciler lock windows small.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Shipment, error)

	Progress(ctx context.Context, campaignID int64) (CampaignProgress, error)
}

// CampaignProgress aggregates shipment outcomes for one campaign.
type CampaignProgress struct {
	Total    int64 `db:"total" json:"total"`
	Sent     int64 `db:"sent" json:"sent"`
	Failed   int64 `db:"failed" json:"failed"`
	Awaiting int64 `db:"awaiting" json:"awaitingConfirmation"`
}

type ShipmentsRepositoryImpl struct {
	db *sqlx.DB
}

func NewShipmentsRepository(db *sqlx.DB) *ShipmentsRepositoryImpl {
	return &ShipmentsRepositoryImpl{db: db}
}

var _ ShipmentsRepository = (*ShipmentsRepositoryImpl)(nil)

func (r *ShipmentsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Shipment, error) {
	var s model.Shipment
	err := r.db.GetContext(ctx, &s, `SELECT * FROM campaign_shipments WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ShipmentsRepositoryImpl) FindOrCreate(ctx context.Context, s model.Shipment) (*model.Shipment, bool, error) {
	const q = `
		INSERT INTO campaign_shipments
		    (id, campaign_id, contact_id, number, message, confirmation_message, created_at, updated_at)
		VALUES
		    (?,  ?,           ?,          ?,      ?,       ?,                    NOW(3),     NOW(3))
		ON DUPLICATE KEY UPDATE id = id
	`
	res, err := r.db.ExecContext(ctx, q,
		s.ID, s.CampaignID, s.ContactID, s.Number, s.Message, s.ConfirmationMessage,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert shipment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	created := affected == 1

	var rec model.Shipment
	err = r.db.GetContext(ctx, &rec, `
		SELECT * FROM campaign_shipments
		 WHERE campaign_id = ? AND contact_id = ? LIMIT 1
	`, s.CampaignID, s.ContactID)
	if err != nil {
		return nil, false, fmt.Errorf("reload shipment: %w", err)
	}
	return &rec, created, nil
}

func (r *ShipmentsRepositoryImpl) UpdateComposition(ctx context.Context, id, message, confirmationMessage string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_shipments
		   SET message = ?, confirmation_message = ?, updated_at = NOW(3)
		 WHERE id = ?
		   AND delivered_at IS NULL
		   AND confirmation_requested_at IS NULL
	`, message, confirmationMessage, id)
	return err
}

func (r *ShipmentsRepositoryImpl) SetJobID(ctx context.Context, id, jobID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_shipments SET job_id = ?, updated_at = NOW(3) WHERE id = ?
	`, jobID, id)
	return err
}

func (r *ShipmentsRepositoryImpl) MarkDelivered(ctx context.Context, id string, messageID *string, delivered bool, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_shipments
		   SET delivered_at = ?, message_id = ?, is_delivered_successfully = ?, updated_at = NOW(3)
		 WHERE id = ? AND delivered_at IS NULL
	`, at, messageID, delivered, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *ShipmentsRepositoryImpl) MarkConfirmationRequested(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_shipments
		   SET confirmation_requested_at = ?, updated_at = NOW(3)
		 WHERE id = ? AND delivered_at IS NULL
	`, at, id)
	return err
}

func (r *ShipmentsRepositoryImpl) CountTerminal(ctx context.Context, campaignID int64) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM campaign_shipments
		 WHERE campaign_id = ? AND is_delivered_successfully IS NOT NULL
	`, campaignID)
	return n, err
}

func (r *ShipmentsRepositoryImpl) Progress(ctx context.Context, campaignID int64) (CampaignProgress, error) {
	var p CampaignProgress
	err := r.db.GetContext(ctx, &p, `
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(is_delivered_successfully = TRUE), 0)  AS sent,
		       COALESCE(SUM(is_delivered_successfully = FALSE), 0) AS failed,
		       COALESCE(SUM(delivered_at IS NULL
		           AND confirmation_requested_at IS NOT NULL), 0)  AS awaiting
		  FROM campaign_shipments
		 WHERE campaign_id = ?
	`, campaignID)
	return p, err
}

func (r *ShipmentsRepositoryImpl) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Shipment, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.Shipment
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM campaign_shipments
		 WHERE is_delivered_successfully IS NULL
		   AND delivered_at IS NULL
		   AND confirmation_requested_at IS NULL
		   AND created_at < ?
		 ORDER BY created_at ASC
		 LIMIT ?
	`, cutoff, limit)
	return out, err
}
