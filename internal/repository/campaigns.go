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

// ClaimedCampaign is one campaign locked by the scanner, with the exact
// remaining delay until its scheduled time (0 if already due).
type ClaimedCampaign struct {
	ID    int64
	Delay time.Duration
}

type CampaignsRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)

	// ClaimDue flips PROGRAMADA campaigns scheduled within the window to
	// AGENDADA. Rows locked by a concurrent claimant are skipped, so a
	// campaign is claimed by at most one scanner across all processes.
	ClaimDue(ctx context.Context, window time.Duration) ([]ClaimedCampaign, error)

	// MarkRunning performs the AGENDADA -> EM_ANDAMENTO transition and
	// reports whether this call won it.
	MarkRunning(ctx context.Context, id int64) (bool, error)

	MarkError(ctx context.Context, id int64) error

	// Finalize performs the EM_ANDAMENTO -> FINALIZADA transition and
	// reports whether this call won it. Re-finalizing is a no-op.
	Finalize(ctx context.Context, id int64, completedAt time.Time) (bool, error)

	ListRunning(ctx context.Context) ([]model.Campaign, error)
}

type CampaignsRepositoryImpl struct {
	db *sqlx.DB
}

func NewCampaignsRepository(db *sqlx.DB) *CampaignsRepositoryImpl {
	return &CampaignsRepositoryImpl{db: db}
}

var _ CampaignsRepository = (*CampaignsRepositoryImpl)(nil)

func (r *CampaignsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var c model.Campaign
	err := r.db.GetContext(ctx, &c, `SELECT * FROM campaigns WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignsRepositoryImpl) ClaimDue(ctx context.Context, window time.Duration) ([]ClaimedCampaign, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	type dueRow struct {
		ID          int64     `db:"id"`
		ScheduledAt time.Time `db:"scheduled_at"`
	}
	var due []dueRow
	if err := tx.SelectContext(ctx, &due, `
		SELECT id, scheduled_at
		  FROM campaigns
		 WHERE status = 'PROGRAMADA'
		   AND scheduled_at BETWEEN NOW(3) AND NOW(3) + INTERVAL ? SECOND
		 FOR UPDATE SKIP LOCKED
	`, int64(window.Seconds())); err != nil {
		return nil, fmt.Errorf("select due campaigns: %w", err)
	}
	if len(due) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]int64, 0, len(due))
	for _, d := range due {
		ids = append(ids, d.ID)
	}
	q, args, err := sqlx.In(`
		UPDATE campaigns SET status = 'AGENDADA', updated_at = NOW(3) WHERE id IN (?)
	`, ids)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, r.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("claim campaigns: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	now := time.Now()
	claimed := make([]ClaimedCampaign, 0, len(due))
	for _, d := range due {
		delay := d.ScheduledAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		claimed = append(claimed, ClaimedCampaign{ID: d.ID, Delay: delay})
	}
	return claimed, nil
}

func (r *CampaignsRepositoryImpl) MarkRunning(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		   SET status = 'EM_ANDAMENTO', updated_at = NOW(3)
		 WHERE id = ? AND status = 'AGENDADA'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *CampaignsRepositoryImpl) MarkError(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		   SET status = 'ERRO', updated_at = NOW(3)
		 WHERE id = ? AND status IN ('AGENDADA', 'EM_ANDAMENTO')
	`, id)
	return err
}

func (r *CampaignsRepositoryImpl) Finalize(ctx context.Context, id int64, completedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		   SET status = 'FINALIZADA', completed_at = ?, updated_at = NOW(3)
		 WHERE id = ? AND status = 'EM_ANDAMENTO'
	`, completedAt, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *CampaignsRepositoryImpl) ListRunning(ctx context.Context) ([]model.Campaign, error) {
	var out []model.Campaign
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM campaigns WHERE status = 'EM_ANDAMENTO'
	`)
	return out, err
}
