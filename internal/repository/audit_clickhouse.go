package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/zapflow/campaignd/internal/model"
)

// AuditRepository is the ClickHouse read/write side of the audit trail.
type AuditRepository interface {
	InsertBatch(ctx context.Context, events []model.AuditEvent) error
	ListByCampaign(ctx context.Context, tenantID, campaignID int64, limit, offset int) ([]model.AuditEvent, error)
}

type auditRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewAuditRepository(ch *sqlx.DB) AuditRepository {
	return &auditRepository{ch: ch}
}

func (r *auditRepository) InsertBatch(ctx context.Context, events []model.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO campaignd.audit_events
		    (entity, entity_id, tenant_id, campaign_id, transition, detail, occurred_at)
		VALUES `)
	args := make([]any, 0, len(events)*7)
	for i, e := range events {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, e.Entity, e.EntityID, e.TenantID, e.CampaignID, e.Transition, e.Detail, e.OccurredAt)
	}

	_, err := r.ch.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *auditRepository) ListByCampaign(ctx context.Context, tenantID, campaignID int64, limit, offset int) ([]model.AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var rows []model.AuditEvent
	err := r.ch.SelectContext(ctx, &rows, `
		SELECT entity, entity_id, tenant_id, campaign_id, transition, detail, occurred_at
		  FROM campaignd.audit_events
		 WHERE tenant_id = ? AND campaign_id = ?
		 ORDER BY occurred_at DESC
		 LIMIT ? OFFSET ?
	`, tenantID, campaignID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
