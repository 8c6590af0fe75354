package campaign

import (
	"context"

	"github.com/zapflow/campaignd/internal/model"
)

// Notifier fans campaign updates out to the UI. Implementations are
// best-effort and must never fail the pipeline.
type Notifier interface {
	CampaignUpdated(ctx context.Context, c *model.Campaign)
}

// AuditSink records state transitions for support and billing.
// Implementations are best-effort and must never fail the pipeline.
type AuditSink interface {
	Record(ctx context.Context, ev model.AuditEvent)
}

// NopNotifier and NopAudit satisfy the interfaces where fan-out is not
// wired (tests, admin tooling).
type NopNotifier struct{}

func (NopNotifier) CampaignUpdated(context.Context, *model.Campaign) {}

type NopAudit struct{}

func (NopAudit) Record(context.Context, model.AuditEvent) {}
