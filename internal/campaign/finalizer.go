package campaign

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/zapflow/campaignd/internal/metrics"
	"github.com/zapflow/campaignd/internal/model"
	"github.com/zapflow/campaignd/internal/repository"
)

// Finalizer closes out campaigns whose shipments have all reached a final
// outcome. It is invoked after every dispatch and swept periodically, so a
// campaign still completes when its last dispatch crashed after writing
// the shipment outcome.
type Finalizer struct {
	Campaigns repository.CampaignsRepository
	Contacts  repository.ContactsRepository
	Shipments repository.ShipmentsRepository
	Notify    Notifier
	Audit     AuditSink
	Log       *zap.Logger
}

func NewFinalizer(
	campaigns repository.CampaignsRepository,
	contacts repository.ContactsRepository,
	shipments repository.ShipmentsRepository,
	notify Notifier,
	audit AuditSink,
	log *zap.Logger,
) *Finalizer {
	return &Finalizer{
		Campaigns: campaigns,
		Contacts:  contacts,
		Shipments: shipments,
		Notify:    notify,
		Audit:     audit,
		Log:       log,
	}
}

// VerifyAndFinalize compares terminal shipments against the campaign's
// valid contact count and flips EM_ANDAMENTO to FINALIZADA when they
// match. The UPDATE is status-guarded, so concurrent callers finalize at
// most once; the UI is notified either way.
func (f *Finalizer) VerifyAndFinalize(ctx context.Context, cam *model.Campaign) error {
	total, err := f.Contacts.CountValid(ctx, cam.ContactListID)
	if err != nil {
		return fmt.Errorf("count valid contacts for campaign %d: %w", cam.ID, err)
	}
	terminal, err := f.Shipments.CountTerminal(ctx, cam.ID)
	if err != nil {
		return fmt.Errorf("count terminal shipments for campaign %d: %w", cam.ID, err)
	}

	if terminal >= total {
		won, err := f.Campaigns.Finalize(ctx, cam.ID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("finalize campaign %d: %w", cam.ID, err)
		}
		if won {
			cam.Status = model.CampaignDone
			metrics.CampaignsTotal.WithLabelValues(model.CampaignDone.String()).Inc()
			f.Log.Info("campaign finalized",
				zap.Int64("campaign", cam.ID),
				zap.Int64("shipments", terminal),
			)
			f.Audit.Record(ctx, model.AuditEvent{
				Entity:     model.AuditEntityCampaign,
				EntityID:   strconv.FormatInt(cam.ID, 10),
				TenantID:   cam.TenantID,
				CampaignID: cam.ID,
				Transition: model.CampaignDone.String(),
				OccurredAt: time.Now().UTC(),
			})
		}
	}

	f.Notify.CampaignUpdated(ctx, cam)

	return nil
}

// SweepRunning re-checks every EM_ANDAMENTO campaign. Cheap relative to
// its interval; the per-campaign check is two counts.
func (f *Finalizer) SweepRunning(ctx context.Context) error {
	running, err := f.Campaigns.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("list running campaigns: %w", err)
	}
	for i := range running {
		if err := f.VerifyAndFinalize(ctx, &running[i]); err != nil {
			f.Log.Error("finalize sweep", zap.Int64("campaign", running[i].ID), zap.Error(err))
		}
	}
	return nil
}
