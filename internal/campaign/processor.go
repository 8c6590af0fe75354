package campaign

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/zapflow/campaignd/internal/metrics"
	"github.com/zapflow/campaignd/internal/model"
	"github.com/zapflow/campaignd/internal/queue"
	"github.com/zapflow/campaignd/internal/repository"
)

// Processor expands one claimed campaign into per-contact preparation
// tasks. The AGENDADA -> EM_ANDAMENTO transition is a compare-and-set, so
// a redelivered ProcessCampaign job after a crash-during-expansion drops
// out instead of duplicating the fan-out.
type Processor struct {
	Campaigns repository.CampaignsRepository
	Contacts  repository.ContactsRepository
	Settings  repository.SettingsRepository
	Queue     queue.Enqueuer
	Notify    Notifier
	Audit     AuditSink
	Log       *zap.Logger

	PageSize int
}

func NewProcessor(
	campaigns repository.CampaignsRepository,
	contacts repository.ContactsRepository,
	settings repository.SettingsRepository,
	q queue.Enqueuer,
	notify Notifier,
	audit AuditSink,
	log *zap.Logger,
) *Processor {
	return &Processor{
		Campaigns: campaigns,
		Contacts:  contacts,
		Settings:  settings,
		Queue:     q,
		Notify:    notify,
		Audit:     audit,
		Log:       log,
		PageSize:  100,
	}
}

func (p *Processor) Handle(ctx context.Context, payload model.ProcessCampaignPayload) error {
	cam, err := p.Campaigns.GetByID(ctx, payload.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign %d: %w", payload.CampaignID, err)
	}
	if cam == nil {
		p.Log.Warn("process: campaign gone", zap.Int64("campaign", payload.CampaignID))
		return nil
	}

	won, err := p.Campaigns.MarkRunning(ctx, cam.ID)
	if err != nil {
		return fmt.Errorf("mark campaign %d running: %w", cam.ID, err)
	}
	if !won {
		// Someone else already expanded this campaign, or it has
		// moved past AGENDADA. Drop without side effects.
		p.Log.Info("process: campaign already expanded",
			zap.Int64("campaign", cam.ID),
			zap.String("status", cam.Status.String()),
		)
		return nil
	}
	cam.Status = model.CampaignRunning

	metrics.CampaignsTotal.WithLabelValues(model.CampaignRunning.String()).Inc()
	p.Notify.CampaignUpdated(ctx, cam)
	p.Audit.Record(ctx, model.AuditEvent{
		Entity:     model.AuditEntityCampaign,
		EntityID:   strconv.FormatInt(cam.ID, 10),
		TenantID:   cam.TenantID,
		CampaignID: cam.ID,
		Transition: model.CampaignRunning.String(),
		OccurredAt: time.Now().UTC(),
	})

	if err := p.expand(ctx, cam); err != nil {
		sentry.CaptureException(err)
		p.Log.Error("process: expansion failed",
			zap.Int64("campaign", cam.ID),
			zap.Error(err),
		)
		if merr := p.Campaigns.MarkError(ctx, cam.ID); merr != nil {
			return fmt.Errorf("mark campaign %d error: %w", cam.ID, merr)
		}
		cam.Status = model.CampaignError
		metrics.CampaignsTotal.WithLabelValues(model.CampaignError.String()).Inc()
		p.Notify.CampaignUpdated(ctx, cam)
		p.Audit.Record(ctx, model.AuditEvent{
			Entity:     model.AuditEntityCampaign,
			EntityID:   strconv.FormatInt(cam.ID, 10),
			TenantID:   cam.TenantID,
			CampaignID: cam.ID,
			Transition: model.CampaignError.String(),
			Detail:     err.Error(),
			OccurredAt: time.Now().UTC(),
		})
		// ERRO is terminal; retrying the job would only repeat the failure.
		return nil
	}
	return nil
}

func (p *Processor) expand(ctx context.Context, cam *model.Campaign) error {
	settings, err := p.Settings.PacingForTenant(ctx, cam.TenantID)
	if err != nil {
		return fmt.Errorf("pacing settings for tenant %d: %w", cam.TenantID, err)
	}

	variants := len(cam.ValidMessages())
	if variants == 0 {
		return fmt.Errorf("campaign %d has no message variants", cam.ID)
	}

	position := 0
	var delay time.Duration
	for offset := 0; ; offset += p.PageSize {
		contacts, err := p.Contacts.ListValidPage(ctx, cam.ContactListID, offset, p.PageSize)
		if err != nil {
			return fmt.Errorf("list contacts page at %d: %w", offset, err)
		}
		if len(contacts) == 0 {
			break
		}
		for _, c := range contacts {
			delay += StepDelay(position, settings)
			if _, err := p.Queue.Enqueue(ctx, model.TaskPrepareContact,
				model.PrepareContactPayload{
					CampaignID:   cam.ID,
					ContactID:    c.ID,
					DelayMs:      delay.Milliseconds(),
					VariantIndex: position % variants,
					Variables:    settings.Variables,
				},
				queue.Options{},
			); err != nil {
				return fmt.Errorf("enqueue prepare contact %d: %w", c.ID, err)
			}
			position++
		}
		if len(contacts) < p.PageSize {
			break
		}
	}

	p.Log.Info("campaign expanded",
		zap.Int64("campaign", cam.ID),
		zap.Int("contacts", position),
	)
	return nil
}
