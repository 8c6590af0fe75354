package campaign

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/zapflow/campaignd/internal/metrics"
	"github.com/zapflow/campaignd/internal/model"
	"github.com/zapflow/campaignd/internal/queue"
	"github.com/zapflow/campaignd/internal/repository"
)

// Scanner periodically claims campaigns whose scheduled time has arrived.
// The row-lock-skip claim in the store is the only mechanism preventing
// two concurrent scanner processes from fanning out the same campaign.
type Scanner struct {
	Campaigns repository.CampaignsRepository
	Queue     queue.Enqueuer
	Notify    Notifier
	Audit     AuditSink
	Log       *zap.Logger

	// Window is how far ahead of now a PROGRAMADA campaign is claimed.
	Window time.Duration
}

func NewScanner(campaigns repository.CampaignsRepository, q queue.Enqueuer, notify Notifier, audit AuditSink, log *zap.Logger) *Scanner {
	return &Scanner{
		Campaigns: campaigns,
		Queue:     q,
		Notify:    notify,
		Audit:     audit,
		Log:       log,
		Window:    time.Hour,
	}
}

// Scan claims due campaigns and enqueues one ProcessCampaign task each,
// delayed by the exact time remaining until the campaign's scheduled
// moment.
func (s *Scanner) Scan(ctx context.Context) error {
	claimed, err := s.Campaigns.ClaimDue(ctx, s.Window)
	if err != nil {
		return fmt.Errorf("claim due campaigns: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}

	s.Log.Info("claimed campaigns", zap.Int("count", len(claimed)))

	for _, c := range claimed {
		if _, err := s.Queue.Enqueue(ctx, model.TaskProcessCampaign,
			model.ProcessCampaignPayload{CampaignID: c.ID},
			queue.Options{Delay: c.Delay},
		); err != nil {
			return fmt.Errorf("enqueue process campaign %d: %w", c.ID, err)
		}

		metrics.CampaignsTotal.WithLabelValues(model.CampaignClaimed.String()).Inc()
		s.Log.Info("campaign scheduled for processing",
			zap.Int64("campaign", c.ID),
			zap.Duration("delay", c.Delay),
		)

		if cam, err := s.Campaigns.GetByID(ctx, c.ID); err == nil && cam != nil {
			s.Notify.CampaignUpdated(ctx, cam)
			s.Audit.Record(ctx, model.AuditEvent{
				Entity:     model.AuditEntityCampaign,
				EntityID:   strconv.FormatInt(cam.ID, 10),
				TenantID:   cam.TenantID,
				CampaignID: cam.ID,
				Transition: model.CampaignClaimed.String(),
				OccurredAt: time.Now().UTC(),
			})
		}
	}
	return nil
}
