package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zapflow/campaignd/internal/metrics"
	"github.com/zapflow/campaignd/internal/model"
	"github.com/zapflow/campaignd/internal/queue"
	"github.com/zapflow/campaignd/internal/repository"
)

// Reconciler sweeps shipments that have been pending for too long and
// cross-references them against the queue. A shipment whose dispatch job
// still exists is merely slow (pacing delays can stretch hours); one with
// no live job is an orphan from a lost enqueue or a purged failure, and is
// force-settled so its campaign can finalize.
type Reconciler struct {
	Campaigns repository.CampaignsRepository
	Shipments repository.ShipmentsRepository
	Queue     queue.Lister
	Finalizer *Finalizer
	Audit     AuditSink
	Log       *zap.Logger

	// StaleAfter is the pending age before a shipment is examined at all.
	StaleAfter time.Duration
	// ForceAfter is the pending age past which even a running campaign's
	// orphaned shipment is failed.
	ForceAfter time.Duration
	BatchSize  int
}

func NewReconciler(
	campaigns repository.CampaignsRepository,
	shipments repository.ShipmentsRepository,
	q queue.Lister,
	finalizer *Finalizer,
	audit AuditSink,
	log *zap.Logger,
) *Reconciler {
	return &Reconciler{
		Campaigns:  campaigns,
		Shipments:  shipments,
		Queue:      q,
		Finalizer:  finalizer,
		Audit:      audit,
		Log:        log,
		StaleAfter: 2 * time.Hour,
		ForceAfter: 6 * time.Hour,
		BatchSize:  50,
	}
}

func (r *Reconciler) Sweep(ctx context.Context) error {
	now := time.Now().UTC()

	stale, err := r.Shipments.ListStalePending(ctx, now.Add(-r.StaleAfter), r.BatchSize)
	if err != nil {
		return fmt.Errorf("list stale shipments: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	liveJobs, liveShipments, err := r.liveDispatches(ctx)
	if err != nil {
		return fmt.Errorf("list unsettled dispatch jobs: %w", err)
	}

	campaigns := map[int64]*model.Campaign{}
	for i := range stale {
		ship := &stale[i]

		if ship.JobID != nil && liveJobs[*ship.JobID] {
			continue
		}
		if liveShipments[ship.ID] {
			continue
		}

		cam := campaigns[ship.CampaignID]
		if cam == nil {
			cam, err = r.Campaigns.GetByID(ctx, ship.CampaignID)
			if err != nil {
				return fmt.Errorf("load campaign %d: %w", ship.CampaignID, err)
			}
			campaigns[ship.CampaignID] = cam
		}
		if cam == nil {
			continue
		}

		// A running campaign's prepare fan-out may still be in flight;
		// give it until ForceAfter before declaring the row orphaned.
		if cam.Status == model.CampaignRunning && now.Sub(ship.CreatedAt) < r.ForceAfter {
			continue
		}

		won, err := r.Shipments.MarkDelivered(ctx, ship.ID, nil, false, now)
		if err != nil {
			return fmt.Errorf("settle orphaned shipment %s: %w", ship.ID, err)
		}
		if !won {
			continue
		}

		metrics.ShipmentsTotal.WithLabelValues("reconciled_failed").Inc()
		r.Log.Warn("orphaned shipment failed by reconciler",
			zap.Int64("campaign", ship.CampaignID),
			zap.String("shipment", ship.ID),
			zap.Duration("age", now.Sub(ship.CreatedAt)),
		)
		r.Audit.Record(ctx, model.AuditEvent{
			Entity:     model.AuditEntityShipment,
			EntityID:   ship.ID,
			TenantID:   cam.TenantID,
			CampaignID: cam.ID,
			Transition: "failed",
			Detail:     "reconciler timeout",
			OccurredAt: now,
		})

		if err := r.Finalizer.VerifyAndFinalize(ctx, cam); err != nil {
			return err
		}
	}
	return nil
}

// liveDispatches indexes unsettled dispatch jobs both by job id and by the
// shipment id inside the payload: the shipment may have lost the SetJobID
// write even though its job exists.
func (r *Reconciler) liveDispatches(ctx context.Context) (jobs, shipments map[string]bool, err error) {
	unsettled, err := r.Queue.ListUnsettled(ctx, model.TaskDispatchCampaign)
	if err != nil {
		return nil, nil, err
	}

	jobs = make(map[string]bool, len(unsettled))
	shipments = make(map[string]bool, len(unsettled))
	for _, j := range unsettled {
		jobs[j.ID] = true

		var payload model.DispatchPayload
		if err := json.Unmarshal(j.Payload, &payload); err == nil && payload.ShipmentID != "" {
			shipments[payload.ShipmentID] = true
		}
	}
	return jobs, shipments, nil
}
