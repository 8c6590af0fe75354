package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zapflow/campaignd/internal/gateway"
	"github.com/zapflow/campaignd/internal/metrics"
	"github.com/zapflow/campaignd/internal/model"
	"github.com/zapflow/campaignd/internal/repository"
)

// Dispatcher performs the outbound send for one shipment and writes its
// final outcome. The terminal-once guard lives in the shipment store: a
// redelivered dispatch job for an already-settled shipment is a no-op, so
// at-least-once queue delivery never produces a duplicate send outcome.
type Dispatcher struct {
	Campaigns repository.CampaignsRepository
	Shipments repository.ShipmentsRepository
	Files     repository.FilesRepository
	Registry  gateway.Registry
	Finalizer *Finalizer
	Notify    Notifier
	Audit     AuditSink
	Log       *zap.Logger

	SendTimeout time.Duration
}

func NewDispatcher(
	campaigns repository.CampaignsRepository,
	shipments repository.ShipmentsRepository,
	files repository.FilesRepository,
	registry gateway.Registry,
	finalizer *Finalizer,
	notify Notifier,
	audit AuditSink,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		Campaigns:   campaigns,
		Shipments:   shipments,
		Files:       files,
		Registry:    registry,
		Finalizer:   finalizer,
		Notify:      notify,
		Audit:       audit,
		Log:         log,
		SendTimeout: 30 * time.Second,
	}
}

func (d *Dispatcher) Handle(ctx context.Context, payload model.DispatchPayload) error {
	ship, err := d.Shipments.GetByID(ctx, payload.ShipmentID)
	if err != nil {
		return fmt.Errorf("load shipment %s: %w", payload.ShipmentID, err)
	}
	if ship == nil {
		d.Log.Warn("dispatch: shipment gone", zap.String("shipment", payload.ShipmentID))
		return nil
	}
	if ship.Terminal() {
		return nil
	}

	cam, err := d.Campaigns.GetByID(ctx, ship.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign %d: %w", ship.CampaignID, err)
	}
	if cam == nil {
		d.Log.Warn("dispatch: campaign gone", zap.Int64("campaign", ship.CampaignID))
		return nil
	}

	conn, err := d.Registry.Connection(ctx, cam.AccountID)
	if err != nil {
		if !errors.Is(err, gateway.ErrUnavailable) {
			d.Log.Error("dispatch: resolve connection",
				zap.Int64("account", cam.AccountID), zap.Error(err))
		}
		// No session to send through: the shipment fails now rather
		// than block campaign completion on an offline account.
		if err := d.settle(ctx, cam, ship, nil, false, "connection unavailable"); err != nil {
			return err
		}
		return d.Finalizer.VerifyAndFinalize(ctx, cam)
	}

	// Confirmation campaigns send the confirmation request first and
	// park the shipment until the contact replies. The reply path lives
	// outside this worker; it settles the shipment via the HTTP surface.
	if cam.Confirmation && ship.ConfirmationMessage != "" && !ship.AwaitingConfirmation() {
		if err := d.requestConfirmation(ctx, conn, cam, ship); err != nil {
			return err
		}
		return d.Finalizer.VerifyAndFinalize(ctx, cam)
	}

	messageID, sendErr := d.send(ctx, conn, cam, ship)
	delivered := sendErr == nil && messageID != ""

	var idPtr *string
	detail := ""
	if delivered {
		idPtr = &messageID
	} else if sendErr != nil {
		detail = sendErr.Error()
	} else {
		detail = "provider returned no message id"
	}

	if err := d.settle(ctx, cam, ship, idPtr, delivered, detail); err != nil {
		return err
	}

	// The send itself is not retried: its outcome is already recorded
	// on the shipment, and a retry would risk a duplicate message.
	return d.Finalizer.VerifyAndFinalize(ctx, cam)
}

// send pushes the shipment's content through the connection. Campaigns
// with a file list send each attachment first; the text (or captioned
// media) send supplies the message id that decides the outcome.
func (d *Dispatcher) send(ctx context.Context, conn gateway.Connection, cam *model.Campaign, ship *model.Shipment) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.SendTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.SendSeconds.Observe(time.Since(start).Seconds())
	}()

	if cam.FileListID != nil {
		files, err := d.Files.ListByFileList(ctx, *cam.FileListID)
		if err != nil {
			return "", fmt.Errorf("list campaign files: %w", err)
		}
		for _, f := range files {
			if _, err := conn.SendMedia(ctx, ship.Number, f.Path, f.Name, ""); err != nil {
				return "", fmt.Errorf("send file %s: %w", f.Name, err)
			}
		}
	}

	if cam.MediaPath != "" {
		return conn.SendMedia(ctx, ship.Number, cam.MediaPath, cam.MediaName, ship.Message)
	}

	return conn.SendText(ctx, ship.Number, ship.Message)
}

func (d *Dispatcher) requestConfirmation(ctx context.Context, conn gateway.Connection, cam *model.Campaign, ship *model.Shipment) error {
	sctx, cancel := context.WithTimeout(ctx, d.SendTimeout)
	defer cancel()

	if _, err := conn.SendText(sctx, ship.Number, ship.ConfirmationMessage); err != nil {
		// A failed confirmation request settles the shipment like any
		// other failed send.
		return d.settle(ctx, cam, ship, nil, false, err.Error())
	}

	if err := d.Shipments.MarkConfirmationRequested(ctx, ship.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark shipment %s confirmation requested: %w", ship.ID, err)
	}

	metrics.ShipmentsTotal.WithLabelValues("confirmation_requested").Inc()
	d.Log.Info("confirmation requested",
		zap.Int64("campaign", cam.ID),
		zap.String("shipment", ship.ID),
	)
	d.Audit.Record(ctx, model.AuditEvent{
		Entity:     model.AuditEntityShipment,
		EntityID:   ship.ID,
		TenantID:   cam.TenantID,
		CampaignID: cam.ID,
		Transition: "confirmation_requested",
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// settle writes the shipment's final outcome. Only the winning writer
// emits metrics and audit; losers mean another worker got there first.
func (d *Dispatcher) settle(ctx context.Context, cam *model.Campaign, ship *model.Shipment, messageID *string, delivered bool, detail string) error {
	won, err := d.Shipments.MarkDelivered(ctx, ship.ID, messageID, delivered, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("settle shipment %s: %w", ship.ID, err)
	}
	if !won {
		return nil
	}

	result := "sent"
	transition := "delivered"
	if !delivered {
		result = "failed"
		transition = "failed"
	}

	metrics.ShipmentsTotal.WithLabelValues(result).Inc()
	d.Log.Info("shipment settled",
		zap.Int64("campaign", cam.ID),
		zap.String("shipment", ship.ID),
		zap.Bool("delivered", delivered),
		zap.String("detail", detail),
	)
	d.Audit.Record(ctx, model.AuditEvent{
		Entity:     model.AuditEntityShipment,
		EntityID:   ship.ID,
		TenantID:   cam.TenantID,
		CampaignID: cam.ID,
		Transition: transition,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}
