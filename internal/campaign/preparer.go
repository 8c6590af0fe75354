package campaign

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zapflow/campaignd/internal/model"
	"github.com/zapflow/campaignd/internal/queue"
	"github.com/zapflow/campaignd/internal/repository"
	"github.com/zapflow/campaignd/internal/util"
)

// Preparer materializes one shipment per (campaign, contact) and schedules
// its dispatch. Replays converge on the same row: find-or-create keyed on
// the pair, composition refreshed only while the row is still pending.
type Preparer struct {
	Campaigns repository.CampaignsRepository
	Contacts  repository.ContactsRepository
	Shipments repository.ShipmentsRepository
	Queue     queue.Enqueuer
	Log       *zap.Logger
}

func NewPreparer(
	campaigns repository.CampaignsRepository,
	contacts repository.ContactsRepository,
	shipments repository.ShipmentsRepository,
	q queue.Enqueuer,
	log *zap.Logger,
) *Preparer {
	return &Preparer{
		Campaigns: campaigns,
		Contacts:  contacts,
		Shipments: shipments,
		Queue:     q,
		Log:       log,
	}
}

func (p *Preparer) Handle(ctx context.Context, payload model.PrepareContactPayload) error {
	cam, err := p.Campaigns.GetByID(ctx, payload.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign %d: %w", payload.CampaignID, err)
	}
	contact, err := p.Contacts.GetByID(ctx, payload.ContactID)
	if err != nil {
		return fmt.Errorf("load contact %d: %w", payload.ContactID, err)
	}
	if cam == nil || contact == nil {
		p.Log.Warn("prepare: campaign or contact gone",
			zap.Int64("campaign", payload.CampaignID),
			zap.Int64("contact", payload.ContactID),
		)
		return nil
	}

	message, confirmation := p.compose(cam, contact, payload)

	ship, created, err := p.Shipments.FindOrCreate(ctx, model.Shipment{
		ID:                  util.NewULID(),
		CampaignID:          cam.ID,
		ContactID:           contact.ID,
		Number:              util.NormalizePhone(contact.Number),
		Message:             message,
		ConfirmationMessage: confirmation,
	})
	if err != nil {
		return fmt.Errorf("find or create shipment (%d, %d): %w", cam.ID, contact.ID, err)
	}

	if ship.Terminal() || ship.AwaitingConfirmation() {
		// Already sent, failed, or parked waiting on the contact.
		return nil
	}

	if !created {
		if err := p.Shipments.UpdateComposition(ctx, ship.ID, message, confirmation); err != nil {
			return fmt.Errorf("refresh shipment %s composition: %w", ship.ID, err)
		}
	}

	jobID, err := p.Queue.Enqueue(ctx, model.TaskDispatchCampaign,
		model.DispatchPayload{
			CampaignID: cam.ID,
			ShipmentID: ship.ID,
			ContactID:  contact.ID,
		},
		queue.Options{Delay: time.Duration(payload.DelayMs) * time.Millisecond},
	)
	if err != nil {
		return fmt.Errorf("enqueue dispatch for shipment %s: %w", ship.ID, err)
	}
	if err := p.Shipments.SetJobID(ctx, ship.ID, jobID); err != nil {
		return fmt.Errorf("record job id on shipment %s: %w", ship.ID, err)
	}
	return nil
}

// compose picks the message variant fixed at expansion time and renders
// both bodies. The confirmation variant follows the same index, wrapped to
// however many confirmation messages the campaign actually has.
func (p *Preparer) compose(cam *model.Campaign, contact *model.ContactListItem, payload model.PrepareContactPayload) (message, confirmation string) {
	messages := cam.ValidMessages()
	if len(messages) > 0 {
		message = ComposeBody(messages[payload.VariantIndex%len(messages)], payload.Variables, contact)
	}
	if cam.Confirmation {
		confirmations := cam.ValidConfirmationMessages()
		if len(confirmations) > 0 {
			confirmation = ComposeBody(confirmations[payload.VariantIndex%len(confirmations)], payload.Variables, contact)
		}
	}
	return message, confirmation
}
