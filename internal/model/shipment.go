package model

import "time"

// Shipment is the per-recipient delivery record for one campaign: exactly
// one row per (campaign, contact), enforced by a unique key. It is the
// idempotency anchor for the whole pipeline; every retried task checks it
// before acting.
//
// Delivered is tri-state: nil while pending, then exactly one transition to
// true (accepted for sending) or false (failed). DeliveredAt being set
// makes the row terminal; terminal rows are never overwritten.
type Shipment struct {
	ID         string `db:"id"`
	CampaignID int64  `db:"campaign_id"`
	ContactID  int64  `db:"contact_id"`
	Number     string `db:"number"`

	Message             string `db:"message"`
	ConfirmationMessage string `db:"confirmation_message"`

	Delivered   *bool      `db:"is_delivered_successfully"`
	DeliveredAt *time.Time `db:"delivered_at"`
	MessageID   *string    `db:"message_id"`

	// JobID is the queue id of the in-flight dispatch job, kept so the
	// reconciler can tell an orphaned shipment from a merely slow one.
	JobID *string `db:"job_id"`

	ConfirmationRequestedAt *time.Time `db:"confirmation_requested_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Terminal reports whether the shipment already has its final outcome.
func (s *Shipment) Terminal() bool { return s.DeliveredAt != nil }

// AwaitingConfirmation reports whether a confirmation request went out and
// the shipment is parked until the contact replies.
func (s *Shipment) AwaitingConfirmation() bool { return s.ConfirmationRequestedAt != nil }
