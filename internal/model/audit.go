package model

import "time"

// Audit entity kinds.
const (
	AuditEntityCampaign = "campaign"
	AuditEntityShipment = "shipment"
)

// AuditEvent records one state transition in the pipeline. Events are
// published to Kafka and sunk into ClickHouse so support and billing can
// replay what happened to any campaign or recipient.
type AuditEvent struct {
	Entity     string    `json:"entity" db:"entity"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	TenantID   int64     `json:"tenant_id" db:"tenant_id"`
	CampaignID int64     `json:"campaign_id" db:"campaign_id"`
	Transition string    `json:"transition" db:"transition"`
	Detail     string    `json:"detail,omitempty" db:"detail"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}
