package model

// Task type names on the campaign queue.
const (
	TaskProcessCampaign  = "ProcessCampaign"
	TaskPrepareContact   = "PrepareContact"
	TaskDispatchCampaign = "DispatchCampaign"
)

// ProcessCampaignPayload expands one claimed campaign into per-contact
// preparation tasks.
type ProcessCampaignPayload struct {
	CampaignID int64 `json:"campaignId"`
}

// PrepareContactPayload carries everything the preparer needs so it stays
// deterministic under replay: the pacing delay is data measured from
// campaign start (not a queue delay), and the variant index is fixed at
// expansion time instead of read from shared state.
type PrepareContactPayload struct {
	CampaignID   int64      `json:"campaignId"`
	ContactID    int64      `json:"contactId"`
	DelayMs      int64      `json:"delayMs"`
	VariantIndex int        `json:"variantIndex"`
	Variables    []Variable `json:"variables,omitempty"`
}

// DispatchPayload performs the outbound send for one shipment.
type DispatchPayload struct {
	CampaignID int64  `json:"campaignId"`
	ShipmentID string `json:"shipmentId"`
	ContactID  int64  `json:"contactId"`
}
