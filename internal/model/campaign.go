package model

import (
	"strings"
	"time"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignScheduled CampaignStatus = "PROGRAMADA"
	CampaignClaimed   CampaignStatus = "AGENDADA"
	CampaignRunning   CampaignStatus = "EM_ANDAMENTO"
	CampaignDone      CampaignStatus = "FINALIZADA"
	CampaignError     CampaignStatus = "ERRO"
)

func (s CampaignStatus) String() string { return string(s) }

func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignClaimed,
		CampaignRunning, CampaignDone, CampaignError:
		return true
	}
	return false
}

// Terminal reports whether no further pipeline transition is allowed.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignDone || s == CampaignError
}

// Campaign is one bulk-send definition: one contact list dispatched through
// one messaging account. The pipeline owns status from AGENDADA onward;
// campaign CRUD lives outside this service.
type Campaign struct {
	ID            int64          `db:"id" json:"id"`
	TenantID      int64          `db:"tenant_id" json:"tenantId"`
	Name          string         `db:"name" json:"name"`
	ContactListID int64          `db:"contact_list_id" json:"contactListId"`
	AccountID     int64          `db:"account_id" json:"accountId"`
	Status        CampaignStatus `db:"status" json:"status"`
	Confirmation  bool           `db:"confirmation" json:"confirmation"`
	ScheduledAt   *time.Time     `db:"scheduled_at" json:"scheduledAt"`
	CompletedAt   *time.Time     `db:"completed_at" json:"completedAt"`

	Message1 string `db:"message1" json:"message1"`
	Message2 string `db:"message2" json:"message2"`
	Message3 string `db:"message3" json:"message3"`
	Message4 string `db:"message4" json:"message4"`
	Message5 string `db:"message5" json:"message5"`

	ConfirmationMessage1 string `db:"confirmation_message1" json:"confirmationMessage1"`
	ConfirmationMessage2 string `db:"confirmation_message2" json:"confirmationMessage2"`
	ConfirmationMessage3 string `db:"confirmation_message3" json:"confirmationMessage3"`
	ConfirmationMessage4 string `db:"confirmation_message4" json:"confirmationMessage4"`
	ConfirmationMessage5 string `db:"confirmation_message5" json:"confirmationMessage5"`

	MediaPath  string `db:"media_path" json:"mediaPath"`
	MediaName  string `db:"media_name" json:"mediaName"`
	FileListID *int64 `db:"file_list_id" json:"fileListId"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// ValidMessages returns the configured message variants, skipping blanks.
func (c *Campaign) ValidMessages() []string {
	return nonBlank(c.Message1, c.Message2, c.Message3, c.Message4, c.Message5)
}

// ValidConfirmationMessages returns the confirmation variants, skipping blanks.
func (c *Campaign) ValidConfirmationMessages() []string {
	return nonBlank(
		c.ConfirmationMessage1,
		c.ConfirmationMessage2,
		c.ConfirmationMessage3,
		c.ConfirmationMessage4,
		c.ConfirmationMessage5,
	)
}

func nonBlank(in ...string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
