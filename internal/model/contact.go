package model

import "time"

// ContactListItem is one recipient snapshot in a contact list. Only items
// validated as WhatsApp-routable by the number-validation service are
// eligible for dispatch.
type ContactListItem struct {
	ID            int64     `db:"id"`
	ContactListID int64     `db:"contact_list_id"`
	Name          string    `db:"name"`
	Number        string    `db:"number"`
	Email         string    `db:"email"`
	WhatsappValid bool      `db:"is_whatsapp_valid"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}
