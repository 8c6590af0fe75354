package campaign

import (
	"strings"

	"github.com/zapflow/campaignd/internal/model"
)

// bodyPrefix is a zero-width non-joiner prepended to every composed
// campaign body, so downstream tooling can tell campaign traffic from
// hand-typed messages.
const bodyPrefix = "‌ "

// Substitute replaces the recognized placeholders with contact fields and
// tenant-defined variables. Unmatched placeholders are left intact.
func Substitute(msg string, vars []model.Variable, contact *model.ContactListItem) string {
	out := msg
	out = strings.ReplaceAll(out, "{nome}", contact.Name)
	out = strings.ReplaceAll(out, "{email}", contact.Email)
	out = strings.ReplaceAll(out, "{numero}", contact.Number)

	for _, v := range vars {
		out = strings.ReplaceAll(out, "{"+v.Key+"}", v.Value)
	}
	return out
}

// ComposeBody substitutes placeholders and applies the campaign prefix.
func ComposeBody(msg string, vars []model.Variable, contact *model.ContactListItem) string {
	return bodyPrefix + Substitute(msg, vars, contact)
}
