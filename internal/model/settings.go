package model

import (
	"encoding/json"
	"time"
)

// Recognized campaign setting keys. Anything else in the table is ignored
// by the pipeline.
const (
	SettingMessageInterval     = "messageInterval"
	SettingLongerIntervalAfter = "longerIntervalAfter"
	SettingGreaterInterval     = "greaterInterval"
	SettingVariables           = "variables"
)

// CampaignSetting is one tenant-scoped key/value row, read-only to the
// pipeline. Values are JSON-encoded.
type CampaignSetting struct {
	ID        int64     `db:"id"`
	TenantID  int64     `db:"tenant_id"`
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Variable is one tenant-defined template substitution pair.
type Variable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PacingSettings is the parsed per-tenant pacing configuration.
// Intervals are in seconds.
type PacingSettings struct {
	MessageInterval     int
	LongerIntervalAfter int
	GreaterInterval     int
	Variables           []Variable
}

// DefaultPacingSettings mirrors the product defaults applied when a tenant
// has no explicit rows.
func DefaultPacingSettings() PacingSettings {
	return PacingSettings{
		MessageInterval:     90,
		LongerIntervalAfter: 20,
		GreaterInterval:     180,
	}
}

// ParsePacingSettings folds raw setting rows over the defaults. Malformed
// values keep the default for that key rather than failing the campaign.
func ParsePacingSettings(rows []CampaignSetting) PacingSettings {
	s := DefaultPacingSettings()
	for _, row := range rows {
		switch row.Key {
		case SettingMessageInterval:
			var v int
			if err := json.Unmarshal([]byte(row.Value), &v); err == nil {
				s.MessageInterval = v
			}
		case SettingLongerIntervalAfter:
			var v int
			if err := json.Unmarshal([]byte(row.Value), &v); err == nil {
				s.LongerIntervalAfter = v
			}
		case SettingGreaterInterval:
			var v int
			if err := json.Unmarshal([]byte(row.Value), &v); err == nil {
				s.GreaterInterval = v
			}
		case SettingVariables:
			var v []Variable
			if err := json.Unmarshal([]byte(row.Value), &v); err == nil {
				s.Variables = v
			}
		}
	}
	return s
}
