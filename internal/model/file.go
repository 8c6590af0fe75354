package model

import "time"

// CampaignFile is one attachment option in a campaign's file list. The
// binary itself lives in external media storage; only the path travels
// through the pipeline.
type CampaignFile struct {
	ID         int64     `db:"id"`
	FileListID int64     `db:"file_list_id"`
	Name       string    `db:"name"`
	Path       string    `db:"path"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
