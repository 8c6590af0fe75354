package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/zapflow/campaignd/internal/model"
)

type SettingsRepository interface {
	// PacingForTenant reads the tenant's campaign settings and folds them
	// over the product defaults.
	PacingForTenant(ctx context.Context, tenantID int64) (model.PacingSettings, error)
}

type SettingsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) *SettingsRepositoryImpl {
	return &SettingsRepositoryImpl{db: db}
}

var _ SettingsRepository = (*SettingsRepositoryImpl)(nil)

func (r *SettingsRepositoryImpl) PacingForTenant(ctx context.Context, tenantID int64) (model.PacingSettings, error) {
	var rows []model.CampaignSetting
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM campaign_settings WHERE tenant_id = ?
	`, tenantID)
	if err != nil {
		return model.PacingSettings{}, err
	}
	return model.ParsePacingSettings(rows), nil
}
