package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/zapflow/campaignd/internal/model"
)

type FilesRepository interface {
	ListByFileList(ctx context.Context, fileListID int64) ([]model.CampaignFile, error)
}

type FilesRepositoryImpl struct {
	db *sqlx.DB
}

func NewFilesRepository(db *sqlx.DB) *FilesRepositoryImpl {
	return &FilesRepositoryImpl{db: db}
}

var _ FilesRepository = (*FilesRepositoryImpl)(nil)

func (r *FilesRepositoryImpl) ListByFileList(ctx context.Context, fileListID int64) ([]model.CampaignFile, error) {
	var out []model.CampaignFile
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM campaign_files WHERE file_list_id = ? ORDER BY id ASC
	`, fileListID)
	return out, err
}
