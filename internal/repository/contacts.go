package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/zapflow/campaignd/internal/model"
)

type ContactsRepository interface {
	GetByID(ctx context.Context, id int64) (*model.ContactListItem, error)

	// ListValidPage pages eligible recipients ordered by id ascending, so
	// expansion is deterministic and resumable.
	ListValidPage(ctx context.Context, contactListID int64, offset, limit int) ([]model.ContactListItem, error)

	CountValid(ctx context.Context, contactListID int64) (int64, error)
}

type ContactsRepositoryImpl struct {
	db *sqlx.DB
}

func NewContactsRepository(db *sqlx.DB) *ContactsRepositoryImpl {
	return &ContactsRepositoryImpl{db: db}
}

var _ ContactsRepository = (*ContactsRepositoryImpl)(nil)

func (r *ContactsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.ContactListItem, error) {
	var c model.ContactListItem
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM contact_list_items WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContactsRepositoryImpl) ListValidPage(ctx context.Context, contactListID int64, offset, limit int) ([]model.ContactListItem, error) {
	var out []model.ContactListItem
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM contact_list_items
		 WHERE contact_list_id = ? AND is_whatsapp_valid = TRUE
		 ORDER BY id ASC
		 LIMIT ? OFFSET ?
	`, contactListID, limit, offset)
	return out, err
}

func (r *ContactsRepositoryImpl) CountValid(ctx context.Context, contactListID int64) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM contact_list_items
		 WHERE contact_list_id = ? AND is_whatsapp_valid = TRUE
	`, contactListID)
	return n, err
}
