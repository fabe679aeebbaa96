package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/invoice"
	"github.com/frahmantamala/song-requests/internal/invoice"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) invoice.RepositoryAPI {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *dm.Invoice) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoNothing: true,
		}).
		Create(inv)
	return res.RowsAffected > 0, res.Error
}

func (r *InvoiceRepository) GetByRequestID(ctx context.Context, requestID string) (*dm.Invoice, error) {
	var inv dm.Invoice
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}
