package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/frahmantamala/song-requests/internal"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/request"
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) request.RepositoryAPI {
	return &RequestRepository{db: db}
}

// IsUniqueViolation recognizes unique index failures from postgres and sqlite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *RequestRepository) Create(ctx context.Context, req *request.Request) error {
	row := request.ToDataModel(req)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if IsUniqueViolation(err) {
			return internal.NewConflictError("request already exists", internal.ErrCodePaymentRefConflict).WithCause(err)
		}
		return err
	}
	return nil
}

func (r *RequestRepository) first(ctx context.Context, query string, args ...interface{}) (*request.Request, error) {
	var row dm.Request
	if err := r.db.WithContext(ctx).Where(query, args...).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRequestNotFound
		}
		return nil, err
	}
	return request.FromDataModel(&row), nil
}

func (r *RequestRepository) find(ctx context.Context, order string, limit int, query string, args ...interface{}) ([]*request.Request, error) {
	var rows []*dm.Request
	q := r.db.WithContext(ctx).Where(query, args...).Order(order)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*request.Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, request.FromDataModel(row))
	}
	return out, nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id string) (*request.Request, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *RequestRepository) GetByPaymentRef(ctx context.Context, ref string) (*request.Request, error) {
	return r.first(ctx, "gateway_payment_ref = ?", ref)
}

func (r *RequestRepository) GetBySessionRef(ctx context.Context, ref string) (*request.Request, error) {
	return r.first(ctx, "gateway_session_ref = ?", ref)
}

func (r *RequestRepository) ListByPaymentCode(ctx context.Context, code string) ([]*request.Request, error) {
	return r.find(ctx, "created_at ASC", 0, "payment_code = ?", code)
}

func (r *RequestRepository) PaymentCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&dm.Request{}).Where("payment_code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *RequestRepository) PendingCodeExists(ctx context.Context, orgID, code string) (bool, error) {
	q := r.db.WithContext(ctx).Model(&dm.Request{}).
		Where("payment_code = ? AND payment_status = ? AND status = ?", code, dm.PaymentStatusPending, dm.StatusNew)
	if orgID == "" {
		q = q.Where("organization_id IS NULL")
	} else {
		q = q.Where("organization_id = ?", orgID)
	}
	var count int64
	err := q.Count(&count).Error
	return count > 0, err
}

func (r *RequestRepository) FindByEmailBetween(ctx context.Context, email string, from, to time.Time) ([]*request.Request, error) {
	return r.find(ctx, "created_at ASC", 50,
		"LOWER(requester_email) = ? AND created_at BETWEEN ? AND ?", strings.ToLower(email), from, to)
}

func (r *RequestRepository) ListOrphanCandidates(ctx context.Context, since time.Time, limit int) ([]*request.Request, error) {
	return r.find(ctx, "created_at ASC", limit,
		"payment_rail = ? AND payment_status = ? AND gateway_payment_ref IS NULL AND status = ? AND created_at >= ?",
		dm.RailGatewayCard, dm.PaymentStatusPending, dm.StatusNew, since)
}

func (r *RequestRepository) LinkPayment(ctx context.Context, id string, link request.PaymentLink) (bool, error) {
	updates := map[string]interface{}{
		"gateway_payment_ref": link.PaymentRef,
		"updated_at":          time.Now().UTC(),
	}
	if link.PaymentStatus == dm.PaymentStatusPaid {
		updates["payment_status"] = gorm.Expr("CASE WHEN payment_status IN (?, ?) THEN payment_status ELSE ? END",
			dm.PaymentStatusRefunded, dm.PaymentStatusPartiallyRefunded, dm.PaymentStatusPaid)
		updates["amount_paid"] = link.AmountPaid
		updates["paid_at"] = gorm.Expr("COALESCE(paid_at, ?)", link.PaidAt)
	}
	if link.OrganizationID != "" {
		updates["organization_id"] = gorm.Expr("COALESCE(organization_id, ?)", link.OrganizationID)
	}
	if link.PaymentRail != "" {
		updates["payment_rail"] = link.PaymentRail
	}

	res := r.db.WithContext(ctx).Model(&dm.Request{}).
		Where("id = ? AND (gateway_payment_ref IS NULL OR gateway_payment_ref = ?)", id, link.PaymentRef).
		Updates(updates)
	if res.Error != nil {
		if IsUniqueViolation(res.Error) {
			return false, internal.NewConflictError("payment is already linked to another request", internal.ErrCodePaymentRefConflict).WithCause(res.Error)
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *RequestRepository) MergeIdentity(ctx context.Context, id string, identity request.Identity) error {
	updates := map[string]interface{}{}
	if identity.Name != "" {
		updates["requester_name"] = identity.Name
	}
	if identity.Email != "" {
		updates["requester_email"] = strings.ToLower(identity.Email)
	}
	if identity.Phone != "" {
		updates["requester_phone"] = identity.Phone
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&dm.Request{}).Where("id = ?", id).Updates(updates).Error
}

func (r *RequestRepository) SetSessionRef(ctx context.Context, id, ref string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&dm.Request{}).
		Where("id = ? AND gateway_session_ref IS NULL", id).
		Updates(map[string]interface{}{"gateway_session_ref": ref, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

func (r *RequestRepository) ApplyRefund(ctx context.Context, id string, update request.RefundUpdate) (bool, error) {
	res := r.db.WithContext(ctx).Model(&dm.Request{}).
		Where("id = ? AND payment_status = ? AND amount_paid >= ?", id, dm.PaymentStatusPaid, update.Amount).
		Updates(map[string]interface{}{
			"refund_amount":  update.Amount,
			"refund_reason":  update.Reason,
			"refunded_at":    update.RefundedAt,
			"payment_status": update.PaymentStatus,
			"status":         update.Status,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *RequestRepository) ConfirmManualPayment(ctx context.Context, code, rail string, paidAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&dm.Request{}).
		Where("payment_code = ? AND payment_status = ? AND status = ?", code, dm.PaymentStatusPending, dm.StatusNew).
		Where("amount_requested + priority_fee_next + priority_fee_fast_track > 0").
		Updates(map[string]interface{}{
			"payment_status": dm.PaymentStatusPaid,
			"payment_rail":   rail,
			"amount_paid":    gorm.Expr("amount_requested + priority_fee_next + priority_fee_fast_track"),
			"paid_at":        paidAt,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *RequestRepository) BackfillOrganization(ctx context.Context, id, orgID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&dm.Request{}).
		Where("id = ? AND organization_id IS NULL", id).
		Updates(map[string]interface{}{"organization_id": orgID, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

func (r *RequestRepository) AssignOrganization(ctx context.Context, id, orgID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&dm.Request{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"organization_id": orgID, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

func (r *RequestRepository) DeleteForOrganization(ctx context.Context, orgID string, ids []string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("organization_id = ? AND id IN ?", orgID, ids).
		Delete(&dm.Request{})
	return res.RowsAffected, res.Error
}
