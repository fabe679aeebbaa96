package integrity

import (
	"time"

	"gorm.io/datatypes"
)

const (
	KindMissingRequest     = "missing_request"
	KindUnpaidLocally      = "unpaid_locally"
	KindRefMismatch        = "ref_mismatch"
	KindRefundRecordFailed = "refund_record_failed"
)

// Issue is a discrepancy queued for operator review; it is never auto-corrected.
type Issue struct {
	ID         string         `gorm:"column:id;primaryKey"`
	Kind       string         `gorm:"column:kind;not null;uniqueIndex:idx_integrity_kind_ref"`
	GatewayRef string         `gorm:"column:gateway_ref;not null;uniqueIndex:idx_integrity_kind_ref"`
	RequestID  *string        `gorm:"column:request_id;index"`
	Details    datatypes.JSON `gorm:"column:details"`
	ResolvedAt *time.Time     `gorm:"column:resolved_at"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
}

func (Issue) TableName() string {
	return "integrity_issues"
}
