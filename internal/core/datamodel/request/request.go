package request

import "time"

const (
	KindSongRequest = "song_request"
	KindShoutout    = "shoutout"
	KindTip         = "tip"
)

const (
	PaymentStatusPending           = "pending"
	PaymentStatusPaid              = "paid"
	PaymentStatusFailed            = "failed"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
)

const (
	RailGatewayCard = "gateway_card"
	RailCashApp     = "cashapp"
	RailVenmo       = "venmo"
	RailCash        = "cash"
	RailOther       = "other"
)

const (
	StatusNew       = "new"
	StatusCancelled = "cancelled"
)

const (
	PriorityNext      = 0
	PriorityFastTrack = 1
	PriorityStandard  = 1000
)

type Request struct {
	ID                   string     `gorm:"column:id;primaryKey"`
	OrganizationID       *string    `gorm:"column:organization_id;index"`
	EventCode            string     `gorm:"column:event_code"`
	Kind                 string     `gorm:"column:kind;not null"`
	PaymentCode          string     `gorm:"column:payment_code;index"`
	SongTitle            string     `gorm:"column:song_title"`
	SongArtist           string     `gorm:"column:song_artist"`
	SongURL              string     `gorm:"column:song_url"`
	Message              string     `gorm:"column:message"`
	RecipientName        string     `gorm:"column:recipient_name"`
	AmountRequested      int64      `gorm:"column:amount_requested;not null;default:0"`
	PriorityFeeNext      int64      `gorm:"column:priority_fee_next;not null;default:0"`
	PriorityFeeFastTrack int64      `gorm:"column:priority_fee_fast_track;not null;default:0"`
	PriorityOrder        int        `gorm:"column:priority_order;not null;default:1000"`
	PaymentStatus        string     `gorm:"column:payment_status;not null;default:pending"`
	PaymentRail          string     `gorm:"column:payment_rail;not null;default:gateway_card"`
	GatewayPaymentRef    *string    `gorm:"column:gateway_payment_ref;uniqueIndex"`
	GatewaySessionRef    *string    `gorm:"column:gateway_session_ref;index"`
	RequesterName        string     `gorm:"column:requester_name"`
	RequesterEmail       string     `gorm:"column:requester_email;index"`
	RequesterPhone       string     `gorm:"column:requester_phone"`
	AmountPaid           int64      `gorm:"column:amount_paid;not null;default:0"`
	PaidAt               *time.Time `gorm:"column:paid_at"`
	RefundAmount         int64      `gorm:"column:refund_amount;not null;default:0"`
	RefundReason         string     `gorm:"column:refund_reason"`
	RefundedAt           *time.Time `gorm:"column:refunded_at"`
	Status               string     `gorm:"column:status;not null;default:new"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}

func (Request) TableName() string {
	return "requests"
}
