package request

import (
	"time"

	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
)

type Request struct {
	ID                   string     `json:"id"`
	OrganizationID       string     `json:"organization_id,omitempty"`
	EventCode            string     `json:"event_code,omitempty"`
	Kind                 string     `json:"kind"`
	PaymentCode          string     `json:"payment_code"`
	SongTitle            string     `json:"song_title,omitempty"`
	SongArtist           string     `json:"song_artist,omitempty"`
	SongURL              string     `json:"song_url,omitempty"`
	Message              string     `json:"message,omitempty"`
	RecipientName        string     `json:"recipient_name,omitempty"`
	AmountRequested      int64      `json:"amount_requested"`
	PriorityFeeNext      int64      `json:"priority_fee_next"`
	PriorityFeeFastTrack int64      `json:"priority_fee_fast_track"`
	PriorityOrder        int        `json:"priority_order"`
	PaymentStatus        string     `json:"payment_status"`
	PaymentRail          string     `json:"payment_rail"`
	GatewayPaymentRef    string     `json:"gateway_payment_ref,omitempty"`
	GatewaySessionRef    string     `json:"gateway_session_ref,omitempty"`
	RequesterName        string     `json:"requester_name,omitempty"`
	RequesterEmail       string     `json:"requester_email,omitempty"`
	RequesterPhone       string     `json:"requester_phone,omitempty"`
	AmountPaid           int64      `json:"amount_paid"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	RefundAmount         int64      `json:"refund_amount"`
	RefundReason         string     `json:"refund_reason,omitempty"`
	RefundedAt           *time.Time `json:"refunded_at,omitempty"`
	Status               string     `json:"status"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Total is what the guest owes: base amount plus any priority fee.
func (r *Request) Total() int64 {
	return r.AmountRequested + r.PriorityFeeNext + r.PriorityFeeFastTrack
}

func (r *Request) Fees() int64 {
	return r.PriorityFeeNext + r.PriorityFeeFastTrack
}

func (r *Request) IsNext() bool {
	return r.PriorityOrder == dm.PriorityNext
}

func (r *Request) IsFastTrack() bool {
	return r.PriorityOrder == dm.PriorityFastTrack
}

func (r *Request) IsPaid() bool {
	return r.PaymentStatus == dm.PaymentStatusPaid
}

// IsSettled reports whether the row counts as paid for the queue.
func (r *Request) IsSettled() bool {
	return r.PaymentStatus == dm.PaymentStatusPaid || r.PaymentStatus == dm.PaymentStatusPartiallyRefunded
}

func (r *Request) IsGatewayRail() bool {
	return r.PaymentRail == dm.RailGatewayCard
}

func (r *Request) IsCancelled() bool {
	return r.Status == dm.StatusCancelled
}

// IsManualRail reports rails tracked by the operator without a gateway.
func IsManualRail(rail string) bool {
	switch rail {
	case dm.RailCashApp, dm.RailVenmo, dm.RailCash, dm.RailOther:
		return true
	}
	return false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ToDataModel(r *Request) *dm.Request {
	return &dm.Request{
		ID:                   r.ID,
		OrganizationID:       optional(r.OrganizationID),
		EventCode:            r.EventCode,
		Kind:                 r.Kind,
		PaymentCode:          r.PaymentCode,
		SongTitle:            r.SongTitle,
		SongArtist:           r.SongArtist,
		SongURL:              r.SongURL,
		Message:              r.Message,
		RecipientName:        r.RecipientName,
		AmountRequested:      r.AmountRequested,
		PriorityFeeNext:      r.PriorityFeeNext,
		PriorityFeeFastTrack: r.PriorityFeeFastTrack,
		PriorityOrder:        r.PriorityOrder,
		PaymentStatus:        r.PaymentStatus,
		PaymentRail:          r.PaymentRail,
		GatewayPaymentRef:    optional(r.GatewayPaymentRef),
		GatewaySessionRef:    optional(r.GatewaySessionRef),
		RequesterName:        r.RequesterName,
		RequesterEmail:       r.RequesterEmail,
		RequesterPhone:       r.RequesterPhone,
		AmountPaid:           r.AmountPaid,
		PaidAt:               r.PaidAt,
		RefundAmount:         r.RefundAmount,
		RefundReason:         r.RefundReason,
		RefundedAt:           r.RefundedAt,
		Status:               r.Status,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func FromDataModel(r *dm.Request) *Request {
	return &Request{
		ID:                   r.ID,
		OrganizationID:       deref(r.OrganizationID),
		EventCode:            r.EventCode,
		Kind:                 r.Kind,
		PaymentCode:          r.PaymentCode,
		SongTitle:            r.SongTitle,
		SongArtist:           r.SongArtist,
		SongURL:              r.SongURL,
		Message:              r.Message,
		RecipientName:        r.RecipientName,
		AmountRequested:      r.AmountRequested,
		PriorityFeeNext:      r.PriorityFeeNext,
		PriorityFeeFastTrack: r.PriorityFeeFastTrack,
		PriorityOrder:        r.PriorityOrder,
		PaymentStatus:        r.PaymentStatus,
		PaymentRail:          r.PaymentRail,
		GatewayPaymentRef:    deref(r.GatewayPaymentRef),
		GatewaySessionRef:    deref(r.GatewaySessionRef),
		RequesterName:        r.RequesterName,
		RequesterEmail:       r.RequesterEmail,
		RequesterPhone:       r.RequesterPhone,
		AmountPaid:           r.AmountPaid,
		PaidAt:               r.PaidAt,
		RefundAmount:         r.RefundAmount,
		RefundReason:         r.RefundReason,
		RefundedAt:           r.RefundedAt,
		Status:               r.Status,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}
