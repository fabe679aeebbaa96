package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRequestPaid     = "request.paid"
	EventTypeRequestRefunded = "request.refunded"
	EventTypeIntegrityIssue  = "integrity.issue"
)

type RequestPaidEvent struct {
	BaseEvent
	RequestID      string `json:"request_id"`
	OrganizationID string `json:"organization_id,omitempty"`
	PaymentRef     string `json:"payment_ref"`
	AmountPaid     int64  `json:"amount_paid"`
	Currency       string `json:"currency"`
	RequesterEmail string `json:"requester_email,omitempty"`
}

func NewRequestPaidEvent(requestID, organizationID, paymentRef string, amountPaid int64, currency, email string) *RequestPaidEvent {
	return &RequestPaidEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRequestPaid,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"request_id":      requestID,
				"organization_id": organizationID,
				"payment_ref":     paymentRef,
				"amount_paid":     amountPaid,
				"currency":        currency,
			},
		},
		RequestID:      requestID,
		OrganizationID: organizationID,
		PaymentRef:     paymentRef,
		AmountPaid:     amountPaid,
		Currency:       currency,
		RequesterEmail: email,
	}
}

type RequestRefundedEvent struct {
	BaseEvent
	RequestID    string `json:"request_id"`
	RefundAmount int64  `json:"refund_amount"`
	Full         bool   `json:"full"`
	Rail         string `json:"rail"`
}

func NewRequestRefundedEvent(requestID string, refundAmount int64, full bool, rail string) *RequestRefundedEvent {
	return &RequestRefundedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRequestRefunded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"request_id":    requestID,
				"refund_amount": refundAmount,
				"full":          full,
				"rail":          rail,
			},
		},
		RequestID:    requestID,
		RefundAmount: refundAmount,
		Full:         full,
		Rail:         rail,
	}
}

type IntegrityIssueEvent struct {
	BaseEvent
	Kind       string `json:"kind"`
	GatewayRef string `json:"gateway_ref"`
	RequestID  string `json:"request_id,omitempty"`
}

func NewIntegrityIssueEvent(kind, gatewayRef, requestID string) *IntegrityIssueEvent {
	return &IntegrityIssueEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeIntegrityIssue,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"kind":        kind,
				"gateway_ref": gatewayRef,
				"request_id":  requestID,
			},
		},
		Kind:       kind,
		GatewayRef: gatewayRef,
		RequestID:  requestID,
	}
}
