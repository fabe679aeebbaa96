package paymentgateway

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	IntentStatusSucceeded      = "succeeded"
	IntentStatusProcessing     = "processing"
	IntentStatusRequiresAction = "requires_action"
	IntentStatusCanceled       = "canceled"

	SessionPaymentStatusPaid   = "paid"
	SessionPaymentStatusUnpaid = "unpaid"
)

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
)

type ContactDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type CheckoutSession struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentIntent   string            `json:"payment_intent"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Customer        string            `json:"customer"`
	CustomerDetails *ContactDetails   `json:"customer_details"`
	Metadata        map[string]string `json:"metadata"`
	Created         int64             `json:"created"`
}

type PaymentIntent struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Customer       string            `json:"customer"`
	ReceiptEmail   string            `json:"receipt_email"`
	LatestCharge   string            `json:"latest_charge"`
	Metadata       map[string]string `json:"metadata"`
	Created        int64             `json:"created"`
}

type Charge struct {
	ID             string            `json:"id"`
	PaymentIntent  string            `json:"payment_intent"`
	Status         string            `json:"status"`
	Paid           bool              `json:"paid"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Customer       string            `json:"customer"`
	BillingDetails ContactDetails    `json:"billing_details"`
	Metadata       map[string]string `json:"metadata"`
	Created        int64             `json:"created"`
}

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Refund struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	PaymentIntent string `json:"payment_intent"`
	Charge        string `json:"charge"`
}

type PaymentIntentList struct {
	Data    []PaymentIntent `json:"data"`
	HasMore bool            `json:"has_more"`
}

type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type APIError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type LineItem struct {
	Name     string
	Amount   int64
	Quantity int64
}

type CheckoutSessionParams struct {
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	LineItems     []LineItem
	Metadata      map[string]string
}

func (p *CheckoutSessionParams) Validate() error {
	if len(p.LineItems) == 0 {
		return errors.New("at least one line item is required")
	}
	for _, li := range p.LineItems {
		if li.Amount <= 0 {
			return errors.New("line item amount must be greater than 0")
		}
	}
	if p.Currency == "" {
		return errors.New("currency is required")
	}
	if p.SuccessURL == "" || p.CancelURL == "" {
		return errors.New("success and cancel urls are required")
	}
	return nil
}

// RefundParams targets exactly one of PaymentIntent or Charge.
type RefundParams struct {
	PaymentIntent  string
	Charge         string
	Amount         int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundTarget fills PaymentIntent or Charge from a stored payment ref.
// Charges created without an intent are stored under their ch_ id.
func (p *RefundParams) RefundTarget(ref string) *RefundParams {
	if strings.HasPrefix(ref, "ch_") {
		p.Charge = ref
	} else {
		p.PaymentIntent = ref
	}
	return p
}
