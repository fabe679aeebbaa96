package reconcile

import (
	"context"
	"strings"
	"time"

	errors "github.com/frahmantamala/song-requests/internal"
	gw "github.com/frahmantamala/song-requests/internal/core/datamodel/paymentgateway"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/request"
)

const (
	prefixIntent  = "pi_"
	prefixCharge  = "ch_"
	prefixSession = "cs_"
)

const metadataRequestID = "request_id"

type Gateway interface {
	GetCheckoutSession(ctx context.Context, id string) (*gw.CheckoutSession, error)
	GetPaymentIntent(ctx context.Context, id string) (*gw.PaymentIntent, error)
	GetCharge(ctx context.Context, id string) (*gw.Charge, error)
	GetCustomer(ctx context.Context, id string) (*gw.Customer, error)
}

// Payment is a gateway payment object normalized across intents, charges and
// checkout sessions. Ref is the value stored as gateway_payment_ref: the
// payment intent id when there is one, otherwise the charge id.
type Payment struct {
	Ref        string            `json:"ref"`
	SessionRef string            `json:"session_ref,omitempty"`
	Succeeded  bool              `json:"succeeded"`
	Status     string            `json:"status"`
	Amount     int64             `json:"amount"`
	Currency   string            `json:"currency"`
	CustomerID string            `json:"customer_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Identity   request.Identity  `json:"-"`
	Created    time.Time         `json:"created"`
}

func (p *Payment) RequestID() string {
	if p.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(p.Metadata[metadataRequestID])
}

func (p *Payment) OrganizationID() string {
	if p.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(p.Metadata["organization_id"])
}

// LocalStatus maps the gateway status onto the request's payment_status.
func (p *Payment) LocalStatus() string {
	if p.Succeeded {
		return dm.PaymentStatusPaid
	}
	return dm.PaymentStatusPending
}

func IsIntentRef(ref string) bool {
	return strings.HasPrefix(ref, prefixIntent)
}

func FromIntent(pi *gw.PaymentIntent) *Payment {
	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	return &Payment{
		Ref:        pi.ID,
		Succeeded:  pi.Status == gw.IntentStatusSucceeded,
		Status:     pi.Status,
		Amount:     amount,
		Currency:   pi.Currency,
		CustomerID: pi.Customer,
		Metadata:   pi.Metadata,
		Identity:   request.Identity{Email: pi.ReceiptEmail},
		Created:    unix(pi.Created),
	}
}

func FromCharge(ch *gw.Charge) *Payment {
	ref := ch.PaymentIntent
	if ref == "" {
		ref = ch.ID
	}
	return &Payment{
		Ref:        ref,
		Succeeded:  ch.Paid && ch.Status == gw.IntentStatusSucceeded,
		Status:     ch.Status,
		Amount:     ch.Amount,
		Currency:   ch.Currency,
		CustomerID: ch.Customer,
		Metadata:   ch.Metadata,
		Identity: request.Identity{
			Name:  ch.BillingDetails.Name,
			Email: ch.BillingDetails.Email,
			Phone: ch.BillingDetails.Phone,
		},
		Created: unix(ch.Created),
	}
}

// FromSession has an empty Ref while the session is unpaid.
func FromSession(cs *gw.CheckoutSession) *Payment {
	p := &Payment{
		Ref:        cs.PaymentIntent,
		SessionRef: cs.ID,
		Succeeded:  cs.PaymentStatus == gw.SessionPaymentStatusPaid,
		Status:     cs.PaymentStatus,
		Amount:     cs.AmountTotal,
		Currency:   cs.Currency,
		CustomerID: cs.Customer,
		Metadata:   cs.Metadata,
		Created:    unix(cs.Created),
	}
	if cs.CustomerDetails != nil {
		p.Identity = request.Identity{
			Name:  cs.CustomerDetails.Name,
			Email: cs.CustomerDetails.Email,
			Phone: cs.CustomerDetails.Phone,
		}
	}
	return p
}

func unix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// Fetch loads and normalizes the gateway object named by ref.
func (e *Engine) Fetch(ctx context.Context, ref string) (*Payment, error) {
	ref = strings.TrimSpace(ref)
	var p *Payment

	switch {
	case strings.HasPrefix(ref, prefixIntent):
		pi, err := e.gateway.GetPaymentIntent(ctx, ref)
		if err != nil {
			return nil, err
		}
		p = FromIntent(pi)
		if pi.LatestCharge != "" {
			if ch, err := e.gateway.GetCharge(ctx, pi.LatestCharge); err == nil {
				p.Identity = fillIdentity(p.Identity, FromCharge(ch).Identity)
			} else {
				e.logger.Debug("could not load latest charge for identity", "payment_ref", ref, "error", err)
			}
		}

	case strings.HasPrefix(ref, prefixCharge):
		ch, err := e.gateway.GetCharge(ctx, ref)
		if err != nil {
			return nil, err
		}
		p = FromCharge(ch)
		if len(p.Metadata) == 0 && ch.PaymentIntent != "" {
			if pi, err := e.gateway.GetPaymentIntent(ctx, ch.PaymentIntent); err == nil {
				p.Metadata = pi.Metadata
			}
		}

	case strings.HasPrefix(ref, prefixSession):
		cs, err := e.gateway.GetCheckoutSession(ctx, ref)
		if err != nil {
			return nil, err
		}
		p = FromSession(cs)

	default:
		return nil, errors.NewValidationFieldError("payment_ref", "payment ref must be a payment intent, charge or checkout session id", errors.ErrCodeValidationFailed)
	}

	e.enrichFromCustomer(ctx, p)
	return p, nil
}

func (e *Engine) enrichFromCustomer(ctx context.Context, p *Payment) {
	if p.CustomerID == "" || (p.Identity.Name != "" && p.Identity.Email != "" && p.Identity.Phone != "") {
		return
	}
	c, err := e.gateway.GetCustomer(ctx, p.CustomerID)
	if err != nil {
		e.logger.Debug("could not load gateway customer", "customer_id", p.CustomerID, "error", err)
		return
	}
	p.Identity = fillIdentity(p.Identity, request.Identity{Name: c.Name, Email: c.Email, Phone: c.Phone})
}

func fillIdentity(have, more request.Identity) request.Identity {
	if have.Name == "" {
		have.Name = more.Name
	}
	if have.Email == "" {
		have.Email = more.Email
	}
	if have.Phone == "" {
		have.Phone = more.Phone
	}
	return have
}

// IdentityUpdate returns the payer fields that should overwrite the request.
// The gateway wins, except a name is never replaced by an empty value or the
// "Guest" placeholder.
func IdentityUpdate(req *request.Request, incoming request.Identity) (request.Identity, bool) {
	var out request.Identity
	name := strings.TrimSpace(incoming.Name)
	if name != "" && !strings.EqualFold(name, "guest") && name != req.RequesterName {
		out.Name = name
	}
	email := strings.ToLower(strings.TrimSpace(incoming.Email))
	if email != "" && email != req.RequesterEmail {
		out.Email = email
	}
	phone := strings.TrimSpace(incoming.Phone)
	if phone != "" && phone != req.RequesterPhone {
		out.Phone = phone
	}
	return out, out != (request.Identity{})
}
