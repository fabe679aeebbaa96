package reconcile

import (
	"context"
	"encoding/json"

	errors "github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/core/datamodel/integrity"
	gw "github.com/frahmantamala/song-requests/internal/core/datamodel/paymentgateway"
)

// HandleEvent reconciles a verified gateway event. Only transient failures are
// returned, so the gateway redelivers; unmatched or conflicting payments are
// left for the orphan scanner and the integrity queue.
func (e *Engine) HandleEvent(ctx context.Context, event *gw.Event) error {
	var p *Payment

	switch event.Type {
	case gw.EventCheckoutSessionCompleted:
		var cs gw.CheckoutSession
		if err := json.Unmarshal(event.Data.Object, &cs); err != nil {
			return errors.NewValidationError("malformed checkout session in webhook", errors.ErrCodeValidationFailed)
		}
		p = FromSession(&cs)

	case gw.EventPaymentIntentSucceeded:
		var pi gw.PaymentIntent
		if err := json.Unmarshal(event.Data.Object, &pi); err != nil {
			return errors.NewValidationError("malformed payment intent in webhook", errors.ErrCodeValidationFailed)
		}
		p = FromIntent(&pi)

	default:
		e.logger.Debug("ignoring webhook event", "event_id", event.ID, "event_type", event.Type)
		return nil
	}

	e.enrichFromCustomer(ctx, p)

	res, err := e.Apply(ctx, p, Target{}, ModeAutomatic)
	switch {
	case err == nil:
		e.logger.Info("webhook reconciled",
			"event_id", event.ID,
			"event_type", event.Type,
			"request_id", res.Request.ID,
			"strategy", res.Strategy,
			"linked", res.Linked)
		return nil

	case errors.HasCode(err, errors.ErrCodeNoMatch):
		e.logger.Warn("webhook payment has no matching request", "event_id", event.ID, "payment_ref", p.Ref)
		return nil

	case errors.HasCode(err, errors.ErrCodePaymentRefConflict), errors.HasCode(err, errors.ErrCodeStaleWrite),
		errors.HasCode(err, errors.ErrCodeRailMismatch):
		e.record(ctx, integrity.KindRefMismatch, p, map[string]interface{}{
			"event_id": event.ID,
			"reason":   err.Error(),
		})
		return nil

	default:
		e.logger.Error("webhook reconciliation failed", "event_id", event.ID, "payment_ref", p.Ref, "error", err)
		return err
	}
}

func (e *Engine) record(ctx context.Context, kind string, p *Payment, details map[string]interface{}) {
	if e.recorder == nil {
		return
	}
	ref := p.Ref
	if ref == "" {
		ref = p.SessionRef
	}
	details["amount"] = p.Amount
	details["currency"] = p.Currency
	if err := e.recorder.Record(ctx, kind, ref, p.RequestID(), details); err != nil {
		e.logger.Error("failed to record integrity issue", "kind", kind, "payment_ref", ref, "error", err)
	}
}
