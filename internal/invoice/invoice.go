package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/song-requests/internal/core/common/money"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/invoice"
	"github.com/frahmantamala/song-requests/internal/core/events"
)

type RepositoryAPI interface {
	// Create is a no-op returning false when the request already has an invoice.
	Create(ctx context.Context, inv *dm.Invoice) (bool, error)
	GetByRequestID(ctx context.Context, requestID string) (*dm.Invoice, error)
}

type Subscriber interface {
	Subscribe(eventType string, handler events.Handler)
}

// Issuer writes one invoice per paid request. It runs off the event bus, so a
// failure never affects the payment that triggered it.
type Issuer struct {
	repo   RepositoryAPI
	logger *slog.Logger
	now    func() time.Time
}

func NewIssuer(repo RepositoryAPI, logger *slog.Logger) *Issuer {
	return &Issuer{repo: repo, logger: logger, now: time.Now}
}

func (i *Issuer) Register(bus Subscriber) {
	bus.Subscribe(events.EventTypeRequestPaid, i.HandlePaid)
}

func Number(at time.Time, requestID string) string {
	short := strings.ToUpper(strings.ReplaceAll(requestID, "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("INV-%s-%s", at.UTC().Format("20060102"), short)
}

func (i *Issuer) HandlePaid(ctx context.Context, event events.Event) error {
	paid, ok := event.(*events.RequestPaidEvent)
	if !ok {
		i.logger.Warn("unexpected event for invoice issuer", "event_type", event.EventType())
		return nil
	}

	now := i.now().UTC()
	inv := &dm.Invoice{
		ID:        uuid.NewString(),
		RequestID: paid.RequestID,
		Number:    Number(now, paid.RequestID),
		Amount:    paid.AmountPaid,
		Currency:  strings.ToLower(paid.Currency),
		CreatedAt: now,
	}
	if paid.OrganizationID != "" {
		org := paid.OrganizationID
		inv.OrganizationID = &org
	}

	created, err := i.repo.Create(ctx, inv)
	if err != nil {
		i.logger.Error("failed to issue invoice", "request_id", paid.RequestID, "error", err)
		return err
	}
	if !created {
		i.logger.Debug("invoice already issued", "request_id", paid.RequestID)
		return nil
	}
	i.logger.Info("invoice issued",
		"request_id", paid.RequestID,
		"invoice_number", inv.Number,
		"amount", money.Format(inv.Amount, inv.Currency))
	return nil
}
