package main_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/checkout"
	"github.com/frahmantamala/song-requests/internal/core/datamodel/organization"
	gw "github.com/frahmantamala/song-requests/internal/core/datamodel/paymentgateway"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/core/events"
	"github.com/frahmantamala/song-requests/internal/core/testutil"
	"github.com/frahmantamala/song-requests/internal/invoice"
	invoicepg "github.com/frahmantamala/song-requests/internal/invoice/postgres"
	"github.com/frahmantamala/song-requests/internal/reconcile"
	"github.com/frahmantamala/song-requests/internal/request"
	requestpg "github.com/frahmantamala/song-requests/internal/request/postgres"
	"github.com/frahmantamala/song-requests/internal/tenant"
	tenantpg "github.com/frahmantamala/song-requests/internal/tenant/postgres"
)

// stubGateway completes every session it creates as paid.
type stubGateway struct {
	sessions map[string]*gw.CheckoutSession
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, params *gw.CheckoutSessionParams) (*gw.CheckoutSession, error) {
	var total int64
	for _, li := range params.LineItems {
		total += li.Amount * li.Quantity
	}
	cs := &gw.CheckoutSession{
		ID:            "cs_test_e2e",
		URL:           "https://checkout.example/cs_test_e2e",
		Status:        "complete",
		PaymentStatus: gw.SessionPaymentStatusPaid,
		PaymentIntent: "pi_test_e2e",
		AmountTotal:   total,
		Currency:      params.Currency,
		CustomerDetails: &gw.ContactDetails{
			Name:  "Jamie Guest",
			Email: "Jamie@Example.com",
		},
		Metadata: params.Metadata,
		Created:  time.Now().Unix(),
	}
	g.sessions[cs.ID] = cs
	return cs, nil
}

func (g *stubGateway) GetCheckoutSession(_ context.Context, id string) (*gw.CheckoutSession, error) {
	if cs, ok := g.sessions[id]; ok {
		return cs, nil
	}
	return nil, internal.ErrPaymentNotFound
}

func (g *stubGateway) GetPaymentIntent(context.Context, string) (*gw.PaymentIntent, error) {
	return nil, internal.ErrPaymentNotFound
}

func (g *stubGateway) GetCharge(context.Context, string) (*gw.Charge, error) {
	return nil, internal.ErrPaymentNotFound
}

func (g *stubGateway) GetCustomer(context.Context, string) (*gw.Customer, error) {
	return nil, internal.ErrPaymentNotFound
}

var _ = Describe("Paid song request", func() {
	It("goes from a referred submission to a paid, invoiced queue entry", func() {
		ctx := context.Background()
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		db, err := testutil.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())

		requests := requestpg.NewRequestRepository(db)
		orgs := tenantpg.NewOrganizationRepository(db)
		invoices := invoicepg.NewInvoiceRepository(db)
		acme := &organization.Organization{Slug: "acme", Name: "Acme Events"}
		Expect(orgs.Create(ctx, acme)).To(Succeed())

		bus := events.NewEventBus(lg)
		invoice.NewIssuer(invoices, lg).Register(bus)
		gateway := &stubGateway{sessions: map[string]*gw.CheckoutSession{}}

		service := request.NewService(request.ServiceDeps{
			Repo:         requests,
			Queue:        requestpg.NewQueueRepository(sqlx.NewDb(sqlDB, "sqlite3")),
			Resolver:     tenant.NewDefaultResolver(orgs, "", lg),
			Orgs:         orgs,
			Capabilities: tenant.NewStaticCapabilities(true, nil),
			Codes:        request.NewRandomCodeGenerator("M10"),
			Publisher:    bus,
		}, request.Settings{Currency: "usd", NextFee: 1000, FastTrackFee: 500}, lg)
		engine := reconcile.NewEngine(requests, gateway, reconcile.Options{Publisher: bus, Currency: "usd"}, lg)
		builder := checkout.NewBuilder("usd", checkout.URLs{APIBaseURL: "https://api.example/api/v1", PublicBaseURL: "https://app.example"})
		checkouts := checkout.NewService(requests, gateway, builder, engine, "https://app.example/requests/success", lg)

		By("submitting from the organization's page with the next fee")
		created, err := service.Create(ctx, request.CreateRequestDTO{
			Kind:            dm.KindSongRequest,
			Priority:        request.PriorityNext,
			AmountRequested: 500,
			SongTitle:       "September",
			SongArtist:      "Earth, Wind & Fire",
		}, tenant.Signals{Referer: "https://x/acme/requests"})
		Expect(err).NotTo(HaveOccurred())
		Expect(created.Request.OrganizationID).To(Equal(acme.ID))
		Expect(created.Request.PriorityOrder).To(Equal(dm.PriorityNext))
		Expect(created.Total).To(Equal(int64(1500)))

		By("checking out for the full total")
		session, err := checkouts.StartCheckout(ctx, created.Request.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(session.Total).To(Equal(int64(1500)))

		status, err := service.PaymentStatus(ctx, created.Request.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Paid).To(BeFalse())

		By("reconciling the completed session")
		paid, err := engine.ReconcileSession(ctx, session.SessionID)
		Expect(err).NotTo(HaveOccurred())
		Expect(paid.PaymentStatus).To(Equal(dm.PaymentStatusPaid))
		Expect(paid.AmountPaid).To(Equal(int64(1500)))
		Expect(paid.GatewayPaymentRef).To(Equal("pi_test_e2e"))
		Expect(paid.RequesterEmail).To(Equal("jamie@example.com"))

		By("treating a second reconciliation as a no-op")
		again, err := engine.ReconcileSession(ctx, session.SessionID)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.AmountPaid).To(Equal(int64(1500)))

		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		Expect(bus.Wait(waitCtx)).To(Succeed())

		By("issuing exactly one invoice and surfacing the request in the queue")
		inv, err := invoices.GetByRequestID(ctx, created.Request.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(inv.Amount).To(Equal(int64(1500)))

		status, err = service.PaymentStatus(ctx, created.Request.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Paid).To(BeTrue())

		queue, err := service.Queue(ctx, acme.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(queue.Entries).To(HaveLen(1))
		Expect(queue.Entries[0].RequestID).To(Equal(created.Request.ID))
	})
})
