package invoice_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/frahmantamala/song-requests/internal/core/events"
	"github.com/frahmantamala/song-requests/internal/core/testutil"
	"github.com/frahmantamala/song-requests/internal/invoice"
	"github.com/frahmantamala/song-requests/internal/invoice/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestInvoice(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Invoice Suite")
}

var _ = Describe("Issuer", func() {
	var (
		ctx    context.Context
		repo   invoice.RepositoryAPI
		issuer *invoice.Issuer
		bus    *events.EventBus
	)

	BeforeEach(func() {
		ctx = context.Background()
		db, err := testutil.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())

		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		repo = postgres.NewInvoiceRepository(db)
		issuer = invoice.NewIssuer(repo, lg)
		bus = events.NewEventBus(lg)
		issuer.Register(bus)
	})

	It("issues one invoice per paid request", func() {
		event := events.NewRequestPaidEvent("4f1c2b7a-0000-4000-8000-000000000001", "org-1", "pi_1", 1500, "USD", "fan@example.com")

		Expect(bus.PublishSync(ctx, event)).To(Succeed())
		Expect(bus.PublishSync(ctx, event)).To(Succeed())

		inv, err := repo.GetByRequestID(ctx, event.RequestID)
		Expect(err).NotTo(HaveOccurred())
		Expect(inv.Amount).To(Equal(int64(1500)))
		Expect(inv.Currency).To(Equal("usd"))
		Expect(*inv.OrganizationID).To(Equal("org-1"))
		Expect(inv.Number).To(HaveSuffix("-4F1C2B7A"))
	})

	It("ignores events it does not understand", func() {
		Expect(issuer.HandlePaid(ctx, events.NewRequestRefundedEvent("r1", 100, false, "cash"))).To(Succeed())
	})

	It("formats invoice numbers by date", func() {
		at := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
		Expect(invoice.Number(at, "abc-def")).To(Equal("INV-20250601-ABCDEF"))
	})
})
