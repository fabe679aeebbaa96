package refund_test

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/song-requests/internal"
	dmintegrity "github.com/frahmantamala/song-requests/internal/core/datamodel/integrity"
	gw "github.com/frahmantamala/song-requests/internal/core/datamodel/paymentgateway"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/core/events"
	"github.com/frahmantamala/song-requests/internal/core/testutil"
	"github.com/frahmantamala/song-requests/internal/integrity"
	integritypg "github.com/frahmantamala/song-requests/internal/integrity/postgres"
	"github.com/frahmantamala/song-requests/internal/refund"
	"github.com/frahmantamala/song-requests/internal/request"
	"github.com/frahmantamala/song-requests/internal/request/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRefund(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Refund Suite")
}

type fakeGateway struct {
	calls []*gw.RefundParams
	err   error
}

func (g *fakeGateway) CreateRefund(_ context.Context, params *gw.RefundParams) (*gw.Refund, error) {
	g.calls = append(g.calls, params)
	if g.err != nil {
		return nil, g.err
	}
	return &gw.Refund{ID: "re_" + uuid.NewString()[:8], Amount: params.Amount, Status: "succeeded", PaymentIntent: params.PaymentIntent}, nil
}

// brokenStore loses every refund write.
type brokenStore struct {
	request.RepositoryAPI
}

func (brokenStore) ApplyRefund(context.Context, string, request.RefundUpdate) (bool, error) {
	return false, nil
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.events = append(p.events, event)
	return nil
}

type memoryCache struct {
	paid map[string]bool
}

func (c *memoryCache) IsPaid(_ context.Context, id string) (bool, error) { return c.paid[id], nil }

func (c *memoryCache) MarkPaid(_ context.Context, id string) error {
	c.paid[id] = true
	return nil
}

func (c *memoryCache) Forget(_ context.Context, id string) error {
	delete(c.paid, id)
	return nil
}

func amount(v int64) *int64 { return &v }

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		repo      request.RepositoryAPI
		issues    integrity.RepositoryAPI
		recorder  *integrity.Recorder
		gateway   *fakeGateway
		publisher *recordingPublisher
		cache     *memoryCache
		service   *refund.Service
		lg        *slog.Logger
	)

	paid := func(rail string, amountPaid int64) *request.Request {
		now := time.Now().UTC()
		req := &request.Request{
			ID:              uuid.NewString(),
			OrganizationID:  "org-1",
			Kind:            dm.KindSongRequest,
			PaymentCode:     "M10-" + uuid.NewString()[:6],
			SongTitle:       "Africa",
			AmountRequested: amountPaid,
			PriorityOrder:   dm.PriorityStandard,
			PaymentStatus:   dm.PaymentStatusPaid,
			PaymentRail:     rail,
			AmountPaid:      amountPaid,
			PaidAt:          &now,
			Status:          dm.StatusNew,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if rail == dm.RailGatewayCard {
			req.GatewayPaymentRef = "pi_" + uuid.NewString()[:8]
		}
		Expect(repo.Create(ctx, req)).To(Succeed())
		cache.paid[req.ID] = true
		return req
	}

	BeforeEach(func() {
		ctx = context.Background()
		db, err := testutil.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())

		lg = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		repo = postgres.NewRequestRepository(db)
		issues = integritypg.NewIssueRepository(db)
		gateway = &fakeGateway{}
		publisher = &recordingPublisher{}
		cache = &memoryCache{paid: map[string]bool{}}
		recorder = integrity.NewRecorder(issues, nil, lg)
		service = refund.NewService(repo, gateway, cache, publisher, recorder, lg)
	})

	It("fully refunds a card payment and cancels the request", func() {
		req := paid(dm.RailGatewayCard, 1500)

		res, err := service.Refund(ctx, req.ID, refund.RefundDTO{Reason: "duplicate"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Full).To(BeTrue())
		Expect(res.RefundID).To(HavePrefix("re_"))
		Expect(res.Request.PaymentStatus).To(Equal(dm.PaymentStatusRefunded))
		Expect(res.Request.Status).To(Equal(dm.StatusCancelled))
		Expect(res.Request.RefundAmount).To(Equal(int64(1500)))

		Expect(gateway.calls).To(HaveLen(1))
		Expect(gateway.calls[0].PaymentIntent).To(Equal(req.GatewayPaymentRef))
		Expect(gateway.calls[0].IdempotencyKey).To(Equal(refund.IdempotencyKey(req.ID, 1500)))
		Expect(cache.paid).NotTo(HaveKey(req.ID))
		Expect(publisher.events).To(HaveLen(1))
		Expect(publisher.events[0].EventType()).To(Equal(events.EventTypeRequestRefunded))
	})

	It("refunds a charge made without an intent by its charge id", func() {
		now := time.Now().UTC()
		req := &request.Request{
			ID:                uuid.NewString(),
			OrganizationID:    "org-1",
			Kind:              dm.KindTip,
			PaymentCode:       "M10-" + uuid.NewString()[:6],
			AmountRequested:   2000,
			PriorityOrder:     dm.PriorityStandard,
			PaymentStatus:     dm.PaymentStatusPaid,
			PaymentRail:       dm.RailGatewayCard,
			GatewayPaymentRef: "ch_manual",
			AmountPaid:        2000,
			PaidAt:            &now,
			Status:            dm.StatusNew,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		Expect(repo.Create(ctx, req)).To(Succeed())

		_, err := service.Refund(ctx, req.ID, refund.RefundDTO{})
		Expect(err).NotTo(HaveOccurred())

		Expect(gateway.calls).To(HaveLen(1))
		Expect(gateway.calls[0].Charge).To(Equal("ch_manual"))
		Expect(gateway.calls[0].PaymentIntent).To(BeEmpty())
	})

	It("keeps a partially refunded request in the queue", func() {
		req := paid(dm.RailGatewayCard, 1500)

		res, err := service.Refund(ctx, req.ID, refund.RefundDTO{Amount: amount(500)})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Full).To(BeFalse())
		Expect(res.Request.PaymentStatus).To(Equal(dm.PaymentStatusPartiallyRefunded))
		Expect(res.Request.Status).To(Equal(dm.StatusNew))

		_, err = service.Refund(ctx, req.ID, refund.RefundDTO{Amount: amount(500)})
		Expect(internal.HasCode(err, internal.ErrCodeNotRefundable)).To(BeTrue())
	})

	It("records manual rail refunds without calling the gateway", func() {
		req := paid(dm.RailVenmo, 1000)

		res, err := service.Refund(ctx, req.ID, refund.RefundDTO{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Request.PaymentStatus).To(Equal(dm.PaymentStatusRefunded))
		Expect(gateway.calls).To(BeEmpty())
	})

	DescribeTable("rejects amounts outside the paid range",
		func(value int64, code internal.ErrorCode) {
			req := paid(dm.RailGatewayCard, 1500)
			_, err := service.Refund(ctx, req.ID, refund.RefundDTO{Amount: amount(value)})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(appErr.Code).To(Equal(code))
			Expect(gateway.calls).To(BeEmpty())
		},
		Entry("zero", int64(0), internal.ErrCodeValidationFailed),
		Entry("negative", int64(-100), internal.ErrCodeValidationFailed),
		Entry("more than paid", int64(1501), internal.ErrCodeRefundTooLarge),
	)

	It("refuses unpaid requests", func() {
		now := time.Now().UTC()
		req := &request.Request{
			ID:              uuid.NewString(),
			Kind:            dm.KindTip,
			PaymentCode:     "M10-PENDNG",
			AmountRequested: 1000,
			PriorityOrder:   dm.PriorityStandard,
			PaymentStatus:   dm.PaymentStatusPending,
			PaymentRail:     dm.RailGatewayCard,
			Status:          dm.StatusNew,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		Expect(repo.Create(ctx, req)).To(Succeed())

		_, err := service.Refund(ctx, req.ID, refund.RefundDTO{})
		Expect(internal.HasCode(err, internal.ErrCodeNotRefundable)).To(BeTrue())
	})

	It("leaves the request untouched when the gateway refuses", func() {
		req := paid(dm.RailGatewayCard, 1500)
		gateway.err = internal.NewGatewayError("card_declined", nil)

		_, err := service.Refund(ctx, req.ID, refund.RefundDTO{})
		Expect(internal.HasCode(err, internal.ErrCodeGatewayError)).To(BeTrue())

		got, err := repo.GetByID(ctx, req.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.PaymentStatus).To(Equal(dm.PaymentStatusPaid))
	})

	It("queues an integrity issue when the gateway refunded but the store did not", func() {
		req := paid(dm.RailGatewayCard, 1500)
		service = refund.NewService(brokenStore{repo}, gateway, cache, publisher, recorder, lg)

		_, err := service.Refund(ctx, req.ID, refund.RefundDTO{})
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Code).To(Equal(internal.ErrCodeIntegrityWarning))
		Expect(appErr.StatusCode).To(Equal(http.StatusInternalServerError))

		open, err := issues.ListOpen(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(open).To(HaveLen(1))
		Expect(open[0].Kind).To(Equal(dmintegrity.KindRefundRecordFailed))
		Expect(publisher.events).To(BeEmpty())
	})
})
