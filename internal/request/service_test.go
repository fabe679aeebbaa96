package request_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/core/datamodel/organization"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/core/events"
	"github.com/frahmantamala/song-requests/internal/core/testutil"
	"github.com/frahmantamala/song-requests/internal/request"
	"github.com/frahmantamala/song-requests/internal/request/postgres"
	"github.com/frahmantamala/song-requests/internal/tenant"
	tenantpg "github.com/frahmantamala/song-requests/internal/tenant/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRequest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Request Suite")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
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

type sequenceCodes struct {
	codes []string
	i     int
}

func (s *sequenceCodes) Generate() (string, error) {
	code := s.codes[s.i%len(s.codes)]
	s.i++
	return code, nil
}

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		repo      request.RepositoryAPI
		orgs      tenant.RepositoryAPI
		publisher *recordingPublisher
		cache     *memoryCache
		codes     *sequenceCodes
		service   *request.Service
		acme      *organization.Organization
		now       time.Time
		allowAll  bool
		settings  request.Settings
	)

	build := func() {
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = request.NewService(request.ServiceDeps{
			Repo:         repo,
			Queue:        queueReader,
			Resolver:     tenant.NewDefaultResolver(orgs, "", lg),
			Orgs:         orgs,
			Capabilities: tenant.NewStaticCapabilities(allowAll, nil),
			Codes:        codes,
			Cache:        cache,
			Publisher:    publisher,
		}, settings, lg).
			WithClock(func() time.Time { return now })
	}

	BeforeEach(func() {
		ctx = context.Background()
		db, err := testutil.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())

		repo = postgres.NewRequestRepository(db)
		queueReader = postgres.NewQueueRepository(sqlx.NewDb(sqlDB, "sqlite3"))
		orgs = tenantpg.NewOrganizationRepository(db)
		acme = &organization.Organization{Slug: "acme", Name: "Acme Events"}
		Expect(orgs.Create(ctx, acme)).To(Succeed())

		publisher = &recordingPublisher{}
		cache = &memoryCache{paid: map[string]bool{}}
		codes = &sequenceCodes{codes: []string{"M10-AAAAAA", "M10-BBBBBB", "M10-CCCCCC"}}
		now = time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)
		allowAll = true
		settings = request.Settings{Currency: "usd", NextFee: 1000, FastTrackFee: 500}
		build()
	})

	Describe("Create", func() {
		It("resolves the organization from the referrer and charges the next fee on top", func() {
			resp, err := service.Create(ctx, request.CreateRequestDTO{
				Kind:            dm.KindSongRequest,
				Priority:        request.PriorityNext,
				AmountRequested: 500,
				SongTitle:       "September",
			}, tenant.Signals{Referer: "https://x/acme/requests"})
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.Request.OrganizationID).To(Equal(acme.ID))
			Expect(resp.Request.PriorityOrder).To(Equal(dm.PriorityNext))
			Expect(resp.Request.PriorityFeeNext).To(Equal(int64(1000)))
			Expect(resp.Request.PriorityFeeFastTrack).To(BeZero())
			Expect(resp.Total).To(Equal(int64(1500)))
			Expect(resp.TotalDisplay).To(Equal("15.00 USD"))
			Expect(resp.Request.PaymentStatus).To(Equal(dm.PaymentStatusPending))
			Expect(resp.Request.PaymentCode).To(Equal("M10-AAAAAA"))
		})

		It("trusts an explicit organization id over the referrer", func() {
			resp, err := service.Create(ctx, request.CreateRequestDTO{
				OrganizationID: "org-explicit", Kind: dm.KindTip, AmountRequested: 300,
			}, tenant.Signals{Referer: "https://x/acme/requests"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.OrganizationID).To(Equal("org-explicit"))
		})

		It("creates orphaned requests when nothing resolves", func() {
			resp, err := service.Create(ctx, request.CreateRequestDTO{Kind: dm.KindShoutout, Message: "happy birthday", AmountRequested: 500}, tenant.Signals{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.OrganizationID).To(BeEmpty())
		})

		It("downgrades to standard without fees when the organization lacks the capability", func() {
			allowAll = false
			build()
			resp, err := service.Create(ctx, request.CreateRequestDTO{
				Kind: dm.KindSongRequest, Priority: request.PriorityFastTrack, AmountRequested: 500, SongTitle: "Hey Ya",
			}, tenant.Signals{Referer: "https://x/acme"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.PriorityOrder).To(Equal(dm.PriorityStandard))
			Expect(resp.Total).To(Equal(int64(500)))
		})

		It("never places a request at the front without charging for it", func() {
			settings.NextFee = 0
			build()
			resp, err := service.Create(ctx, request.CreateRequestDTO{
				Kind: dm.KindSongRequest, Priority: request.PriorityNext, AmountRequested: 500, SongTitle: "Hey Ya",
			}, tenant.Signals{Referer: "https://x/acme"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Request.PriorityOrder).To(Equal(dm.PriorityStandard))
			Expect(resp.Request.PriorityFeeNext).To(BeZero())
			Expect(resp.Total).To(Equal(int64(500)))
		})

		It("rejects a next priority on a shoutout", func() {
			_, err := service.Create(ctx, request.CreateRequestDTO{
				Kind: dm.KindShoutout, Priority: request.PriorityNext, Message: "hi", AmountRequested: 500,
			}, tenant.Signals{})
			Expect(internal.HasCode(err, internal.ErrCodeValidationFailed)).To(BeTrue())
		})

		It("rejects negative amounts", func() {
			_, err := service.Create(ctx, request.CreateRequestDTO{Kind: dm.KindTip, AmountRequested: -1}, tenant.Signals{})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(400))
		})

		It("reuses a pending bundle code in the same organization", func() {
			first, err := service.Create(ctx, request.CreateRequestDTO{Kind: dm.KindTip, AmountRequested: 300}, tenant.Signals{Referer: "https://x/acme"})
			Expect(err).NotTo(HaveOccurred())

			second, err := service.Create(ctx, request.CreateRequestDTO{
				Kind: dm.KindTip, AmountRequested: 200, PaymentCode: first.Request.PaymentCode,
			}, tenant.Signals{Referer: "https://x/acme"})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Request.PaymentCode).To(Equal(first.Request.PaymentCode))
		})

		It("regenerates a code that collides with an existing one", func() {
			codes.codes = []string{"M10-AAAAAA", "M10-AAAAAA", "M10-BBBBBB"}
			first, err := service.Create(ctx, request.CreateRequestDTO{Kind: dm.KindTip, AmountRequested: 300}, tenant.Signals{})
			Expect(err).NotTo(HaveOccurred())
			second, err := service.Create(ctx, request.CreateRequestDTO{Kind: dm.KindTip, AmountRequested: 300}, tenant.Signals{})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Request.PaymentCode).NotTo(Equal(first.Request.PaymentCode))
		})
	})

	Describe("PayByCode and ConfirmManualPayment", func() {
		It("confirms a cash bundle, publishes request.paid and caches the answer", func() {
			a, err := service.Create(ctx, request.CreateRequestDTO{Kind: dm.KindTip, AmountRequested: 300, PaymentRail: dm.RailCash}, tenant.Signals{Referer: "https://x/acme"})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Create(ctx, request.CreateRequestDTO{
				Kind: dm.KindTip, AmountRequested: 200, PaymentRail: dm.RailCash, PaymentCode: a.Request.PaymentCode,
			}, tenant.Signals{Referer: "https://x/acme"})
			Expect(err).NotTo(HaveOccurred())

			view, err := service.PayByCode(ctx, a.Request.PaymentCode)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.TotalDue).To(Equal(int64(500)))
			Expect(view.Paid).To(BeFalse())

			resp, err := service.ConfirmManualPayment(ctx, request.ConfirmManualDTO{PaymentCode: a.Request.PaymentCode, PaymentRail: dm.RailCash})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Confirmed).To(Equal(int64(2)))
			Expect(publisher.types()).To(Equal([]string{events.EventTypeRequestPaid, events.EventTypeRequestPaid}))
			Expect(cache.paid).To(HaveKey(a.Request.ID))

			view, err = service.PayByCode(ctx, a.Request.PaymentCode)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Paid).To(BeTrue())
			Expect(view.TotalDue).To(BeZero())
		})

		It("returns PAYMENT_CODE_NOT_FOUND for unknown codes", func() {
			_, err := service.PayByCode(ctx, "M10-ZZZZZZ")
			Expect(internal.HasCode(err, internal.ErrCodePaymentCodeNotFound)).To(BeTrue())
		})

		It("refuses the gateway rail for manual confirmation", func() {
			_, err := service.ConfirmManualPayment(ctx, request.ConfirmManualDTO{PaymentCode: "M10-AAAAAA", PaymentRail: dm.RailGatewayCard})
			Expect(internal.HasCode(err, internal.ErrCodeValidationFailed)).To(BeTrue())
		})
	})

	Describe("PaymentStatus", func() {
		It("answers from the cache once a request is known to be paid", func() {
			resp, err := service.Create(ctx, request.CreateRequestDTO{Kind: dm.KindTip, AmountRequested: 300}, tenant.Signals{})
			Expect(err).NotTo(HaveOccurred())

			view, err := service.PaymentStatus(ctx, resp.Request.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Paid).To(BeFalse())
			Expect(cache.paid).To(BeEmpty())

			cache.paid[resp.Request.ID] = true
			view, err = service.PaymentStatus(ctx, resp.Request.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Paid).To(BeTrue())
		})

		It("returns REQUEST_NOT_FOUND for unknown ids", func() {
			_, err := service.PaymentStatus(ctx, uuid.NewString())
			Expect(internal.HasCode(err, internal.ErrCodeRequestNotFound)).To(BeTrue())
		})
	})

	Describe("AssignOrganization and DeleteForOrganization", func() {
		It("assigns an orphaned request and then deletes it org-scoped", func() {
			resp, err := service.Create(ctx, request.CreateRequestDTO{Kind: dm.KindTip, AmountRequested: 300}, tenant.Signals{})
			Expect(err).NotTo(HaveOccurred())

			updated, err := service.AssignOrganization(ctx, resp.Request.ID, request.AssignOrganizationDTO{OrganizationID: acme.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.OrganizationID).To(Equal(acme.ID))

			n, err := service.DeleteForOrganization(ctx, acme.ID, request.DeleteRequestsDTO{RequestIDs: []string{resp.Request.ID}})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))
		})

		It("refuses unknown organizations", func() {
			resp, err := service.Create(ctx, request.CreateRequestDTO{Kind: dm.KindTip, AmountRequested: 300}, tenant.Signals{})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.AssignOrganization(ctx, resp.Request.ID, request.AssignOrganizationDTO{OrganizationID: "ghost"})
			Expect(internal.HasCode(err, internal.ErrCodeOrganizationNotFound)).To(BeTrue())
		})

		It("requires an explicit id list", func() {
			_, err := service.DeleteForOrganization(ctx, acme.ID, request.DeleteRequestsDTO{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Queue", func() {
		It("orders paid requests next, fast-track, then standard", func() {
			create := func(priority string, at time.Time) string {
				now = at
				resp, err := service.Create(ctx, request.CreateRequestDTO{
					Kind: dm.KindSongRequest, Priority: priority, AmountRequested: 500, SongTitle: "Song " + priority, PaymentRail: dm.RailCash,
				}, tenant.Signals{Referer: "https://x/acme"})
				Expect(err).NotTo(HaveOccurred())
				_, err = service.ConfirmManualPayment(ctx, request.ConfirmManualDTO{PaymentCode: resp.Request.PaymentCode, PaymentRail: dm.RailCash})
				Expect(err).NotTo(HaveOccurred())
				return resp.Request.ID
			}
			base := time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)
			standard := create(request.PriorityStandard, base)
			next := create(request.PriorityNext, base.Add(time.Minute))
			fast := create(request.PriorityFastTrack, base.Add(2*time.Minute))

			queue, err := service.Queue(ctx, acme.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(queue.Entries).To(HaveLen(3))
			Expect([]string{queue.Entries[0].RequestID, queue.Entries[1].RequestID, queue.Entries[2].RequestID}).
				To(Equal([]string{next, fast, standard}))
			Expect(queue.Entries[0].Tier).To(Equal("next"))
			Expect(queue.Entries[0].Position).To(Equal(1))
		})
	})
})

var queueReader request.QueueReader

var _ = Describe("SortQueue", func() {
	It("puts next before fast-track before standard regardless of arrival", func() {
		t1 := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
		reqs := []*request.Request{
			{ID: "standard", PriorityOrder: dm.PriorityStandard, CreatedAt: t1},
			{ID: "next", PriorityOrder: dm.PriorityNext, CreatedAt: t1.Add(time.Minute)},
			{ID: "fast", PriorityOrder: dm.PriorityFastTrack, CreatedAt: t1.Add(2 * time.Minute)},
		}
		sorted := request.SortQueue(reqs)
		Expect([]string{sorted[0].ID, sorted[1].ID, sorted[2].ID}).To(Equal([]string{"next", "fast", "standard"}))
		Expect(reqs[0].ID).To(Equal("standard"))
	})

	It("keeps arrival order inside a tier", func() {
		t1 := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
		sorted := request.SortQueue([]*request.Request{
			{ID: "b", PriorityOrder: dm.PriorityStandard, CreatedAt: t1.Add(time.Second)},
			{ID: "a", PriorityOrder: dm.PriorityStandard, CreatedAt: t1},
		})
		Expect(sorted[0].ID).To(Equal("a"))
	})
})

var _ = Describe("RandomCodeGenerator", func() {
	It("produces prefixed six-character codes without ambiguous glyphs", func() {
		gen := request.NewRandomCodeGenerator("M10")
		for i := 0; i < 50; i++ {
			code, err := gen.Generate()
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(MatchRegexp(`^M10-[A-HJ-NP-Z2-9]{6}$`))
		}
	})
})
