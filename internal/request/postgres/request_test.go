package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"

	"github.com/frahmantamala/song-requests/internal"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/core/testutil"
	"github.com/frahmantamala/song-requests/internal/request"
	"github.com/frahmantamala/song-requests/internal/request/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRequestRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Request Repository Suite")
}

func openDB() *gorm.DB {
	db, err := testutil.OpenSQLite()
	Expect(err).NotTo(HaveOccurred())
	return db
}

func newRequest(orgID, code string, amount int64, createdAt time.Time) *request.Request {
	return &request.Request{
		ID:              uuid.NewString(),
		OrganizationID:  orgID,
		Kind:            dm.KindSongRequest,
		PaymentCode:     code,
		SongTitle:       "Dancing Queen",
		AmountRequested: amount,
		PriorityOrder:   dm.PriorityStandard,
		PaymentStatus:   dm.PaymentStatusPending,
		PaymentRail:     dm.RailGatewayCard,
		Status:          dm.StatusNew,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

var _ = Describe("RequestRepository", func() {
	var (
		db   *gorm.DB
		repo request.RepositoryAPI
		ctx  context.Context
		now  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = openDB()
		repo = postgres.NewRequestRepository(db)
		now = time.Now().UTC().Truncate(time.Second)
	})

	Describe("Create and lookups", func() {
		It("round-trips a request and maps missing rows to REQUEST_NOT_FOUND", func() {
			req := newRequest("org-1", "M10-AAAAAA", 1500, now)
			Expect(repo.Create(ctx, req)).To(Succeed())

			found, err := repo.GetByID(ctx, req.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.OrganizationID).To(Equal("org-1"))
			Expect(found.GatewayPaymentRef).To(BeEmpty())

			_, err = repo.GetByID(ctx, "missing")
			Expect(internal.HasCode(err, internal.ErrCodeRequestNotFound)).To(BeTrue())
		})

		It("reports pending codes per organization", func() {
			Expect(repo.Create(ctx, newRequest("org-1", "M10-AAAAAA", 1500, now))).To(Succeed())

			exists, err := repo.PendingCodeExists(ctx, "org-1", "M10-AAAAAA")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())

			exists, err = repo.PendingCodeExists(ctx, "org-2", "M10-AAAAAA")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})

		It("finds requests by email case-insensitively inside the window", func() {
			req := newRequest("org-1", "M10-AAAAAA", 1500, now)
			req.RequesterEmail = "guest@example.com"
			Expect(repo.Create(ctx, req)).To(Succeed())

			found, err := repo.FindByEmailBetween(ctx, "GUEST@example.com", now.Add(-time.Hour), now.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(1))

			found, err = repo.FindByEmailBetween(ctx, "guest@example.com", now.Add(time.Hour), now.Add(2*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeEmpty())
		})
	})

	Describe("LinkPayment", func() {
		It("links a payment once and refuses a different ref afterwards", func() {
			req := newRequest("", "M10-AAAAAA", 1500, now)
			Expect(repo.Create(ctx, req)).To(Succeed())

			ok, err := repo.LinkPayment(ctx, req.ID, request.PaymentLink{
				PaymentRef: "pi_1", PaymentStatus: dm.PaymentStatusPaid, AmountPaid: 1500, PaidAt: &now, OrganizationID: "org-9",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			found, _ := repo.GetByID(ctx, req.ID)
			Expect(found.PaymentStatus).To(Equal(dm.PaymentStatusPaid))
			Expect(found.AmountPaid).To(Equal(int64(1500)))
			Expect(found.OrganizationID).To(Equal("org-9"))

			ok, err = repo.LinkPayment(ctx, req.ID, request.PaymentLink{PaymentRef: "pi_2", PaymentStatus: dm.PaymentStatusPaid, AmountPaid: 1500, PaidAt: &now})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("is idempotent for the same ref", func() {
			req := newRequest("org-1", "M10-AAAAAA", 1500, now)
			Expect(repo.Create(ctx, req)).To(Succeed())
			link := request.PaymentLink{PaymentRef: "pi_1", PaymentStatus: dm.PaymentStatusPaid, AmountPaid: 1500, PaidAt: &now}

			for i := 0; i < 2; i++ {
				ok, err := repo.LinkPayment(ctx, req.ID, link)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
			}
		})

		It("returns PAYMENT_REF_CONFLICT when the ref already belongs to another row", func() {
			a := newRequest("org-1", "M10-AAAAAA", 1500, now)
			b := newRequest("org-1", "M10-BBBBBB", 1500, now)
			Expect(repo.Create(ctx, a)).To(Succeed())
			Expect(repo.Create(ctx, b)).To(Succeed())

			_, err := repo.LinkPayment(ctx, a.ID, request.PaymentLink{PaymentRef: "pi_1", PaymentStatus: dm.PaymentStatusPaid, AmountPaid: 1500, PaidAt: &now})
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.LinkPayment(ctx, b.ID, request.PaymentLink{PaymentRef: "pi_1", PaymentStatus: dm.PaymentStatusPaid, AmountPaid: 1500, PaidAt: &now})
			Expect(internal.HasCode(err, internal.ErrCodePaymentRefConflict)).To(BeTrue())
		})

		It("never downgrades a refunded row back to paid", func() {
			req := newRequest("org-1", "M10-AAAAAA", 1500, now)
			Expect(repo.Create(ctx, req)).To(Succeed())
			link := request.PaymentLink{PaymentRef: "pi_1", PaymentStatus: dm.PaymentStatusPaid, AmountPaid: 1500, PaidAt: &now}
			_, err := repo.LinkPayment(ctx, req.ID, link)
			Expect(err).NotTo(HaveOccurred())

			ok, err := repo.ApplyRefund(ctx, req.ID, request.RefundUpdate{
				Amount: 1500, Reason: "duplicate", PaymentStatus: dm.PaymentStatusRefunded, Status: dm.StatusCancelled, RefundedAt: now,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			_, err = repo.LinkPayment(ctx, req.ID, link)
			Expect(err).NotTo(HaveOccurred())
			found, _ := repo.GetByID(ctx, req.ID)
			Expect(found.PaymentStatus).To(Equal(dm.PaymentStatusRefunded))
		})
	})

	Describe("ApplyRefund", func() {
		It("only applies to paid rows", func() {
			req := newRequest("org-1", "M10-AAAAAA", 1500, now)
			Expect(repo.Create(ctx, req)).To(Succeed())

			ok, err := repo.ApplyRefund(ctx, req.ID, request.RefundUpdate{Amount: 100, PaymentStatus: dm.PaymentStatusPartiallyRefunded, Status: dm.StatusNew, RefundedAt: now})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("ConfirmManualPayment", func() {
		It("marks every pending row of the bundle paid with its total", func() {
			a := newRequest("org-1", "M10-AAAAAA", 1500, now)
			b := newRequest("org-1", "M10-AAAAAA", 500, now)
			b.PriorityFeeFastTrack = 1000
			zero := newRequest("org-1", "M10-AAAAAA", 0, now)
			Expect(repo.Create(ctx, a)).To(Succeed())
			Expect(repo.Create(ctx, b)).To(Succeed())
			Expect(repo.Create(ctx, zero)).To(Succeed())

			n, err := repo.ConfirmManualPayment(ctx, "M10-AAAAAA", dm.RailCashApp, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))

			found, _ := repo.GetByID(ctx, b.ID)
			Expect(found.AmountPaid).To(Equal(int64(1500)))
			Expect(found.PaymentRail).To(Equal(dm.RailCashApp))

			found, _ = repo.GetByID(ctx, zero.ID)
			Expect(found.PaymentStatus).To(Equal(dm.PaymentStatusPending))

			n, err = repo.ConfirmManualPayment(ctx, "M10-AAAAAA", dm.RailCashApp, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})

	Describe("organization writes", func() {
		It("backfills only rows without an organization", func() {
			req := newRequest("", "M10-AAAAAA", 1500, now)
			Expect(repo.Create(ctx, req)).To(Succeed())

			ok, err := repo.BackfillOrganization(ctx, req.ID, "org-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = repo.BackfillOrganization(ctx, req.ID, "org-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("deletes only the listed rows of the organization", func() {
			mine := newRequest("org-1", "M10-AAAAAA", 1500, now)
			theirs := newRequest("org-2", "M10-BBBBBB", 1500, now)
			Expect(repo.Create(ctx, mine)).To(Succeed())
			Expect(repo.Create(ctx, theirs)).To(Succeed())

			n, err := repo.DeleteForOrganization(ctx, "org-1", []string{mine.ID, theirs.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))

			_, err = repo.GetByID(ctx, theirs.ID)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("ListOrphanCandidates", func() {
		It("returns pending unlinked card rows inside the lookback", func() {
			recent := newRequest("org-1", "M10-AAAAAA", 1500, now.Add(-time.Hour))
			old := newRequest("org-1", "M10-BBBBBB", 1500, now.Add(-72*time.Hour))
			cash := newRequest("org-1", "M10-CCCCCC", 1500, now.Add(-time.Hour))
			cash.PaymentRail = dm.RailCash
			for _, r := range []*request.Request{recent, old, cash} {
				Expect(repo.Create(ctx, r)).To(Succeed())
			}

			found, err := repo.ListOrphanCandidates(ctx, now.Add(-24*time.Hour), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(1))
			Expect(found[0].ID).To(Equal(recent.ID))
		})
	})
})

var _ = Describe("QueueRepository", func() {
	It("lists settled rows of the organization in priority order", func() {
		ctx := context.Background()
		db := openDB()
		repo := postgres.NewRequestRepository(db)
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		queue := postgres.NewQueueRepository(sqlx.NewDb(sqlDB, "sqlite3"))

		now := time.Now().UTC().Truncate(time.Second)
		standard := newRequest("org-1", "M10-AAAAAA", 1500, now.Add(-3*time.Minute))
		next := newRequest("org-1", "M10-BBBBBB", 1500, now.Add(-time.Minute))
		next.PriorityOrder = dm.PriorityNext
		pending := newRequest("org-1", "M10-CCCCCC", 1500, now.Add(-5*time.Minute))
		other := newRequest("org-2", "M10-DDDDDD", 1500, now.Add(-5*time.Minute))
		for _, r := range []*request.Request{standard, next, pending, other} {
			Expect(repo.Create(ctx, r)).To(Succeed())
		}
		for i, r := range []*request.Request{standard, next, other} {
			ref := []string{"pi_a", "pi_b", "pi_c"}[i]
			_, err := repo.LinkPayment(ctx, r.ID, request.PaymentLink{PaymentRef: ref, PaymentStatus: dm.PaymentStatusPaid, AmountPaid: 1500, PaidAt: &now})
			Expect(err).NotTo(HaveOccurred())
		}

		rows, err := queue.ListSettledQueue(ctx, "org-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(2))
		Expect(rows[0].ID).To(Equal(next.ID))
		Expect(rows[1].ID).To(Equal(standard.ID))
	})
})
