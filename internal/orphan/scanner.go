package orphan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	errors "github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/core/datamodel/integrity"
	gw "github.com/frahmantamala/song-requests/internal/core/datamodel/paymentgateway"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/reconcile"
	"github.com/frahmantamala/song-requests/internal/request"
)

type Gateway interface {
	GetCheckoutSession(ctx context.Context, id string) (*gw.CheckoutSession, error)
	ListPaymentIntents(ctx context.Context, since time.Time, limit int, startingAfter string) (*gw.PaymentIntentList, error)
	SearchPaymentIntentsByRequestID(ctx context.Context, requestID string) ([]gw.PaymentIntent, error)
}

// Linker is the reconciliation engine seen from the scanner.
type Linker interface {
	Apply(ctx context.Context, p *reconcile.Payment, target reconcile.Target, mode reconcile.Mode) (*reconcile.Result, error)
}

type Config struct {
	Lookback     time.Duration
	BatchSize    int
	Concurrency  int
	IntentWindow time.Duration
	MaxPages     int
	PageSize     int
}

func (c Config) withDefaults() Config {
	if c.Lookback <= 0 {
		c.Lookback = 90 * 24 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.IntentWindow <= 0 {
		c.IntentWindow = 7 * 24 * time.Hour
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		c.PageSize = 100
	}
	return c
}

// Report summarizes one scanner run.
type Report struct {
	Candidates     int       `json:"candidates"`
	Linked         int       `json:"linked"`
	StillPending   int       `json:"still_pending"`
	Failed         int       `json:"failed"`
	IntentsScanned int       `json:"intents_scanned"`
	IssuesFlagged  int       `json:"issues_flagged"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`

	mu sync.Mutex
}

func (r *Report) add(field *int) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}

type Scanner struct {
	repo     request.RepositoryAPI
	gateway  Gateway
	linker   Linker
	recorder reconcile.IssueRecorder
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewScanner(repo request.RepositoryAPI, gateway Gateway, linker Linker, recorder reconcile.IssueRecorder, cfg Config, logger *slog.Logger) *Scanner {
	return &Scanner{
		repo:     repo,
		gateway:  gateway,
		linker:   linker,
		recorder: recorder,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Run performs both sweeps. Per-item failures are counted in the report;
// only a failure to enumerate work is returned.
func (s *Scanner) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: s.now().UTC()}

	if err := s.sweepCandidates(ctx, report); err != nil {
		return nil, err
	}
	if err := s.sweepIntents(ctx, report); err != nil {
		return nil, err
	}

	report.FinishedAt = s.now().UTC()
	s.logger.Info("orphan scan finished",
		"candidates", report.Candidates,
		"linked", report.Linked,
		"still_pending", report.StillPending,
		"failed", report.Failed,
		"intents_scanned", report.IntentsScanned,
		"issues_flagged", report.IssuesFlagged,
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// sweepCandidates looks for gateway payments belonging to local requests that
// are still pending without a payment ref.
func (s *Scanner) sweepCandidates(ctx context.Context, report *Report) error {
	since := s.now().Add(-s.cfg.Lookback)
	candidates, err := s.repo.ListOrphanCandidates(ctx, since, s.cfg.BatchSize)
	if err != nil {
		return errors.NewInternalError("failed to list orphan candidates", err)
	}
	report.Candidates = len(candidates)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, req := range candidates {
		req := req
		g.Go(func() error {
			linked, err := s.resolveCandidate(gctx, req)
			switch {
			case err != nil:
				report.add(&report.Failed)
				s.logger.Warn("orphan candidate not resolved", "request_id", req.ID, "error", err)
			case linked:
				report.add(&report.Linked)
			default:
				report.add(&report.StillPending)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Scanner) resolveCandidate(ctx context.Context, req *request.Request) (bool, error) {
	target := reconcile.Target{RequestID: req.ID}

	if req.GatewaySessionRef != "" {
		cs, err := s.gateway.GetCheckoutSession(ctx, req.GatewaySessionRef)
		if err != nil && !errors.HasCode(err, errors.ErrCodePaymentNotFound) {
			return false, err
		}
		if err == nil {
			if p := reconcile.FromSession(cs); p.Succeeded && p.Ref != "" {
				return s.link(ctx, p, target)
			}
		}
	}

	intents, err := s.gateway.SearchPaymentIntentsByRequestID(ctx, req.ID)
	if err != nil {
		return false, err
	}
	linked := false
	for i := range intents {
		if intents[i].Status != gw.IntentStatusSucceeded {
			continue
		}
		ok, err := s.link(ctx, reconcile.FromIntent(&intents[i]), target)
		if err != nil {
			return linked, err
		}
		linked = linked || ok
	}
	return linked, nil
}

func (s *Scanner) link(ctx context.Context, p *reconcile.Payment, target reconcile.Target) (bool, error) {
	res, err := s.linker.Apply(ctx, p, target, reconcile.ModeAutomatic)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodePaymentRefConflict) || errors.HasCode(err, errors.ErrCodeStaleWrite) ||
			errors.HasCode(err, errors.ErrCodeRailMismatch) {
			s.flag(ctx, integrity.KindRefMismatch, p.Ref, target.RequestID, map[string]interface{}{
				"reason": err.Error(),
				"amount": p.Amount,
			})
			return false, nil
		}
		return false, err
	}
	if res.Linked {
		s.logger.Info("orphaned payment linked", "request_id", res.Request.ID, "payment_ref", p.Ref, "strategy", res.Strategy)
	}
	return res.Linked, nil
}

// sweepIntents walks recent gateway intents and flags any whose metadata
// disagrees with the local store. Nothing is corrected here.
func (s *Scanner) sweepIntents(ctx context.Context, report *Report) error {
	since := s.now().Add(-s.cfg.IntentWindow)
	seen := make(map[string]struct{})
	cursor := ""

	for page := 0; page < s.cfg.MaxPages; page++ {
		list, err := s.gateway.ListPaymentIntents(ctx, since, s.cfg.PageSize, cursor)
		if err != nil {
			return err
		}
		for i := range list.Data {
			pi := &list.Data[i]
			if _, dup := seen[pi.ID]; dup {
				continue
			}
			seen[pi.ID] = struct{}{}
			report.IntentsScanned++
			if s.checkIntent(ctx, pi) {
				report.IssuesFlagged++
			}
		}
		if !list.HasMore || len(list.Data) == 0 {
			break
		}
		cursor = list.Data[len(list.Data)-1].ID
	}
	return nil
}

func (s *Scanner) checkIntent(ctx context.Context, pi *gw.PaymentIntent) bool {
	if pi.Status != gw.IntentStatusSucceeded {
		return false
	}
	p := reconcile.FromIntent(pi)
	requestID := p.RequestID()
	if requestID == "" {
		return false
	}

	details := map[string]interface{}{"amount": p.Amount, "currency": p.Currency}
	req, err := s.repo.GetByID(ctx, requestID)
	switch {
	case errors.HasCode(err, errors.ErrCodeRequestNotFound):
		s.flag(ctx, integrity.KindMissingRequest, pi.ID, "", withField(details, "metadata_request_id", requestID))
		return true
	case err != nil:
		s.logger.Warn("could not load request for gateway intent", "payment_ref", pi.ID, "request_id", requestID, "error", err)
		return false
	case req.GatewayPaymentRef != "" && req.GatewayPaymentRef != pi.ID:
		s.flag(ctx, integrity.KindRefMismatch, pi.ID, req.ID, withField(details, "linked_payment_ref", req.GatewayPaymentRef))
		return true
	case req.PaymentStatus == dm.PaymentStatusPending || req.PaymentStatus == dm.PaymentStatusFailed:
		s.flag(ctx, integrity.KindUnpaidLocally, pi.ID, req.ID, withField(details, "payment_status", req.PaymentStatus))
		return true
	}
	return false
}

func (s *Scanner) flag(ctx context.Context, kind, ref, requestID string, details map[string]interface{}) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, kind, ref, requestID, details); err != nil {
		s.logger.Error("failed to record integrity issue", "kind", kind, "payment_ref", ref, "error", err)
	}
}

func withField(m map[string]interface{}, k string, v interface{}) map[string]interface{} {
	m[k] = v
	return m
}
