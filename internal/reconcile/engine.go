package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	errors "github.com/frahmantamala/song-requests/internal"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/core/events"
	"github.com/frahmantamala/song-requests/internal/request"
)

// Mode selects which strategies a reconciliation may use.
type Mode int

const (
	// ModeAutomatic is used by webhooks, redirects and the orphan scanner.
	ModeAutomatic Mode = iota
	// ModeSingleResult adds the fuzzy match and links it when exactly one
	// request qualifies. Only the admin link endpoint uses it.
	ModeSingleResult
	ModeMetadataOnly
)

const defaultFuzzyWindow = 24 * time.Hour

type IssueRecorder interface {
	Record(ctx context.Context, kind, gatewayRef, requestID string, details map[string]interface{}) error
}

type Options struct {
	Publisher   events.Publisher
	Cache       request.StatusCache
	Recorder    IssueRecorder
	Currency    string
	FuzzyWindow time.Duration
}

type Result struct {
	Request  *request.Request `json:"request"`
	Payment  *Payment         `json:"payment,omitempty"`
	Strategy string           `json:"strategy"`
	// Linked is true when this call wrote the payment ref.
	Linked        bool `json:"linked"`
	AlreadyLinked bool `json:"already_linked"`
}

type FindResult struct {
	Payment  *Payment           `json:"payment"`
	Strategy string             `json:"strategy,omitempty"`
	Matches  []*request.Request `json:"matches"`
}

type Candidate struct {
	RequestID      string    `json:"request_id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Kind           string    `json:"kind"`
	RequesterName  string    `json:"requester_name,omitempty"`
	Total          int64     `json:"total"`
	PaymentStatus  string    `json:"payment_status"`
	CreatedAt      time.Time `json:"created_at"`
}

type Engine struct {
	repo      request.RepositoryAPI
	gateway   Gateway
	publisher events.Publisher
	cache     request.StatusCache
	recorder  IssueRecorder
	currency  string

	direct   Strategy
	explicit Strategy
	metadata Strategy
	fuzzy    Strategy

	now    func() time.Time
	logger *slog.Logger
}

func NewEngine(repo request.RepositoryAPI, gateway Gateway, opts Options, logger *slog.Logger) *Engine {
	if opts.Cache == nil {
		opts.Cache = request.NoopStatusCache{}
	}
	if opts.FuzzyWindow <= 0 {
		opts.FuzzyWindow = defaultFuzzyWindow
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	return &Engine{
		repo:      repo,
		gateway:   gateway,
		publisher: opts.Publisher,
		cache:     opts.Cache,
		recorder:  opts.Recorder,
		currency:  opts.Currency,
		direct:    DirectStrategy{repo: repo},
		explicit:  ExplicitStrategy{repo: repo},
		metadata:  MetadataStrategy{repo: repo},
		fuzzy:     FuzzyStrategy{repo: repo, window: opts.FuzzyWindow},
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source, used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) strategies(mode Mode) []Strategy {
	switch mode {
	case ModeSingleResult:
		return []Strategy{e.direct, e.explicit, e.metadata, e.fuzzy}
	case ModeMetadataOnly:
		return []Strategy{e.direct, e.metadata}
	default:
		return []Strategy{e.direct, e.explicit, e.metadata}
	}
}

// Link is the admin single-result entry point. An intent ref that is already
// linked is answered from the store without matching again.
func (e *Engine) Link(ctx context.Context, ref string, target Target) (*Result, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.NewValidationFieldError("payment_ref", "payment_ref is required", errors.ErrCodeValidationFailed)
	}

	if IsIntentRef(ref) && target.RequestID == "" {
		req, err := e.repo.GetByPaymentRef(ctx, ref)
		if err == nil {
			return e.refreshLinked(ctx, req, ref)
		}
		if !notFound(err) {
			return nil, errors.NewInternalError("failed to look up payment ref", err)
		}
	}

	p, err := e.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, p, target, ModeSingleResult)
}

// refreshLinked answers an idempotent re-link. Identity is still refreshed from
// the gateway, best-effort.
func (e *Engine) refreshLinked(ctx context.Context, req *request.Request, ref string) (*Result, error) {
	p, err := e.Fetch(ctx, ref)
	if err != nil {
		e.logger.Warn("could not refresh payment from gateway for linked request", "request_id", req.ID, "payment_ref", ref, "error", err)
		return &Result{Request: req, Strategy: StrategyDirect, AlreadyLinked: true}, nil
	}
	return e.Apply(ctx, p, Target{}, ModeAutomatic)
}

func (e *Engine) LinkByMetadata(ctx context.Context, ref string) (*Result, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.NewValidationFieldError("payment_ref", "payment_ref is required", errors.ErrCodeValidationFailed)
	}
	p, err := e.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, p, Target{}, ModeMetadataOnly)
}

// ReconcileSession serves the checkout success redirect.
func (e *Engine) ReconcileSession(ctx context.Context, sessionID string) (*request.Request, error) {
	if !strings.HasPrefix(sessionID, prefixSession) {
		return nil, errors.NewValidationFieldError("session_id", "session_id must be a checkout session id", errors.ErrCodeValidationFailed)
	}
	p, err := e.Fetch(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	res, err := e.Apply(ctx, p, Target{}, ModeAutomatic)
	if err != nil {
		return nil, err
	}
	return res.Request, nil
}

// Find reports what a reconciliation would match without writing anything.
func (e *Engine) Find(ctx context.Context, ref string) (*FindResult, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.NewValidationFieldError("paymentIntentId", "paymentIntentId is required", errors.ErrCodeValidationFailed)
	}
	p, err := e.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	for _, s := range []Strategy{e.direct, e.metadata, e.fuzzy} {
		matches, err := s.Match(ctx, p, Target{})
		if err != nil {
			return nil, errors.NewInternalError("failed to search requests", err)
		}
		if len(matches) > 0 {
			return &FindResult{Payment: p, Strategy: s.Name(), Matches: matches}, nil
		}
	}
	return &FindResult{Payment: p, Matches: []*request.Request{}}, nil
}

// Apply runs the strategy cascade for an already fetched payment and links
// the first match.
func (e *Engine) Apply(ctx context.Context, p *Payment, target Target, mode Mode) (*Result, error) {
	for _, s := range e.strategies(mode) {
		matches, err := s.Match(ctx, p, target)
		if err != nil {
			if _, ok := errors.IsAppError(err); ok {
				return nil, err
			}
			return nil, errors.NewInternalError("failed to match payment", err)
		}
		if len(matches) == 0 {
			continue
		}

		if s.Name() == StrategyDirect {
			req := matches[0]
			if target.RequestID != "" && target.RequestID != req.ID {
				e.logger.Warn("payment already linked to another request",
					"payment_ref", p.Ref,
					"linked_request_id", req.ID,
					"target_request_id", target.RequestID)
				return nil, errors.NewConflictError("payment is already linked to another request", errors.ErrCodePaymentRefConflict).
					WithDetails(map[string]interface{}{"linked_request_id": req.ID})
			}
			if p.Succeeded && req.PaymentStatus == dm.PaymentStatusPending {
				return e.link(ctx, req, p, s.Name())
			}
			e.mergeIdentity(ctx, req, p)
			return &Result{Request: e.reload(ctx, req), Payment: p, Strategy: s.Name(), AlreadyLinked: true}, nil
		}

		if len(matches) > 1 {
			e.logger.Info("ambiguous payment match", "payment_ref", p.Ref, "strategy", s.Name(), "candidates", len(matches))
			return nil, errors.NewAmbiguousMatchError("Several requests match this payment", candidates(matches))
		}
		return e.link(ctx, matches[0], p, s.Name())
	}

	e.logger.Info("no request matches payment", "payment_ref", p.Ref, "session_ref", p.SessionRef, "metadata_request_id", p.RequestID())
	return nil, errors.NewNotFoundError("No request matches this payment", errors.ErrCodeNoMatch)
}

func (e *Engine) link(ctx context.Context, req *request.Request, p *Payment, strategy string) (*Result, error) {
	if p.Ref == "" {
		// unpaid session: nothing to link yet
		e.mergeIdentity(ctx, req, p)
		return &Result{Request: e.reload(ctx, req), Payment: p, Strategy: strategy}, nil
	}
	if req.GatewayPaymentRef != "" && req.GatewayPaymentRef != p.Ref {
		e.logger.Warn("request already linked to a different payment",
			"request_id", req.ID,
			"linked_payment_ref", req.GatewayPaymentRef,
			"payment_ref", p.Ref)
		return nil, errors.NewConflictError("request is already linked to a different payment", errors.ErrCodePaymentRefConflict).
			WithDetails(map[string]interface{}{"linked_payment_ref": req.GatewayPaymentRef})
	}

	if !req.IsGatewayRail() && strategy != StrategyExplicit {
		e.logger.Warn("refusing to link a gateway payment to a manual-rail request",
			"request_id", req.ID,
			"payment_rail", req.PaymentRail,
			"payment_ref", p.Ref,
			"strategy", strategy)
		return nil, errors.NewConflictError("request is settled on a manual payment rail", errors.ErrCodeRailMismatch).
			WithDetails(map[string]interface{}{"payment_rail": req.PaymentRail})
	}

	wasPaid := req.IsPaid()
	link := request.PaymentLink{
		PaymentRef:     p.Ref,
		PaymentStatus:  p.LocalStatus(),
		OrganizationID: p.OrganizationID(),
	}
	if !req.IsGatewayRail() {
		// operator moved the request onto the card rail so refunds reach the gateway
		link.PaymentRail = dm.RailGatewayCard
	}
	if p.Succeeded {
		paidAt := e.now().UTC()
		link.AmountPaid = p.Amount
		link.PaidAt = &paidAt
	}

	ok, err := e.repo.LinkPayment(ctx, req.ID, link)
	if err != nil {
		if !errors.HasCode(err, errors.ErrCodePaymentRefConflict) {
			e.logger.Error("failed to link payment", "request_id", req.ID, "payment_ref", p.Ref, "error", err)
			return nil, errors.NewInternalError("failed to link payment", err)
		}
		holder, herr := e.repo.GetByPaymentRef(ctx, p.Ref)
		if herr != nil || holder.ID != req.ID {
			e.logger.Warn("payment ref already held by another request", "request_id", req.ID, "payment_ref", p.Ref)
			return nil, err
		}
		ok = true
	}
	if !ok {
		current, gerr := e.repo.GetByID(ctx, req.ID)
		if gerr != nil {
			return nil, errors.NewInternalError("failed to reload request", gerr)
		}
		if current.GatewayPaymentRef != p.Ref {
			e.logger.Warn("lost link race", "request_id", req.ID, "payment_ref", p.Ref, "winner_ref", current.GatewayPaymentRef)
			return nil, errors.NewConflictError("request was linked to another payment concurrently", errors.ErrCodeStaleWrite)
		}
	}

	e.mergeIdentity(ctx, req, p)
	after := e.reload(ctx, req)

	if p.Succeeded && p.Amount != req.Total() {
		e.logger.Warn("paid amount differs from request total",
			"request_id", req.ID,
			"payment_ref", p.Ref,
			"amount_paid", p.Amount,
			"total", req.Total())
	}
	e.logger.Info("payment linked",
		"request_id", req.ID,
		"payment_ref", p.Ref,
		"strategy", strategy,
		"payment_status", after.PaymentStatus,
		"amount_paid", after.AmountPaid)

	if !wasPaid && after.IsPaid() {
		e.onPaid(ctx, after, p.Ref)
	}
	return &Result{Request: after, Payment: p, Strategy: strategy, Linked: true}, nil
}

func (e *Engine) reload(ctx context.Context, req *request.Request) *request.Request {
	fresh, err := e.repo.GetByID(ctx, req.ID)
	if err != nil {
		e.logger.Warn("could not reload request", "request_id", req.ID, "error", err)
		return req
	}
	return fresh
}

func (e *Engine) mergeIdentity(ctx context.Context, req *request.Request, p *Payment) {
	update, changed := IdentityUpdate(req, p.Identity)
	if !changed {
		return
	}
	if err := e.repo.MergeIdentity(ctx, req.ID, update); err != nil {
		e.logger.Warn("failed to merge payer identity", "request_id", req.ID, "error", err)
		return
	}
	e.logger.Debug("payer identity merged", "request_id", req.ID, "name_updated", update.Name != "")
}

// onPaid runs the side effects of a fresh payment. Failures are logged only.
func (e *Engine) onPaid(ctx context.Context, req *request.Request, ref string) {
	if err := e.cache.MarkPaid(ctx, req.ID); err != nil {
		e.logger.Warn("status cache write failed", "request_id", req.ID, "error", err)
	}
	if e.publisher == nil {
		return
	}
	event := events.NewRequestPaidEvent(req.ID, req.OrganizationID, ref, req.AmountPaid, e.currency, req.RequesterEmail)
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish request.paid", "request_id", req.ID, "error", err)
	}
}

func candidates(reqs []*request.Request) []Candidate {
	out := make([]Candidate, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, Candidate{
			RequestID:      r.ID,
			OrganizationID: r.OrganizationID,
			Kind:           r.Kind,
			RequesterName:  r.RequesterName,
			Total:          r.Total(),
			PaymentStatus:  r.PaymentStatus,
			CreatedAt:      r.CreatedAt,
		})
	}
	return out
}
