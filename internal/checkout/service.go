package checkout

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	errors "github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/core/common/money"
	gw "github.com/frahmantamala/song-requests/internal/core/datamodel/paymentgateway"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/request"
)

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params *gw.CheckoutSessionParams) (*gw.CheckoutSession, error)
}

// SessionReconciler links a completed checkout session to its request.
type SessionReconciler interface {
	ReconcileSession(ctx context.Context, sessionID string) (*request.Request, error)
}

type Session struct {
	RequestID    string `json:"request_id"`
	SessionID    string `json:"session_id"`
	URL          string `json:"url"`
	Total        int64  `json:"total"`
	TotalDisplay string `json:"total_display"`
}

type Service struct {
	repo       request.RepositoryAPI
	gateway    Gateway
	builder    *Builder
	reconciler SessionReconciler
	successURL string
	logger     *slog.Logger
}

// NewService wires the checkout flow. successURL is the public page the guest
// lands on after the redirect round trip.
func NewService(repo request.RepositoryAPI, gateway Gateway, builder *Builder, reconciler SessionReconciler, successURL string, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		gateway:    gateway,
		builder:    builder,
		reconciler: reconciler,
		successURL: successURL,
		logger:     logger,
	}
}

func checkoutable(req *request.Request) error {
	switch {
	case req.IsCancelled():
		return errors.NewValidationError("request is cancelled", errors.ErrCodeNotCheckoutable)
	case req.PaymentStatus != dm.PaymentStatusPending:
		return errors.NewValidationError("request is not awaiting payment", errors.ErrCodeNotCheckoutable)
	case !req.IsGatewayRail():
		return errors.NewValidationError("request is not payable by card", errors.ErrCodeNotCheckoutable)
	case req.Total() <= 0:
		return errors.NewValidationError("request has nothing to pay", errors.ErrCodeNotCheckoutable)
	}
	return nil
}

func (s *Service) StartCheckout(ctx context.Context, requestID string) (*Session, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := checkoutable(req); err != nil {
		s.logger.Warn("checkout refused", "request_id", requestID, "payment_status", req.PaymentStatus, "rail", req.PaymentRail, "error", err)
		return nil, err
	}

	params := s.builder.Build(req)
	session, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.logger.Error("failed to create checkout session", "request_id", requestID, "error", err)
		return nil, err
	}

	stored, err := s.repo.SetSessionRef(ctx, req.ID, session.ID)
	if err != nil {
		// metadata on the session still identifies the request, so reconciliation survives this
		s.logger.Error("failed to store checkout session ref", "request_id", req.ID, "session_id", session.ID, "error", err)
	} else if !stored {
		s.logger.Info("request already has a checkout session, keeping the first ref",
			"request_id", req.ID,
			"session_id", session.ID,
			"existing_session_id", req.GatewaySessionRef)
	}

	s.logger.Info("checkout started",
		"request_id", req.ID,
		"session_id", session.ID,
		"total", req.Total(),
		"line_items", len(params.LineItems))

	return &Session{
		RequestID:    req.ID,
		SessionID:    session.ID,
		URL:          session.URL,
		Total:        req.Total(),
		TotalDisplay: money.Format(req.Total(), params.Currency),
	}, nil
}

// CompleteRedirect reconciles the session the gateway sent the guest back
// with and returns where to send the guest next. It never fails: the webhook
// and the orphan scanner cover anything missed here.
func (s *Service) CompleteRedirect(ctx context.Context, sessionID string) string {
	target, err := url.Parse(s.successURL)
	if err != nil {
		s.logger.Error("invalid success url", "url", s.successURL, "error", err)
		return "/"
	}
	q := target.Query()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID != "" {
		req, err := s.reconciler.ReconcileSession(ctx, sessionID)
		if err != nil {
			s.logger.Warn("checkout redirect reconciliation failed", "session_id", sessionID, "error", err)
		}
		if req != nil {
			q.Set("request_id", req.ID)
			q.Set("paid", boolString(req.IsPaid()))
		}
	}

	target.RawQuery = q.Encode()
	return target.String()
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
