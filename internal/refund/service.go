package refund

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	errors "github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/core/datamodel/integrity"
	gw "github.com/frahmantamala/song-requests/internal/core/datamodel/paymentgateway"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/core/events"
	"github.com/frahmantamala/song-requests/internal/request"
)

type Gateway interface {
	CreateRefund(ctx context.Context, params *gw.RefundParams) (*gw.Refund, error)
}

type IssueRecorder interface {
	Record(ctx context.Context, kind, gatewayRef, requestID string, details map[string]interface{}) error
}

type RefundDTO struct {
	// Amount defaults to everything paid.
	Amount *int64 `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type Result struct {
	Request  *request.Request `json:"request"`
	Amount   int64            `json:"amount"`
	Full     bool             `json:"full"`
	Rail     string           `json:"rail"`
	RefundID string           `json:"refund_id,omitempty"`
}

type Service struct {
	repo      request.RepositoryAPI
	gateway   Gateway
	cache     request.StatusCache
	publisher events.Publisher
	recorder  IssueRecorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo request.RepositoryAPI, gateway Gateway, cache request.StatusCache, publisher events.Publisher, recorder IssueRecorder, logger *slog.Logger) *Service {
	if cache == nil {
		cache = request.NoopStatusCache{}
	}
	return &Service{
		repo:      repo,
		gateway:   gateway,
		cache:     cache,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IdempotencyKey is stable for a request and amount, so a repeated call can
// never issue a second gateway refund.
func IdempotencyKey(requestID string, amount int64) string {
	return fmt.Sprintf("refund-%s-%d", requestID, amount)
}

func (s *Service) Refund(ctx context.Context, id string, dto RefundDTO) (*Result, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.IsPaid() {
		return nil, errors.NewValidationError(
			fmt.Sprintf("only paid requests can be refunded (payment status is %s)", req.PaymentStatus),
			errors.ErrCodeNotRefundable)
	}

	amount := req.AmountPaid
	if dto.Amount != nil {
		amount = *dto.Amount
	}
	if amount <= 0 {
		return nil, errors.NewValidationFieldError("amount", "refund amount must be greater than 0", errors.ErrCodeInvalidAmount)
	}
	if amount > req.AmountPaid {
		return nil, errors.NewValidationError(
			fmt.Sprintf("refund amount %d exceeds amount paid %d", amount, req.AmountPaid),
			errors.ErrCodeRefundTooLarge)
	}

	full := amount == req.AmountPaid
	update := request.RefundUpdate{
		Amount:        amount,
		Reason:        strings.TrimSpace(dto.Reason),
		PaymentStatus: dm.PaymentStatusPartiallyRefunded,
		Status:        req.Status,
		RefundedAt:    s.now().UTC(),
	}
	if full {
		update.PaymentStatus = dm.PaymentStatusRefunded
		update.Status = dm.StatusCancelled
	}

	result := &Result{Amount: amount, Full: full, Rail: req.PaymentRail}
	if req.IsGatewayRail() {
		refundID, err := s.refundAtGateway(ctx, req, update)
		if err != nil {
			return nil, err
		}
		result.RefundID = refundID
	} else {
		ok, err := s.repo.ApplyRefund(ctx, req.ID, update)
		if err != nil {
			return nil, errors.NewInternalError("failed to record refund", err)
		}
		if !ok {
			return nil, errors.NewConflictError("request was refunded or changed concurrently", errors.ErrCodeStaleWrite)
		}
	}

	s.logger.Info("request refunded",
		"request_id", req.ID,
		"amount", amount,
		"full", full,
		"rail", req.PaymentRail,
		"refund_id", result.RefundID)

	s.afterRefund(ctx, req, result)

	fresh, err := s.repo.GetByID(ctx, req.ID)
	if err != nil {
		s.logger.Warn("could not reload refunded request", "request_id", req.ID, "error", err)
		fresh = req
	}
	result.Request = fresh
	return result, nil
}

// refundAtGateway issues the refund first and only then records it locally.
// A local failure after gateway success is queued for review, never rolled back.
func (s *Service) refundAtGateway(ctx context.Context, req *request.Request, update request.RefundUpdate) (string, error) {
	if req.GatewayPaymentRef == "" {
		return "", errors.NewValidationError("request has no gateway payment to refund", errors.ErrCodeNotRefundable)
	}

	params := (&gw.RefundParams{
		Amount:         update.Amount,
		Reason:         update.Reason,
		IdempotencyKey: IdempotencyKey(req.ID, update.Amount),
		Metadata:       map[string]string{"request_id": req.ID},
	}).RefundTarget(req.GatewayPaymentRef)
	refund, err := s.gateway.CreateRefund(ctx, params)
	if err != nil {
		s.logger.Error("gateway refund failed", "request_id", req.ID, "payment_ref", req.GatewayPaymentRef, "error", err)
		return "", err
	}

	ok, err := s.repo.ApplyRefund(ctx, req.ID, update)
	if err == nil && ok {
		return refund.ID, nil
	}

	reason := "conditional update matched no row"
	if err != nil {
		reason = err.Error()
	}
	s.logger.Error("CRITICAL: gateway refund succeeded but local record failed",
		"request_id", req.ID,
		"payment_ref", req.GatewayPaymentRef,
		"refund_id", refund.ID,
		"amount", update.Amount,
		"reason", reason)
	if s.recorder != nil {
		if rerr := s.recorder.Record(ctx, integrity.KindRefundRecordFailed, refund.ID, req.ID, map[string]interface{}{
			"payment_ref": req.GatewayPaymentRef,
			"amount":      update.Amount,
			"reason":      reason,
		}); rerr != nil {
			s.logger.Error("failed to record integrity issue", "request_id", req.ID, "error", rerr)
		}
	}
	if ferr := s.cache.Forget(ctx, req.ID); ferr != nil {
		s.logger.Warn("status cache eviction failed", "request_id", req.ID, "error", ferr)
	}
	return "", errors.NewIntegrityWarning("refund was issued at the gateway but could not be recorded; it has been queued for review", err).
		WithDetails(map[string]interface{}{"refund_id": refund.ID})
}

func (s *Service) afterRefund(ctx context.Context, req *request.Request, result *Result) {
	if err := s.cache.Forget(ctx, req.ID); err != nil {
		s.logger.Warn("status cache eviction failed", "request_id", req.ID, "error", err)
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.NewRequestRefundedEvent(req.ID, result.Amount, result.Full, result.Rail)); err != nil {
		s.logger.Warn("failed to publish request.refunded", "request_id", req.ID, "error", err)
	}
}
