package request

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	errors "github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/core/common/money"
	"github.com/frahmantamala/song-requests/internal/core/datamodel/organization"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/core/events"
	"github.com/frahmantamala/song-requests/internal/tenant"
)

type TenantResolver interface {
	Resolve(ctx context.Context, signals tenant.Signals) string
}

type OrganizationLookup interface {
	GetByID(ctx context.Context, id string) (*organization.Organization, error)
}

type Settings struct {
	Currency       string
	NextFee        int64
	FastTrackFee   int64
	MaxCodeRetries int
}

type Service struct {
	repo         RepositoryAPI
	queue        QueueReader
	resolver     TenantResolver
	orgs         OrganizationLookup
	capabilities tenant.CapabilityChecker
	codes        CodeGenerator
	cache        StatusCache
	publisher    events.Publisher
	settings     Settings
	now          func() time.Time
	logger       *slog.Logger
}

type ServiceDeps struct {
	Repo         RepositoryAPI
	Queue        QueueReader
	Resolver     TenantResolver
	Orgs         OrganizationLookup
	Capabilities tenant.CapabilityChecker
	Codes        CodeGenerator
	Cache        StatusCache
	Publisher    events.Publisher
}

func NewService(deps ServiceDeps, settings Settings, logger *slog.Logger) *Service {
	if deps.Cache == nil {
		deps.Cache = NoopStatusCache{}
	}
	if settings.MaxCodeRetries <= 0 {
		settings.MaxCodeRetries = 5
	}
	if settings.Currency == "" {
		settings.Currency = "usd"
	}
	return &Service{
		repo:         deps.Repo,
		queue:        deps.Queue,
		resolver:     deps.Resolver,
		orgs:         deps.Orgs,
		capabilities: deps.Capabilities,
		codes:        deps.Codes,
		cache:        deps.Cache,
		publisher:    deps.Publisher,
		settings:     settings,
		now:          time.Now,
		logger:       logger,
	}
}

// WithClock replaces the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, dto CreateRequestDTO, signals tenant.Signals) (*CreateRequestResponse, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Warn("request validation failed", "error", err)
		return nil, err
	}

	signals.ExplicitOrganizationID = strings.TrimSpace(dto.OrganizationID)
	if signals.EventCode == "" {
		signals.EventCode = dto.EventCode
	}
	orgID := s.resolver.Resolve(ctx, signals)

	priority := dto.Priority
	if priority == "" {
		priority = PriorityStandard
	}
	if priority != PriorityStandard && !s.capabilities.Allows(ctx, orgID, tenant.CapabilityPriorityRequests) {
		s.logger.Info("priority tier not enabled for organization, creating as standard",
			"organization_id", orgID,
			"requested_priority", priority)
		priority = PriorityStandard
	}
	if fee := s.priorityFee(priority); priority != PriorityStandard && fee <= 0 {
		s.logger.Warn("priority tier has no fee configured, creating as standard",
			"organization_id", orgID,
			"requested_priority", priority)
		priority = PriorityStandard
	}

	rail := dto.PaymentRail
	if rail == "" {
		rail = dm.RailGatewayCard
	}

	code, err := s.paymentCode(ctx, orgID, strings.ToUpper(strings.TrimSpace(dto.PaymentCode)))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	req := &Request{
		ID:              uuid.NewString(),
		OrganizationID:  orgID,
		EventCode:       dto.EventCode,
		Kind:            dto.Kind,
		PaymentCode:     code,
		SongTitle:       dto.SongTitle,
		SongArtist:      dto.SongArtist,
		SongURL:         dto.SongURL,
		Message:         dto.Message,
		RecipientName:   dto.RecipientName,
		AmountRequested: dto.AmountRequested,
		PriorityOrder:   dm.PriorityStandard,
		PaymentStatus:   dm.PaymentStatusPending,
		PaymentRail:     rail,
		RequesterName:   strings.TrimSpace(dto.RequesterName),
		RequesterEmail:  strings.ToLower(strings.TrimSpace(dto.RequesterEmail)),
		RequesterPhone:  strings.TrimSpace(dto.RequesterPhone),
		Status:          dm.StatusNew,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	switch priority {
	case PriorityNext:
		req.PriorityOrder = dm.PriorityNext
		req.PriorityFeeNext = s.settings.NextFee
	case PriorityFastTrack:
		req.PriorityOrder = dm.PriorityFastTrack
		req.PriorityFeeFastTrack = s.settings.FastTrackFee
	}

	if err := s.repo.Create(ctx, req); err != nil {
		s.logger.Error("failed to create request", "error", err, "payment_code", code)
		return nil, errors.NewInternalError("failed to create request", err)
	}

	if orgID == "" {
		s.logger.Warn("request created without organization", "request_id", req.ID)
	}
	s.logger.Info("request created",
		"request_id", req.ID,
		"organization_id", orgID,
		"kind", req.Kind,
		"priority_order", req.PriorityOrder,
		"payment_code", code,
		"total", req.Total())

	return &CreateRequestResponse{
		Request:      req,
		Total:        req.Total(),
		TotalDisplay: money.Format(req.Total(), s.settings.Currency),
	}, nil
}

// paymentCode reuses a pending bundle code in the same organization, or mints a new one.
func (s *Service) paymentCode(ctx context.Context, orgID, requested string) (string, error) {
	if requested != "" {
		ok, err := s.repo.PendingCodeExists(ctx, orgID, requested)
		if err != nil {
			return "", errors.NewInternalError("failed to check payment code", err)
		}
		if ok {
			s.logger.Debug("reusing bundle payment code", "payment_code", requested, "organization_id", orgID)
			return requested, nil
		}
	}

	for i := 0; i < s.settings.MaxCodeRetries; i++ {
		code, err := s.codes.Generate()
		if err != nil {
			return "", errors.NewInternalError("failed to generate payment code", err)
		}
		exists, err := s.repo.PaymentCodeExists(ctx, code)
		if err != nil {
			return "", errors.NewInternalError("failed to check payment code", err)
		}
		if !exists {
			return code, nil
		}
		s.logger.Debug("payment code collision, regenerating", "attempt", i+1)
	}
	return "", errors.NewInternalError("could not allocate a unique payment code", nil)
}

func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

// PaymentStatus answers kiosk polling. Positive answers are cached.
func (s *Service) PaymentStatus(ctx context.Context, id string) (*PaymentStatusView, error) {
	if paid, err := s.cache.IsPaid(ctx, id); err != nil {
		s.logger.Warn("status cache read failed", "request_id", id, "error", err)
	} else if paid {
		return &PaymentStatusView{RequestID: id, Paid: true, PaymentStatus: dm.PaymentStatusPaid}, nil
	}

	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &PaymentStatusView{RequestID: id, Paid: req.IsPaid(), PaymentStatus: req.PaymentStatus}
	if view.Paid {
		s.cacheMarkPaid(ctx, id)
	}
	return view, nil
}

func (s *Service) cacheMarkPaid(ctx context.Context, id string) {
	if err := s.cache.MarkPaid(ctx, id); err != nil {
		s.logger.Warn("status cache write failed", "request_id", id, "error", err)
	}
}

func (s *Service) PayByCode(ctx context.Context, code string) (*PayByCodeView, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, errors.NewValidationFieldError("code", "code is required", errors.ErrCodeValidationFailed)
	}

	reqs, err := s.repo.ListByPaymentCode(ctx, code)
	if err != nil {
		return nil, errors.NewInternalError("failed to look up payment code", err)
	}
	live := make([]*Request, 0, len(reqs))
	for _, r := range reqs {
		if !r.IsCancelled() {
			live = append(live, r)
		}
	}
	if len(live) == 0 {
		return nil, errors.NewNotFoundError("No requests for this payment code", errors.ErrCodePaymentCodeNotFound)
	}

	view := &PayByCodeView{PaymentCode: code, Requests: live, Paid: true}
	for _, r := range live {
		if r.PaymentStatus == dm.PaymentStatusPending {
			view.TotalDue += r.Total()
			view.Paid = false
		}
	}
	view.TotalDisplay = money.Format(view.TotalDue, s.settings.Currency)
	return view, nil
}

// ConfirmManualPayment marks a CashApp/Venmo/cash bundle paid after the operator
// has seen the money arrive.
func (s *Service) ConfirmManualPayment(ctx context.Context, dto ConfirmManualDTO) (*ConfirmManualResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.TrimSpace(dto.PaymentCode))

	reqs, err := s.repo.ListByPaymentCode(ctx, code)
	if err != nil {
		return nil, errors.NewInternalError("failed to look up payment code", err)
	}
	if len(reqs) == 0 {
		return nil, errors.NewNotFoundError("No requests for this payment code", errors.ErrCodePaymentCodeNotFound)
	}

	paidAt := s.now().UTC()
	n, err := s.repo.ConfirmManualPayment(ctx, code, dto.PaymentRail, paidAt)
	if err != nil {
		s.logger.Error("failed to confirm manual payment", "payment_code", code, "error", err)
		return nil, errors.NewInternalError("failed to confirm payment", err)
	}

	s.logger.Info("manual payment confirmed",
		"payment_code", code,
		"rail", dto.PaymentRail,
		"confirmed", n,
		"admin_id", errors.UserIDFromContext(ctx))

	if n > 0 {
		wasPending := make(map[string]bool, len(reqs))
		for _, r := range reqs {
			if r.PaymentStatus == dm.PaymentStatusPending {
				wasPending[r.ID] = true
			}
		}
		after, err := s.repo.ListByPaymentCode(ctx, code)
		if err != nil {
			s.logger.Warn("could not reload bundle for side effects", "payment_code", code, "error", err)
		}
		for _, r := range after {
			if wasPending[r.ID] && r.IsPaid() {
				s.cacheMarkPaid(ctx, r.ID)
				s.publish(ctx, events.NewRequestPaidEvent(r.ID, r.OrganizationID, "", r.AmountPaid, s.settings.Currency, r.RequesterEmail))
			}
		}
	}

	return &ConfirmManualResponse{PaymentCode: code, Confirmed: n}, nil
}

func (s *Service) priorityFee(priority string) int64 {
	switch priority {
	case PriorityNext:
		return s.settings.NextFee
	case PriorityFastTrack:
		return s.settings.FastTrackFee
	}
	return 0
}

func (s *Service) AssignOrganization(ctx context.Context, id string, dto AssignOrganizationDTO) (*Request, error) {
	orgID := strings.TrimSpace(dto.OrganizationID)
	if orgID == "" {
		return nil, errors.NewValidationFieldError("organization_id", "organization_id is required", errors.ErrCodeValidationFailed)
	}
	if _, err := s.orgs.GetByID(ctx, orgID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	if _, err := s.repo.AssignOrganization(ctx, id, orgID); err != nil {
		return nil, errors.NewInternalError("failed to assign organization", err)
	}
	s.logger.Info("organization assigned", "request_id", id, "organization_id", orgID, "admin_id", errors.UserIDFromContext(ctx))
	return s.repo.GetByID(ctx, id)
}

func (s *Service) DeleteForOrganization(ctx context.Context, orgID string, dto DeleteRequestsDTO) (int64, error) {
	if err := dto.Validate(); err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteForOrganization(ctx, orgID, dto.RequestIDs)
	if err != nil {
		return 0, errors.NewInternalError("failed to delete requests", err)
	}
	s.logger.Info("requests deleted", "organization_id", orgID, "requested", len(dto.RequestIDs), "deleted", n, "admin_id", errors.UserIDFromContext(ctx))
	return n, nil
}

func (s *Service) Queue(ctx context.Context, orgID string) (*QueueResponse, error) {
	reqs, err := s.queue.ListSettledQueue(ctx, orgID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load queue", err)
	}

	sorted := SortQueue(reqs)
	entries := make([]QueueEntry, 0, len(sorted))
	for i, r := range sorted {
		entries = append(entries, QueueEntry{
			Position:      i + 1,
			RequestID:     r.ID,
			Kind:          r.Kind,
			Tier:          TierName(r.PriorityOrder),
			SongTitle:     r.SongTitle,
			SongArtist:    r.SongArtist,
			SongURL:       r.SongURL,
			Message:       r.Message,
			RecipientName: r.RecipientName,
			RequesterName: r.RequesterName,
			AmountPaid:    r.AmountPaid,
			AmountDisplay: money.Format(r.AmountPaid, s.settings.Currency),
			CreatedAt:     r.CreatedAt,
		})
	}
	return &QueueResponse{OrganizationID: orgID, Entries: entries}, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
