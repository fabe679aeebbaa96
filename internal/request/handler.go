package request

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/song-requests/internal/tenant"
	"github.com/frahmantamala/song-requests/internal/transport"
	"github.com/frahmantamala/song-requests/pkg/logger"
)

type ServiceAPI interface {
	Create(ctx context.Context, dto CreateRequestDTO, signals tenant.Signals) (*CreateRequestResponse, error)
	PaymentStatus(ctx context.Context, id string) (*PaymentStatusView, error)
	PayByCode(ctx context.Context, code string) (*PayByCodeView, error)
	ConfirmManualPayment(ctx context.Context, dto ConfirmManualDTO) (*ConfirmManualResponse, error)
	AssignOrganization(ctx context.Context, id string, dto AssignOrganizationDTO) (*Request, error)
	DeleteForOrganization(ctx context.Context, orgID string, dto DeleteRequestsDTO) (int64, error)
	Queue(ctx context.Context, orgID string) (*QueueResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var dto CreateRequestDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	signals := tenant.Signals{
		Referer:   r.Header.Get("Referer"),
		Origin:    r.Header.Get("Origin"),
		EventCode: dto.EventCode,
	}

	resp, err := h.Service.Create(r.Context(), dto, signals)
	if err != nil {
		h.Logger.Error("CreateRequest: service error", "error", err, "kind", dto.Kind)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := h.Service.PaymentStatus(r.Context(), id)
	if err != nil {
		h.Logger.Warn("GetPaymentStatus: service error", "error", err, "request_id", id)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) PayByCode(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	view, err := h.Service.PayByCode(r.Context(), code)
	if err != nil {
		h.Logger.Warn("PayByCode: service error", "error", err, "code", code)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) ConfirmManualPayment(w http.ResponseWriter, r *http.Request) {
	var dto ConfirmManualDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	resp, err := h.Service.ConfirmManualPayment(r.Context(), dto)
	if err != nil {
		h.Logger.Error("ConfirmManualPayment: service error", "error", err, "payment_code", dto.PaymentCode)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) AssignOrganization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var dto AssignOrganizationDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	req, err := h.Service.AssignOrganization(r.Context(), id, dto)
	if err != nil {
		h.Logger.Error("AssignOrganization: service error", "error", err, "request_id", id)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) DeleteForOrganization(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	var dto DeleteRequestsDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	n, err := h.Service.DeleteForOrganization(r.Context(), orgID, dto)
	if err != nil {
		h.Logger.Error("DeleteForOrganization: service error", "error", err, "organization_id", orgID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"organization_id": orgID,
		"deleted":         n,
	})
}

func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	resp, err := h.Service.Queue(r.Context(), orgID)
	if err != nil {
		h.Logger.Error("GetQueue: service error", "error", err, "organization_id", orgID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}
