package reconcile

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	errors "github.com/frahmantamala/song-requests/internal"
	gw "github.com/frahmantamala/song-requests/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/song-requests/internal/transport"
	"github.com/frahmantamala/song-requests/pkg/logger"
)

const maxWebhookBody = 64 << 10

type ServiceAPI interface {
	Link(ctx context.Context, ref string, target Target) (*Result, error)
	LinkByMetadata(ctx context.Context, ref string) (*Result, error)
	Find(ctx context.Context, ref string) (*FindResult, error)
	HandleEvent(ctx context.Context, event *gw.Event) error
}

type EventVerifier interface {
	ConstructEvent(payload []byte, header string) (*gw.Event, error)
}

type LinkPaymentDTO struct {
	PaymentRef string `json:"payment_ref"`
	RequestID  string `json:"request_id"`
}

type Handler struct {
	*transport.BaseHandler
	Service         ServiceAPI
	Verifier        EventVerifier
	SignatureHeader string
}

func NewHandler(service ServiceAPI, verifier EventVerifier, signatureHeader string) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler:     transport.NewBaseHandler(lg),
		Service:         service,
		Verifier:        verifier,
		SignatureHeader: signatureHeader,
	}
}

func (h *Handler) LinkPayment(w http.ResponseWriter, r *http.Request) {
	var dto LinkPaymentDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	res, err := h.Service.Link(r.Context(), dto.PaymentRef, Target{RequestID: dto.RequestID})
	if err != nil {
		h.Logger.Error("LinkPayment: service error", "error", err, "payment_ref", dto.PaymentRef, "request_id", dto.RequestID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("LinkPayment: payment reconciled",
		"payment_ref", dto.PaymentRef,
		"request_id", res.Request.ID,
		"strategy", res.Strategy,
		"admin_id", errors.UserIDFromContext(r.Context()))
	h.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) LinkByMetadata(w http.ResponseWriter, r *http.Request) {
	var dto LinkPaymentDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	res, err := h.Service.LinkByMetadata(r.Context(), dto.PaymentRef)
	if err != nil {
		h.Logger.Error("LinkByMetadata: service error", "error", err, "payment_ref", dto.PaymentRef)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) FindPayment(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("paymentIntentId")
	res, err := h.Service.Find(r.Context(), ref)
	if err != nil {
		h.Logger.Error("FindPayment: service error", "error", err, "payment_ref", ref)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.HandleServiceError(w, errors.NewValidationError("could not read webhook body", errors.ErrCodeValidationFailed))
		return
	}

	event, err := h.Verifier.ConstructEvent(payload, r.Header.Get(h.SignatureHeader))
	if err != nil {
		h.Logger.Warn("Webhook: rejected", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.HandleEvent(r.Context(), event); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"received": true})
}
