package refund

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/transport"
	"github.com/frahmantamala/song-requests/pkg/logger"
)

type ServiceAPI interface {
	Refund(ctx context.Context, id string, dto RefundDTO) (*Result, error)
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

func (h *Handler) RefundRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var dto RefundDTO
	if r.ContentLength != 0 && !h.DecodeJSON(w, r, &dto) {
		return
	}

	result, err := h.Service.Refund(r.Context(), id, dto)
	if err != nil {
		h.Logger.Error("RefundRequest: service error", "error", err, "request_id", id, "admin_id", errors.UserIDFromContext(r.Context()))
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}
