package checkout

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/song-requests/internal/transport"
	"github.com/frahmantamala/song-requests/pkg/logger"
)

type ServiceAPI interface {
	StartCheckout(ctx context.Context, requestID string) (*Session, error)
	CompleteRedirect(ctx context.Context, sessionID string) string
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

func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := h.Service.StartCheckout(r.Context(), id)
	if err != nil {
		h.Logger.Error("StartCheckout: service error", "error", err, "request_id", id)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	target := h.Service.CompleteRedirect(r.Context(), r.URL.Query().Get("session_id"))
	http.Redirect(w, r, target, http.StatusSeeOther)
}
