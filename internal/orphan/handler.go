package orphan

import (
	"context"
	"log/slog"
	"net/http"

	errors "github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/transport"
	"github.com/frahmantamala/song-requests/pkg/logger"
)

type ServiceAPI interface {
	Run(ctx context.Context) (*Report, error)
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

func (h *Handler) SyncOrphaned(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("SyncOrphaned: scan requested", "admin_id", errors.UserIDFromContext(r.Context()))

	report, err := h.Service.Run(r.Context())
	if err != nil {
		h.Logger.Error("SyncOrphaned: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, report)
}
