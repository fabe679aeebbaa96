package integrity

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/song-requests/internal"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/integrity"
	"github.com/frahmantamala/song-requests/internal/transport"
	"github.com/frahmantamala/song-requests/pkg/logger"
)

type ServiceAPI interface {
	ListOpen(ctx context.Context, limit int) ([]*dm.Issue, error)
	Resolve(ctx context.Context, id string) (bool, error)
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

func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	issues, err := h.Service.ListOpen(r.Context(), limit)
	if err != nil {
		h.Logger.Error("ListOpen: service error", "error", err)
		h.HandleServiceError(w, errors.NewInternalError("failed to list integrity issues", err))
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"issues": issues,
		"limit":  limit,
	})
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.Service.Resolve(r.Context(), id)
	if err != nil {
		h.Logger.Error("Resolve: service error", "error", err, "issue_id", id)
		h.HandleServiceError(w, errors.NewInternalError("failed to resolve integrity issue", err))
		return
	}
	if !ok {
		h.HandleServiceError(w, errors.NewNotFoundError("Open integrity issue not found", errors.ErrCodeIssueNotFound))
		return
	}
	h.Logger.Info("integrity issue resolved", "issue_id", id, "admin_id", errors.UserIDFromContext(r.Context()))
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"id": id, "resolved": true})
}
