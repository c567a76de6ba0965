package notify

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/harvest-hub/harvesthub/internal/platform/httpx"
)

// Handler exposes notification reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/notifications", h.list)
	r.Post("/notifications/{id}/read", h.markRead)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	farmerID, err := strconv.ParseInt(r.URL.Query().Get("farmerId"), 10, 64)
	if err != nil || farmerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Farmer", "farmerId is required")
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	notifications, err := h.service.List(r.Context(), farmerID, unreadOnly, limit)
	if err != nil {
		h.logger.Error("list notifications", slog.Any("error", err), slog.Int64("farmer_id", farmerID))
		httpx.RespondError(w, err)
		return
	}
	if notifications == nil {
		notifications = []Notification{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "notification id must be numeric")
		return
	}

	if err := h.service.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("mark notification read", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
