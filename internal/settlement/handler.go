package settlement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/harvest-hub/harvesthub/internal/platform/httpx"
	"github.com/harvest-hub/harvesthub/internal/shared"
)

// Handler exposes the settlement API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	admin    func(http.Handler) http.Handler
}

// NewHandler builds a Handler instance. The admin middleware guards the
// commit endpoint; preview and history stay readable without it.
func NewHandler(logger *slog.Logger, service *Service, admin func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		admin:    admin,
	}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/payouts/preview", h.preview)
	r.Get("/payouts", h.listPayouts)
	r.Get("/payouts/runs", h.listRuns)

	r.Group(func(r chi.Router) {
		if h.admin != nil {
			r.Use(h.admin)
		}
		r.Post("/payouts/process", h.process)
	})
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	req := runRequest{Period: r.URL.Query().Get("period")}
	req.Rate, _ = strconv.ParseFloat(r.URL.Query().Get("rate"), 64)
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "period (YYYY-MM) and a positive rate are required")
		return
	}

	report, err := h.service.Preview(r.Context(), req.Period, req.Rate)
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRunResponse(report))
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "period (YYYY-MM) and a positive rate are required")
		return
	}

	report, err := h.service.Commit(r.Context(), req.Period, req.Rate)
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRunResponse(report))
}

func (h *Handler) listPayouts(w http.ResponseWriter, r *http.Request) {
	var q PayoutQuery
	if periodStr := r.URL.Query().Get("period"); periodStr != "" {
		period, err := shared.ParsePeriod(periodStr)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Period", err.Error())
			return
		}
		q.Period = period
	}
	q.FarmerID, _ = strconv.ParseInt(r.URL.Query().Get("farmerId"), 10, 64)
	q.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	q.PerPage, _ = strconv.Atoi(r.URL.Query().Get("perPage"))

	payouts, total, err := h.service.Payouts(r.Context(), q)
	if err != nil {
		h.logger.Error("list payouts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	results := make([]payoutResponse, 0, len(payouts))
	for _, p := range payouts {
		results = append(results, toPayoutResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"results":    results,
		"pagination": shared.NewPagination(q.Page, q.PerPage, total),
	})
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	periodStr := r.URL.Query().Get("period")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	runs, err := h.service.Runs(r.Context(), periodStr, limit)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidPeriod) {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Period", err.Error())
			return
		}
		h.logger.Error("list settlement runs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	results := make([]runHistoryResponse, 0, len(runs))
	for _, rec := range runs {
		results = append(results, runHistoryResponse{
			RunID:      rec.RunID,
			Period:     rec.Period.String(),
			Mode:       string(rec.Mode),
			Rate:       rec.Rate,
			Committed:  rec.Committed,
			Skipped:    rec.Skipped,
			Failed:     rec.Failed,
			StartedAt:  rec.StartedAt,
			FinishedAt: rec.FinishedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": results})
}

func (h *Handler) respondRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidPeriod):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period", err.Error())
	case errors.Is(err, shared.ErrInvalidRate):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Rate", err.Error())
	case errors.Is(err, ErrRunInProgress):
		httpx.Problem(w, http.StatusConflict, "Run In Progress", err.Error())
	default:
		h.logger.Error("settlement run", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
