package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harvest-hub/harvesthub/internal/platform/httpx"
	"github.com/harvest-hub/harvesthub/internal/shared"
)

// Handler exposes read-only ledger queries.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
	loc    *time.Location
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{logger: logger, repo: repo, loc: loc}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/deliveries", h.listDeliveries)
	r.Get("/deliveries/totals", h.deliveryTotals)
	r.Get("/accounts", h.listAccounts)
	r.Get("/loans", h.listLoans)
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	farmerID, _ := strconv.ParseInt(r.URL.Query().Get("farmerId"), 10, 64)

	var from, to time.Time
	if periodStr := r.URL.Query().Get("period"); periodStr != "" {
		period, err := shared.ParsePeriod(periodStr)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Period", err.Error())
			return
		}
		from, to = period.Range(h.loc)
	}

	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	deliveries, err := h.repo.ListDeliveries(r.Context(), farmerID, from, to, limit)
	if err != nil {
		h.logger.Error("list deliveries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	results := make([]deliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		results = append(results, deliveryResponse{
			ID:          d.ID,
			FarmerID:    d.FarmerID,
			Quantity:    d.Quantity,
			FatPct:      d.FatPct,
			SNFPct:      d.SNFPct,
			Amount:      d.Amount,
			DeliveredAt: d.DeliveredAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) deliveryTotals(w http.ResponseWriter, r *http.Request) {
	periodStr := r.URL.Query().Get("period")
	period, err := shared.ParsePeriod(periodStr)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period", err.Error())
		return
	}
	from, to := period.Range(h.loc)

	if farmerIDStr := r.URL.Query().Get("farmerId"); farmerIDStr != "" {
		farmerID, err := strconv.ParseInt(farmerIDStr, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Farmer", "farmerId must be numeric")
			return
		}
		totals, err := h.repo.DeliveryTotals(r.Context(), farmerID, from, to)
		if err != nil {
			h.logger.Error("delivery totals", slog.Any("error", err), slog.Int64("farmer_id", farmerID))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"period": period.String(), "result": totals})
		return
	}

	totals, err := h.repo.DeliveryTotalsByFarmer(r.Context(), from, to)
	if err != nil {
		h.logger.Error("delivery totals by farmer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period": period.String(), "results": totals})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	farmerID, err := strconv.ParseInt(r.URL.Query().Get("farmerId"), 10, 64)
	if err != nil || farmerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Farmer", "farmerId is required")
		return
	}

	accounts, err := h.repo.AccountsByFarmer(r.Context(), farmerID)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err), slog.Int64("farmer_id", farmerID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) listLoans(w http.ResponseWriter, r *http.Request) {
	farmerID, err := strconv.ParseInt(r.URL.Query().Get("farmerId"), 10, 64)
	if err != nil || farmerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Farmer", "farmerId is required")
		return
	}

	loans, err := h.repo.LoansByFarmer(r.Context(), farmerID, LoanStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.logger.Error("list loans", slog.Any("error", err), slog.Int64("farmer_id", farmerID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"loans": loans})
}

type deliveryResponse struct {
	ID          int64     `json:"id"`
	FarmerID    int64     `json:"farmerId"`
	Quantity    float64   `json:"quantity"`
	FatPct      float64   `json:"fat"`
	SNFPct      float64   `json:"snf"`
	Amount      float64   `json:"amount"`
	DeliveredAt time.Time `json:"date"`
}
