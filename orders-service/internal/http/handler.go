package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/orders-service/internal/domain"
	"github.com/Jaabir-Mahmud/folioxe/orders-service/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type RevenueResponse struct {
	TotalRevenue string `json:"total_revenue"`
	Purchases    int64  `json:"purchases"`
	AverageOrder string `json:"average_order"`
	Currency     string `json:"currency"`
}

type SaleItemDTO struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

type SaleDTO struct {
	ID         string        `json:"id"`
	PurchaseID string        `json:"purchase_id"`
	UserID     string        `json:"user_id"`
	Amount     string        `json:"amount"`
	Currency   string        `json:"currency"`
	Items      []SaleItemDTO `json:"items"`
	RecordedAt time.Time     `json:"recorded_at"`
}

type SalesResponse struct {
	Sales []SaleDTO `json:"sales"`
}

type AnalyticsHandler struct {
	repo    repository.SaleRepository
	timeout time.Duration
	log     *slog.Logger
}

func NewAnalyticsHandler(repo repository.SaleRepository, timeout time.Duration, log *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{repo: repo, timeout: timeout, log: log}
}

func NewRouter(h *AnalyticsHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/analytics/revenue", h.Revenue)
		r.Get("/sales", h.ListSales)
		r.Get("/sales/{id}", h.GetSale)
	})

	return otelhttp.NewHandler(r, "orders-service")
}

// Revenue is the admin dashboard's revenue card: the sum of recorded sale amounts.
func (h *AnalyticsHandler) Revenue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rev, err := h.repo.Revenue(ctx)
	if err != nil {
		h.log.Error("failed to compute revenue", "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to compute revenue")
		return
	}
	respondJSON(w, http.StatusOK, RevenueResponse{
		TotalRevenue: rev.Total.StringFixed(2),
		Purchases:    rev.Purchases,
		AverageOrder: rev.AverageOrder().StringFixed(2),
		Currency:     "usd",
	})
}

func (h *AnalyticsHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id query parameter is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sales, err := h.repo.ListSalesByUser(ctx, userID)
	if err != nil {
		h.log.Error("failed to list sales", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list sales")
		return
	}

	resp := SalesResponse{Sales: make([]SaleDTO, 0, len(sales))}
	for _, s := range sales {
		resp.Sales = append(resp.Sales, toSaleDTO(s))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *AnalyticsHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "invalid sale id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sale, err := h.repo.GetSale(ctx, id)
	if errors.Is(err, repository.ErrSaleNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "sale not found")
		return
	}
	if err != nil {
		h.log.Error("failed to get sale", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to get sale")
		return
	}
	respondJSON(w, http.StatusOK, toSaleDTO(sale))
}

func toSaleDTO(s *domain.Sale) SaleDTO {
	items := make([]SaleItemDTO, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, SaleItemDTO{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
		})
	}
	return SaleDTO{
		ID:         s.ID.String(),
		PurchaseID: s.PurchaseID,
		UserID:     s.UserID,
		Amount:     s.Amount.StringFixed(2),
		Currency:   s.Currency,
		Items:      items,
		RecordedAt: s.RecordedAt,
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}
