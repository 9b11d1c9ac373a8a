package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
)

const defaultPurchaseLimit = 50

type PurchaseReader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Purchase, error)
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.Purchase, error)
}

type PurchaseHandler struct {
	purchases PurchaseReader
	timeout   time.Duration
	log       *slog.Logger
}

func NewPurchaseHandler(purchases PurchaseReader, timeout time.Duration, log *slog.Logger) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases, timeout: timeout, log: log}
}

type EligibilityResponseDTO struct {
	HasPurchased bool `json:"has_purchased"`
}

// GET /api/v1/purchases
func (h *PurchaseHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	purchases, err := h.purchases.ListByUser(ctx, getUserID(ctx), limit)
	if err != nil {
		h.log.ErrorContext(ctx, "list purchases failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "purchases_unavailable", "could not load purchases")
		return
	}
	if purchases == nil {
		purchases = []*domain.Purchase{}
	}
	respondJSON(w, http.StatusOK, purchases)
}

// GET /api/v1/admin/purchases
// Most recent purchases across all users, for the dashboard's sales view.
func (h *PurchaseHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	purchases, err := h.purchases.ListRecent(ctx, limit)
	if err != nil {
		h.log.ErrorContext(ctx, "list recent purchases failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "purchases_unavailable", "could not load purchases")
		return
	}
	if purchases == nil {
		purchases = []*domain.Purchase{}
	}
	respondJSON(w, http.StatusOK, purchases)
}

// GET /api/v1/purchases/eligibility?product_id=
// Anonymous callers are never eligible.
func (h *PurchaseHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	userID := getUserID(ctx)
	if userID == "" {
		respondJSON(w, http.StatusOK, EligibilityResponseDTO{})
		return
	}

	ok, err := h.purchases.HasPurchased(ctx, userID, productID)
	if err != nil {
		h.log.ErrorContext(ctx, "eligibility check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "purchases_unavailable", "could not check purchases")
		return
	}
	respondJSON(w, http.StatusOK, EligibilityResponseDTO{HasPurchased: ok})
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultPurchaseLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 200 {
		respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 200")
		return 0, false
	}
	return n, true
}
