package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/cart"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/catalog"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

type ProductCatalog interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type CartHandler struct {
	carts   *cart.Registry
	catalog ProductCatalog
	timeout time.Duration
	log     *slog.Logger
}

func NewCartHandler(carts *cart.Registry, catalog ProductCatalog, timeout time.Duration, log *slog.Logger) *CartHandler {
	return &CartHandler{carts: carts, catalog: catalog, timeout: timeout, log: log}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartLineDTO struct {
	Product   domain.Product `json:"product"`
	Quantity  int            `json:"quantity"`
	LineTotal string         `json:"line_total"`
}

type CartResponseDTO struct {
	Lines       []CartLineDTO `json:"lines"`
	TotalItems  int           `json:"total_items"`
	UniqueItems int           `json:"unique_items"`
	Subtotal    string        `json:"subtotal"`
	Warning     string        `json:"warning,omitempty"`
}

func toCartResponse(c domain.Cart) CartResponseDTO {
	lines := make([]CartLineDTO, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, CartLineDTO{Product: l.Product, Quantity: l.Quantity, LineTotal: l.LineTotal().StringFixed(2)})
	}
	return CartResponseDTO{
		Lines:       lines,
		TotalItems:  c.TotalItems(),
		UniqueItems: c.UniqueItemCount(),
		Subtotal:    c.Subtotal().StringFixed(2),
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m, ok := h.manager(ctx, w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(m.Snapshot()))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	product, err := h.catalog.GetProduct(ctx, req.ProductID)
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "not_found", "product not found")
		return
	case errors.Is(err, catalog.ErrProductNotApproved):
		respondError(w, http.StatusUnprocessableEntity, "product_unavailable", "product is not available for sale")
		return
	case err != nil:
		h.log.ErrorContext(ctx, "product lookup failed", "product_id", req.ProductID, "error", err)
		respondError(w, http.StatusBadGateway, "catalog_unavailable", "could not load product")
		return
	}

	m, ok := h.manager(ctx, w)
	if !ok {
		return
	}
	err = m.AddToCart(ctx, *product)
	h.respondCart(ctx, w, http.StatusCreated, m, err)
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	m, ok := h.manager(ctx, w)
	if !ok {
		return
	}
	if m.Snapshot().IndexOf(productID) < 0 {
		respondError(w, http.StatusNotFound, "not_found", "product is not in the cart")
		return
	}

	// Quantities below one are ignored and the cart is returned unchanged.
	_, err := m.UpdateQuantity(ctx, productID, req.Quantity)
	h.respondCart(ctx, w, http.StatusOK, m, err)
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m, ok := h.manager(ctx, w)
	if !ok {
		return
	}
	err := m.RemoveFromCart(ctx, chi.URLParam(r, "product_id"))
	h.respondCart(ctx, w, http.StatusOK, m, err)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m, ok := h.manager(ctx, w)
	if !ok {
		return
	}
	err := m.ClearCart(ctx)
	h.respondCart(ctx, w, http.StatusOK, m, err)
}

func (h *CartHandler) manager(ctx context.Context, w http.ResponseWriter) (*cart.Manager, bool) {
	sessionID := getSessionID(ctx)
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "session id is required")
		return nil, false
	}
	m, err := h.carts.Get(ctx, sessionID)
	if err != nil {
		h.log.ErrorContext(ctx, "cart load failed", "session_id", sessionID, "error", err)
		respondError(w, http.StatusServiceUnavailable, "cart_unavailable", "could not load cart")
		return nil, false
	}
	return m, true
}

// respondCart reports the cart after a mutation. A save failure does not undo the
// change, so it is surfaced as a warning next to the current cart.
func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, status int, m *cart.Manager, err error) {
	resp := toCartResponse(m.Snapshot())
	if err != nil {
		h.log.WarnContext(ctx, "cart change not saved", "session_id", getSessionID(ctx), "error", err)
		resp.Warning = "cart changes could not be saved and may be lost when the session ends"
	}
	respondJSON(w, status, resp)
}
