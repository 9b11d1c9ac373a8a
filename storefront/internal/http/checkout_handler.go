package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/cart"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/checkout"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
)

type CheckoutHandler struct {
	carts     *cart.Registry
	checkouts *checkout.Registry
	timeout   time.Duration
	log       *slog.Logger
}

func NewCheckoutHandler(carts *cart.Registry, checkouts *checkout.Registry, timeout time.Duration, log *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{carts: carts, checkouts: checkouts, timeout: timeout, log: log}
}

type CheckoutResponseDTO struct {
	RedirectURL string `json:"redirect_url"`
	SessionID   string `json:"session_id,omitempty"`
	State       string `json:"state"`
}

type CheckoutStateDTO struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

type FulfillResponseDTO struct {
	PurchaseID      string                `json:"purchase_id,omitempty"`
	Links           []domain.DownloadLink `json:"links"`
	Undelivered     []string              `json:"undelivered,omitempty"`
	AlreadyRecorded bool                  `json:"already_recorded,omitempty"`
	Error           string                `json:"error,omitempty"`
}

// GET /api/v1/checkout
func (h *CheckoutHandler) GetState(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(r.Context(), w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, CheckoutStateDTO{
		State:     o.State().String(),
		SessionID: o.SessionID(),
		LastError: o.LastError(),
	})
}

// POST /api/v1/checkout
func (h *CheckoutHandler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	o, ok := h.orchestrator(ctx, w)
	if !ok {
		return
	}

	url, err := o.BeginCheckout(ctx, getUserID(ctx))
	if err != nil {
		var pe *domain.ProviderError
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
		case errors.Is(err, checkout.ErrCheckoutInProgress), errors.Is(err, checkout.ErrFulfillmentInProgress):
			respondError(w, http.StatusConflict, "checkout_in_progress", err.Error())
		case errors.As(err, &pe):
			respondError(w, http.StatusBadGateway, "payment_provider_error", pe.Message)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			respondError(w, http.StatusGatewayTimeout, "timeout", "checkout request timed out")
		default:
			h.log.ErrorContext(ctx, "checkout failed", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
		return
	}

	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		RedirectURL: url,
		SessionID:   o.SessionID(),
		State:       o.State().String(),
	})
}

// POST /api/v1/checkout/return?session_id=
func (h *CheckoutHandler) Return(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	o, ok := h.orchestrator(ctx, w)
	if !ok {
		return
	}

	res, err := o.Fulfill(ctx, checkout.FulfillRequest{
		UserID:    getUserID(ctx),
		SessionID: r.URL.Query().Get("session_id"),
	})

	if res != nil {
		// Attempt is over; the next visit starts from a fresh orchestrator.
		h.checkouts.Forget(getSessionID(ctx))
	}

	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, fulfillResponse(res))
	case errors.Is(err, checkout.ErrAlreadyFulfilled):
		body := fulfillResponse(res)
		body.AlreadyRecorded = true
		respondJSON(w, http.StatusOK, body)
	case errors.Is(err, checkout.ErrRecordPurchase):
		body := fulfillResponse(res)
		body.Error = "your files are ready but the purchase could not be recorded"
		respondJSON(w, http.StatusMultiStatus, body)
	case errors.Is(err, checkout.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, checkout.ErrNothingToDownload):
		respondError(w, http.StatusNotFound, "nothing_to_download", "no downloads were available for the items in your cart")
	case errors.Is(err, checkout.ErrSessionNotOwned):
		respondError(w, http.StatusForbidden, "session_not_owned", err.Error())
	case errors.Is(err, checkout.ErrPaymentNotConfirmed):
		respondError(w, http.StatusPaymentRequired, "payment_not_confirmed", err.Error())
	case errors.Is(err, checkout.ErrCheckoutInProgress), errors.Is(err, checkout.ErrFulfillmentInProgress):
		respondError(w, http.StatusConflict, "checkout_in_progress", err.Error())
	case errors.Is(err, checkout.ErrCancelled):
		respondError(w, http.StatusGatewayTimeout, "cancelled", err.Error())
	default:
		h.log.ErrorContext(ctx, "fulfillment failed", "error", err)
		respondError(w, http.StatusBadGateway, "fulfillment_failed", "could not complete fulfillment")
	}
}

func fulfillResponse(res *checkout.FulfillResult) FulfillResponseDTO {
	links := res.Links
	if links == nil {
		links = []domain.DownloadLink{}
	}
	return FulfillResponseDTO{PurchaseID: res.PurchaseID, Links: links, Undelivered: res.Undelivered}
}

func (h *CheckoutHandler) orchestrator(ctx context.Context, w http.ResponseWriter) (*checkout.Orchestrator, bool) {
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
	return h.checkouts.Get(sessionID, m), true
}
