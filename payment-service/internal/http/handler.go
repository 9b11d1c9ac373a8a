package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/payment-service/internal/provider"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const idempotencyHeader = "Idempotency-Key"

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateSessionItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
}

type CreateSessionRequest struct {
	Items           []CreateSessionItem `json:"items"`
	ClientReference string              `json:"client_reference_id,omitempty"`
}

type CreateSessionResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

type PaidItemDTO struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type SessionStatusResponse struct {
	ID              string          `json:"id"`
	Paid            bool            `json:"paid"`
	Status          string          `json:"status"`
	ClientReference string          `json:"client_reference_id,omitempty"`
	AmountTotal     decimal.Decimal `json:"amount_total"`
	Currency        string          `json:"currency"`
	Items           []PaidItemDTO   `json:"items"`
}

type Handler struct {
	provider provider.Provider
	timeout  time.Duration
	log      *slog.Logger
}

func NewHandler(p provider.Provider, timeout time.Duration, log *slog.Logger) *Handler {
	return &Handler{provider: p, timeout: timeout, log: log}
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/create-checkout-session", h.CreateSession)
	r.Get("/api/checkout-sessions/{id}", h.GetSession)

	return otelhttp.NewHandler(r, "payment-service")
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	items := make([]provider.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, provider.LineItem{ProductID: it.ProductID, Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	if err := provider.Validate(items); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, err := h.provider.CreateSession(ctx, provider.SessionRequest{Items: items, ClientReference: req.ClientReference},
		r.Header.Get(idempotencyHeader))
	if err != nil {
		h.respondProviderError(w, "create session", err)
		return
	}

	h.log.InfoContext(ctx, "checkout session created", "session_id", session.ID, "items", len(items))
	respondJSON(w, http.StatusCreated, CreateSessionResponse{URL: session.URL, SessionID: session.ID})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, err := h.provider.GetSession(ctx, id)
	if err != nil {
		h.respondProviderError(w, "get session", err)
		return
	}
	resp := SessionStatusResponse{
		ID:              session.ID,
		Paid:            session.Paid,
		Status:          session.Status,
		ClientReference: session.ClientReference,
		AmountTotal:     session.AmountTotal,
		Currency:        session.Currency,
		Items:           make([]PaidItemDTO, 0, len(session.Items)),
	}
	for _, it := range session.Items {
		resp.Items = append(resp.Items, PaidItemDTO(it))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) respondProviderError(w http.ResponseWriter, op string, err error) {
	var pe *provider.Error
	switch {
	case errors.Is(err, provider.ErrSessionNotFound):
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "checkout session not found"})
	case errors.Is(err, provider.ErrInvalidItem):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		respondJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: "payment provider timed out"})
	case errors.As(err, &pe):
		h.log.Warn("provider rejected request", "op", op, "status", pe.Status, "error", pe.Err)
		status := http.StatusBadGateway
		if pe.Status >= 400 && pe.Status < 500 {
			status = http.StatusUnprocessableEntity
		}
		respondJSON(w, status, ErrorResponse{Error: pe.Message})
	default:
		h.log.Error("provider call failed", "op", op, "error", err)
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
