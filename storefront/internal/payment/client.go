// Package payment talks to the payment-service shim that fronts the hosted payments
// provider.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/pkg/circuitbreaker"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const IdempotencyHeader = "Idempotency-Key"

// Prices cross the wire as decimal strings and are converted to minor units only by
// the payment service.
type sessionItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type createSessionRequest struct {
	Items           []sessionItem `json:"items"`
	ClientReference string        `json:"client_reference_id,omitempty"`
}

type createSessionResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

type paidItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type sessionStatusResponse struct {
	ID              string          `json:"id"`
	Paid            bool            `json:"paid"`
	Status          string          `json:"status"`
	ClientReference string          `json:"client_reference_id"`
	AmountTotal     decimal.Decimal `json:"amount_total"`
	Currency        string          `json:"currency"`
	Items           []paidItem      `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Client struct {
	baseURL  string
	http     *http.Client
	creates  *circuitbreaker.Breaker[*domain.Session]
	verifies *circuitbreaker.Breaker[*domain.SessionStatus]
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
}

func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	createCfg := circuitbreaker.DefaultConfig("payment-create-session")
	createCfg.IsSuccessful = countsAsSuccess
	verifyCfg := circuitbreaker.DefaultConfig("payment-verify-session")
	verifyCfg.IsSuccessful = countsAsSuccess
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     hc,
		creates:  circuitbreaker.New[*domain.Session](createCfg),
		verifies: circuitbreaker.New[*domain.SessionStatus](verifyCfg),
	}
}

// countsAsSuccess keeps provider-side rejections of a request from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var pe *domain.ProviderError
	return errors.As(err, &pe) && pe.Status > 0 && pe.Status < 500
}

func (c *Client) CreateSession(ctx context.Context, req domain.SessionRequest, idempotencyKey string) (*domain.Session, error) {
	body := createSessionRequest{
		Items:           make([]sessionItem, 0, len(req.Items)),
		ClientReference: req.ClientReference,
	}
	for _, it := range req.Items {
		body.Items = append(body.Items, sessionItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	session, err := c.creates.Execute(func() (*domain.Session, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/create-checkout-session", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if idempotencyKey != "" {
			httpReq.Header.Set(IdempotencyHeader, idempotencyKey)
		}

		var out createSessionResponse
		if err := c.do(httpReq, &out); err != nil {
			return nil, err
		}
		return &domain.Session{ID: out.SessionID, URL: out.URL}, nil
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, &domain.ProviderError{Message: "payment service temporarily unavailable", Err: err}
	}
	return session, err
}

// VerifySession reports whether the session was paid and which lines it covered.
func (c *Client) VerifySession(ctx context.Context, sessionID string) (*domain.SessionStatus, error) {
	status, err := c.verifies.Execute(func() (*domain.SessionStatus, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/api/checkout-sessions/"+url.PathEscape(sessionID), nil)
		if err != nil {
			return nil, err
		}
		var out sessionStatusResponse
		if err := c.do(httpReq, &out); err != nil {
			return nil, err
		}
		st := &domain.SessionStatus{
			ID:              out.ID,
			Paid:            out.Paid,
			ClientReference: out.ClientReference,
			Amount:          out.AmountTotal,
			Currency:        out.Currency,
			Items:           make([]domain.PaidItem, 0, len(out.Items)),
		}
		for _, it := range out.Items {
			st.Items = append(st.Items, domain.PaidItem(it))
		}
		return st, nil
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, &domain.ProviderError{Message: "payment service temporarily unavailable", Err: err}
	}
	return status, err
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("payment service request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read payment service response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		_ = json.Unmarshal(data, &er)
		msg := er.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &domain.ProviderError{Message: msg, Status: resp.StatusCode}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payment service response: %w", err)
	}
	return nil
}
