package domain

import "github.com/shopspring/decimal"

// SessionItem is one line of a payment session request. Currency is fixed by the
// provider side.
type SessionItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// SessionRequest carries the buyer as ClientReference so the paid session can be tied
// back to the user who started it.
type SessionRequest struct {
	Items           []SessionItem `json:"items"`
	ClientReference string        `json:"client_reference_id,omitempty"`
}

// Session is the provider's answer: where to send the browser, and the id to verify
// the payment by when it comes back.
type Session struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// PaidItem is one line the provider actually charged for.
type PaidItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SessionStatus is what the provider reports for a checkout session on the return
// visit. Items is authoritative: only these lines were paid for.
type SessionStatus struct {
	ID              string          `json:"id"`
	Paid            bool            `json:"paid"`
	ClientReference string          `json:"client_reference_id,omitempty"`
	Amount          decimal.Decimal `json:"amount_total"`
	Currency        string          `json:"currency"`
	Items           []PaidItem      `json:"items"`
}

// ProviderError carries the payment provider's human-readable message. Status is the
// HTTP status the provider answered with, zero when the call never got an answer.
type ProviderError struct {
	Message string
	Status  int
	Err     error
}

func (e *ProviderError) Error() string {
	return "payment provider: " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
