package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	FileID      string          `json:"-"`
}

// Purchase is written once per completed checkout and never mutated afterwards.
// SessionID is the payment provider's checkout session, empty when the provider did not
// hand one back.
type Purchase struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id,omitempty"`
	Items     []PurchaseItem  `json:"items"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
}

func (p Purchase) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range p.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// DownloadLink is a resolved deliverable for one fulfilled cart line.
type DownloadLink struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
}
