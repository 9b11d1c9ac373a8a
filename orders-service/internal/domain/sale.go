package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SaleItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Sale is the ledger copy of a recorded storefront purchase.
type Sale struct {
	ID         uuid.UUID
	PurchaseID string
	UserID     string
	Amount     decimal.Decimal
	Currency   string
	Items      []SaleItem
	RecordedAt time.Time
	CreatedAt  time.Time
}

type Revenue struct {
	Total     decimal.Decimal
	Purchases int64
}

// AverageOrder is zero when nothing has been sold.
func (r Revenue) AverageOrder() decimal.Decimal {
	if r.Purchases == 0 {
		return decimal.Zero
	}
	return r.Total.Div(decimal.NewFromInt(r.Purchases)).Round(2)
}
