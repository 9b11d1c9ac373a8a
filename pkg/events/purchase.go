// Package events holds the Kafka contract between the storefront and the orders ledger.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PurchaseTopic        = "purchase-events"
	PurchaseRecordedType = "purchase.recorded"
	EventTypeHeader      = "event_type"
)

type PurchaseItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

// PurchaseRecorded is published once a purchase document has been written. The
// message key is PurchaseID so redeliveries land on the same partition.
type PurchaseRecorded struct {
	PurchaseID string          `json:"purchase_id"`
	UserID     string          `json:"user_id"`
	SessionID  string          `json:"session_id,omitempty"`
	Items      []PurchaseItem  `json:"items"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	RecordedAt time.Time       `json:"recorded_at"`
}
