// Package provider creates and inspects hosted checkout sessions.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const Currency = "usd"

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrInvalidItem     = errors.New("invalid line item")
)

// ProductMetadataKey tags each hosted line item with the storefront product it sells.
const ProductMetadataKey = "product_id"

type LineItem struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int64
}

// SessionRequest is a checkout for Items on behalf of ClientReference, the buyer's
// user id when known.
type SessionRequest struct {
	Items           []LineItem
	ClientReference string
}

// PaidItem is a line as the provider charged it.
type PaidItem struct {
	ProductID string
	Quantity  int64
	UnitPrice decimal.Decimal
}

type Session struct {
	ID              string
	URL             string
	Paid            bool
	Status          string
	ClientReference string
	AmountTotal     decimal.Decimal
	Currency        string
	Items           []PaidItem
}

// Error is a failure reported by the payments provider. Message is safe to show to a buyer.
type Error struct {
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest, idempotencyKey string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}

// ToCents converts a unit price to integer cents, rounding half up.
func ToCents(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func Validate(items []LineItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: items must not be empty", ErrInvalidItem)
	}
	for _, it := range items {
		switch {
		case it.Name == "":
			return fmt.Errorf("%w: item name is required", ErrInvalidItem)
		case it.UnitPrice.IsNegative():
			return fmt.Errorf("%w: unit_price must not be negative", ErrInvalidItem)
		case it.Quantity < 1:
			return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidItem)
		}
	}
	return nil
}
