package domain

import "github.com/shopspring/decimal"

// Product is a purchasable asset as the cart sees it. MainFileID is empty until the
// product's deliverable has been uploaded and approved.
type Product struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Category   string          `json:"category,omitempty"`
	MainFileID string          `json:"main_file_id,omitempty"`
	Approved   bool            `json:"approved"`
}

func (p Product) HasFile() bool {
	return p.MainFileID != ""
}
