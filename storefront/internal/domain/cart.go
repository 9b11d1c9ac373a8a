package domain

import "github.com/shopspring/decimal"

type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.Product.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the ordered line list of one browsing session. Totals are never stored,
// every getter recomputes from Lines.
type Cart struct {
	Lines []CartLine `json:"lines"`
}

func (c Cart) TotalItems() int {
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity
	}
	return total
}

func (c Cart) UniqueItemCount() int {
	return len(c.Lines)
}

func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.LineTotal())
	}
	return sum
}

func (c Cart) IndexOf(productID string) int {
	for i, l := range c.Lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

// Clone returns a deep enough copy that callers cannot reach the original line slice.
func (c Cart) Clone() Cart {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Lines: lines}
}
