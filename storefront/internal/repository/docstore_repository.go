package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/docstore"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Repository keeps purchases in the document store. Field names follow the
// collection the admin dashboard and review eligibility read.
type Repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

func (r *Repository) Record(ctx context.Context, p *domain.Purchase) (string, error) {
	items := make([]any, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, map[string]any{
			"id":        it.ProductID,
			"name":      it.ProductName,
			"unitPrice": it.UnitPrice.InexactFloat64(),
			"quantity":  int64(it.Quantity),
			"fileId":    it.FileID,
		})
	}
	fields := map[string]any{
		"userId":    p.UserID,
		"sessionId": p.SessionID,
		"items":     items,
		"amount":    p.Amount.InexactFloat64(),
		"currency":  p.Currency,
		"createdAt": docstore.ServerTimestamp,
		"published": false,
	}

	id, err := r.store.Create(ctx, PurchasesCollection, p.ID, fields)
	if err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return "", ErrDuplicatePurchase
		}
		return "", fmt.Errorf("failed to record purchase: %w", err)
	}
	return id, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Purchase, error) {
	doc, err := r.store.Get(ctx, PurchasesCollection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return docToPurchase(*doc), nil
}

// HasPurchased scans the user's purchases for productID. Items are embedded maps, so
// the match cannot be pushed into the query.
func (r *Repository) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	if userID == "" || productID == "" {
		return false, nil
	}
	docs, err := r.store.Query(ctx, PurchasesCollection, []docstore.Filter{docstore.Eq("userId", userID)}, nil, 0)
	if err != nil {
		return false, fmt.Errorf("failed to query purchases: %w", err)
	}
	for _, doc := range docs {
		for _, it := range docToPurchase(doc).Items {
			if it.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Purchase, error) {
	docs, err := r.store.Query(ctx, PurchasesCollection,
		[]docstore.Filter{docstore.Eq("userId", userID)},
		&docstore.OrderBy{Field: "createdAt", Desc: true}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return docsToPurchases(docs), nil
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]*domain.Purchase, error) {
	docs, err := r.store.Query(ctx, PurchasesCollection, nil, &docstore.OrderBy{Field: "createdAt", Desc: true}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return docsToPurchases(docs), nil
}

// ListUnpublished returns purchases whose purchase.recorded event has not been
// confirmed by the broker yet. The purchase document is its own outbox row.
func (r *Repository) ListUnpublished(ctx context.Context, limit int) ([]*domain.Purchase, error) {
	docs, err := r.store.Query(ctx, PurchasesCollection, []docstore.Filter{docstore.Eq("published", false)}, nil, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpublished purchases: %w", err)
	}
	return docsToPurchases(docs), nil
}

func (r *Repository) MarkPublished(ctx context.Context, id string) error {
	err := r.store.Update(ctx, PurchasesCollection, id, map[string]any{
		"published":   true,
		"publishedAt": docstore.ServerTimestamp,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrPurchaseNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to mark purchase published: %w", err)
	}
	return nil
}

func docsToPurchases(docs []docstore.Document) []*domain.Purchase {
	out := make([]*domain.Purchase, 0, len(docs))
	for _, doc := range docs {
		out = append(out, docToPurchase(doc))
	}
	return out
}

func docToPurchase(doc docstore.Document) *domain.Purchase {
	p := &domain.Purchase{
		ID:        doc.ID,
		UserID:    asString(doc.Data["userId"]),
		SessionID: asString(doc.Data["sessionId"]),
		Amount:    asDecimal(doc.Data["amount"]),
		Currency:  asString(doc.Data["currency"]),
	}
	if t, ok := doc.Data["createdAt"].(time.Time); ok {
		p.CreatedAt = t
	}

	raw, _ := doc.Data["items"].([]any)
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		qty := int(asInt(m["quantity"]))
		if qty < 1 {
			qty = 1
		}
		p.Items = append(p.Items, domain.PurchaseItem{
			ProductID:   asString(m["id"]),
			ProductName: asString(m["name"]),
			UnitPrice:   asDecimal(m["unitPrice"]),
			Quantity:    qty,
			FileID:      asString(m["fileId"]),
		})
	}
	return p
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

// asDecimal rounds to cents; amounts are stored as floats for the dashboard's sums.
func asDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n).Round(2)
	case int64:
		return decimal.NewFromInt(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case string:
		d, err := decimal.NewFromString(n)
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}
