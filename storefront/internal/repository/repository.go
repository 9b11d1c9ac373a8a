package repository

import (
	"context"
	"errors"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
)

var (
	ErrDuplicatePurchase = errors.New("purchase for this checkout already exists")
	ErrPurchaseNotFound  = errors.New("purchase not found")
)

const PurchasesCollection = "purchases"

type PurchaseRepository interface {
	// Record stores p under p.ID, or under a generated id when p.ID is empty, and
	// returns the stored id.
	Record(ctx context.Context, p *domain.Purchase) (string, error)
	Get(ctx context.Context, id string) (*domain.Purchase, error)
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Purchase, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.Purchase, error)
	ListUnpublished(ctx context.Context, limit int) ([]*domain.Purchase, error)
	MarkPublished(ctx context.Context, id string) error
}
