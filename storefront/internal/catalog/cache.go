package catalog

import (
	"context"
	"errors"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
)

type ProductCache interface {
	Get(ctx context.Context, productID string) (*domain.Product, error)
	Set(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, productID string) error
}

var ErrCacheMiss = errors.New("cache miss")
