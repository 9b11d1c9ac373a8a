package repository

import (
	"context"
	"errors"

	"github.com/Jaabir-Mahmud/folioxe/orders-service/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrSaleNotFound      = errors.New("sale not found")
	ErrDuplicatePurchase = errors.New("sale for this purchase already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type SaleRepository interface {
	RecordSale(ctx context.Context, sale *domain.Sale) error
	GetSale(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
	ListSalesByUser(ctx context.Context, userID string) ([]*domain.Sale, error)
	Revenue(ctx context.Context) (domain.Revenue, error)
	RunMigrations(*Credentials) error
	Close() error
}
