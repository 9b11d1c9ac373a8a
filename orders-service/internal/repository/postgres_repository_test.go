package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/orders-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func newTestSale(purchaseID, userID, amount string, recordedAt time.Time) *domain.Sale {
	price := decimal.RequireFromString(amount)
	return &domain.Sale{
		ID:         uuid.New(),
		PurchaseID: purchaseID,
		UserID:     userID,
		Amount:     price,
		Currency:   "usd",
		Items: []domain.SaleItem{
			{ProductID: "p-1", ProductName: "Icon Pack", Quantity: 1, UnitPrice: price},
		},
		RecordedAt: recordedAt,
	}
}

func TestRecordSale_Success(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	sale := newTestSale("purchase-1", "user-123", "19.99", time.Now().UTC())

	require.NoError(t, repo.RecordSale(ctx, sale))

	fetched, err := repo.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.ID, fetched.ID)
	assert.Equal(t, sale.PurchaseID, fetched.PurchaseID)
	assert.Equal(t, sale.UserID, fetched.UserID)
	assert.True(t, sale.Amount.Equal(fetched.Amount))
	assert.Equal(t, "usd", fetched.Currency)
	require.Len(t, fetched.Items, 1)
	assert.Equal(t, "p-1", fetched.Items[0].ProductID)
	assert.True(t, fetched.Items[0].UnitPrice.Equal(sale.Amount))
}

func TestRecordSale_DuplicatePurchase(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.RecordSale(ctx, newTestSale("purchase-dup", "user-1", "5.00", time.Now())))

	err := repo.RecordSale(ctx, newTestSale("purchase-dup", "user-1", "5.00", time.Now()))
	assert.ErrorIs(t, err, ErrDuplicatePurchase)
}

func TestGetSale_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetSale(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestListSalesByUser(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user-list-test"
	now := time.Now().UTC()

	older := newTestSale("purchase-a", userID, "10.00", now.Add(-time.Hour))
	newer := newTestSale("purchase-b", userID, "20.00", now)
	other := newTestSale("purchase-c", "someone-else", "30.00", now)
	require.NoError(t, repo.RecordSale(ctx, older))
	require.NoError(t, repo.RecordSale(ctx, newer))
	require.NoError(t, repo.RecordSale(ctx, other))

	sales, err := repo.ListSalesByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sales, 2)

	// newest first
	assert.Equal(t, newer.ID, sales[0].ID)
	assert.Equal(t, older.ID, sales[1].ID)
}

func TestRevenue(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	empty, err := repo.Revenue(ctx)
	require.NoError(t, err)
	assert.True(t, empty.Total.IsZero())
	assert.Equal(t, int64(0), empty.Purchases)

	require.NoError(t, repo.RecordSale(ctx, newTestSale("purchase-1", "u1", "19.99", time.Now())))
	require.NoError(t, repo.RecordSale(ctx, newTestSale("purchase-2", "u2", "5.01", time.Now())))

	rev, err := repo.Revenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "25.00", rev.Total.StringFixed(2))
	assert.Equal(t, int64(2), rev.Purchases)
	assert.Equal(t, "12.50", rev.AverageOrder().StringFixed(2))
}
