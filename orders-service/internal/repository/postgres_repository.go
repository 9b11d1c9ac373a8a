package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Jaabir-Mahmud/folioxe/orders-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const saleColumns = `id, purchase_id, user_id, amount, currency, items, recorded_at, created_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "sales_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// RecordSale inserts the sale; a second sale for the same purchase id yields ErrDuplicatePurchase.
func (r *Repository) RecordSale(ctx context.Context, sale *domain.Sale) error {
	itemsJSON, err := json.Marshal(sale.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal sale items: %w", err)
	}

	query := `INSERT INTO sales (id, purchase_id, user_id, amount, currency, items, recorded_at, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	_, insertErr := r.db.ExecContext(ctx, query,
		sale.ID,
		sale.PurchaseID,
		sale.UserID,
		sale.Amount,
		sale.Currency,
		itemsJSON,
		sale.RecordedAt)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicatePurchase
		}
		return fmt.Errorf("insert sale: %w", insertErr)
	}
	return nil
}

func (r *Repository) GetSale(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`

	sale, err := scanSale(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query sale by id: %w", err)
	}
	return sale, nil
}

func (r *Repository) ListSalesByUser(ctx context.Context, userID string) ([]*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE user_id = $1 ORDER BY recorded_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query sales by user id: %w", err)
	}
	defer rows.Close()

	var sales []*domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale row: %w", err)
		}
		sales = append(sales, sale)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return sales, nil
}

func (r *Repository) Revenue(ctx context.Context) (domain.Revenue, error) {
	var rev domain.Revenue
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM sales`).
		Scan(&rev.Total, &rev.Purchases)
	if err != nil {
		return domain.Revenue{}, fmt.Errorf("query revenue: %w", err)
	}
	return rev, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var itemsJSON []byte
	if err := row.Scan(
		&sale.ID,
		&sale.PurchaseID,
		&sale.UserID,
		&sale.Amount,
		&sale.Currency,
		&itemsJSON,
		&sale.RecordedAt,
		&sale.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &sale.Items); err != nil {
		return nil, fmt.Errorf("unmarshal sale items: %w", err)
	}
	return &sale, nil
}
