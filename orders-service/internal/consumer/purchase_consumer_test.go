package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/orders-service/internal/domain"
	"github.com/Jaabir-Mahmud/folioxe/orders-service/internal/repository"
	"github.com/Jaabir-Mahmud/folioxe/pkg/events"
	"github.com/Jaabir-Mahmud/folioxe/pkg/logger"
	"github.com/google/uuid"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type mockRepo struct {
	mu    sync.RWMutex
	sales map[string]*domain.Sale
	err   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{sales: make(map[string]*domain.Sale)}
}

func (m *mockRepo) RecordSale(_ context.Context, sale *domain.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.sales[sale.PurchaseID]; ok {
		return repository.ErrDuplicatePurchase
	}
	m.sales[sale.PurchaseID] = sale
	return nil
}

func (m *mockRepo) GetSale(context.Context, uuid.UUID) (*domain.Sale, error) {
	return nil, repository.ErrSaleNotFound
}

func (m *mockRepo) ListSalesByUser(context.Context, string) ([]*domain.Sale, error) {
	return nil, nil
}

func (m *mockRepo) Revenue(context.Context) (domain.Revenue, error) {
	return domain.Revenue{}, nil
}

func (m *mockRepo) RunMigrations(*repository.Credentials) error { return nil }
func (m *mockRepo) Close() error { return nil }

func (m *mockRepo) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sales)
}

func newTestEvent(purchaseID, userID string) events.PurchaseRecorded {
	return events.PurchaseRecorded{
		PurchaseID: purchaseID,
		UserID:     userID,
		SessionID:  "cs_test",
		Amount:     decimal.RequireFromString("24.99"),
		Currency:   "usd",
		RecordedAt: time.Now().UTC(),
		Items: []events.PurchaseItem{
			{ProductID: "p-1", ProductName: "Icon Pack", UnitPrice: decimal.RequireFromString("19.99"), Quantity: 1},
			{ProductID: "p-2", ProductName: "Font", UnitPrice: decimal.RequireFromString("5.00"), Quantity: 1},
		},
	}
}

func toMessage(t *testing.T, event events.PurchaseRecorded, eventType string) kafkaGo.Message {
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return kafkaGo.Message{
		Key:     []byte(event.PurchaseID),
		Value:   payload,
		Headers: []kafkaGo.Header{{Key: events.EventTypeHeader, Value: []byte(eventType)}},
	}
}

func TestHandle_RecordsSale(t *testing.T) {
	repo := newMockRepo()
	c := &Consumer{repo: repo, log: logger.Nop()}

	err := c.handle(context.Background(), toMessage(t, newTestEvent("purchase-1", "user-1"), events.PurchaseRecordedType))
	require.NoError(t, err)

	sale := repo.sales["purchase-1"]
	require.NotNil(t, sale)
	assert.Equal(t, "user-1", sale.UserID)
	assert.Equal(t, "24.99", sale.Amount.StringFixed(2))
	assert.Equal(t, "usd", sale.Currency)
	assert.Len(t, sale.Items, 2)
	assert.NotEqual(t, uuid.Nil, sale.ID)
}

func TestHandle_DuplicateIsSkipped(t *testing.T) {
	repo := newMockRepo()
	c := &Consumer{repo: repo, log: logger.Nop()}
	msg := toMessage(t, newTestEvent("purchase-1", "user-1"), events.PurchaseRecordedType)

	require.NoError(t, c.handle(context.Background(), msg))
	assert.ErrorIs(t, c.handle(context.Background(), msg), errSkipped)
	assert.Equal(t, 1, repo.count())
}

func TestHandle_SkipsForeignAndMalformed(t *testing.T) {
	repo := newMockRepo()
	c := &Consumer{repo: repo, log: logger.Nop()}

	assert.ErrorIs(t, c.handle(context.Background(), toMessage(t, newTestEvent("p", "u"), "purchase.refunded")), errSkipped)
	assert.ErrorIs(t, c.handle(context.Background(), kafkaGo.Message{Value: []byte("{not json")}), errSkipped)
	assert.ErrorIs(t, c.handle(context.Background(), toMessage(t, newTestEvent("", "u"), events.PurchaseRecordedType)), errSkipped)
	assert.Equal(t, 0, repo.count())
}

func TestHandle_RepositoryError(t *testing.T) {
	repo := newMockRepo()
	repo.err = errors.New("connection reset")
	c := &Consumer{repo: repo, log: logger.Nop()}

	err := c.handle(context.Background(), toMessage(t, newTestEvent("purchase-1", "user-1"), events.PurchaseRecordedType))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errSkipped)
}

func TestToSale_DefaultsCurrencyAndTime(t *testing.T) {
	event := newTestEvent("p", "u")
	event.Currency = ""
	event.RecordedAt = time.Time{}

	sale := toSale(event)
	assert.Equal(t, "usd", sale.Currency)
	assert.False(t, sale.RecordedAt.IsZero())
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func setupPostgres(t *testing.T) (repository.SaleRepository, func()) {
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

	creds := &repository.Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "../repository/migrations",
	}

	repo, err := repository.NewRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %s", err)
		}
	}

	return repo, cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func writeEvent(t *testing.T, brokerAddr string, event events.PurchaseRecorded) {
	w := &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(brokerAddr),
		Topic:                  events.PurchaseTopic,
		Balancer:               &kafkaGo.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	require.NoError(t, w.WriteMessages(context.Background(), toMessage(t, event, events.PurchaseRecordedType)))
}

func TestRun_RecordsSaleOnceDespiteRedelivery(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	brokerAddr, cleanupKafka := setupKafka(t)
	defer cleanupKafka()

	repo, cleanupPostgres := setupPostgres(t)
	defer cleanupPostgres()

	createTopic(t, brokerAddr, events.PurchaseTopic)

	event := newTestEvent(uuid.NewString(), "user-idem-test")
	writeEvent(t, brokerAddr, event)
	writeEvent(t, brokerAddr, event)

	c := NewConsumer(repo, logger.Nop(), brokerAddr)
	defer c.Close()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		sales, err := repo.ListSalesByUser(ctx, "user-idem-test")
		return err == nil && len(sales) > 0
	}, 15*time.Second, 500*time.Millisecond)

	// Give consumer time to process duplicate
	time.Sleep(2 * time.Second)

	sales, err := repo.ListSalesByUser(ctx, "user-idem-test")
	require.NoError(t, err)
	require.Len(t, sales, 1, "should only have one sale despite duplicate messages")
	assert.Equal(t, event.PurchaseID, sales[0].PurchaseID)
}
