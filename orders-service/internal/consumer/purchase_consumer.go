package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/orders-service/internal/domain"
	"github.com/Jaabir-Mahmud/folioxe/orders-service/internal/repository"
	"github.com/Jaabir-Mahmud/folioxe/pkg/events"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const GroupID = "orders-service"

var errSkipped = errors.New("message skipped")

type Consumer struct {
	repo   repository.SaleRepository
	reader *kafka.Reader
	log    *slog.Logger
}

func NewConsumer(repo repository.SaleRepository, log *slog.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    events.PurchaseTopic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{repo: repo, reader: reader, log: log}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Error("error closing kafka reader", "error", err)
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.log.Error("error reading message", "error", err)
		return
	}
	if err := c.handle(ctx, m); err != nil && !errors.Is(err, errSkipped) {
		c.log.Error("failed to record sale", "offset", m.Offset, "error", err)
	}
}

// handle stores one purchase event. Unknown event types and redelivered purchases are skipped.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	if t := eventType(m); t != "" && t != events.PurchaseRecordedType {
		return errSkipped
	}

	var event events.PurchaseRecorded
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.log.Warn("error parsing message", "offset", m.Offset, "error", err)
		return errSkipped
	}
	if event.PurchaseID == "" || event.UserID == "" {
		c.log.Warn("purchase event missing ids", "offset", m.Offset)
		return errSkipped
	}

	sale := toSale(event)
	if err := c.repo.RecordSale(ctx, sale); err != nil {
		if errors.Is(err, repository.ErrDuplicatePurchase) {
			c.log.Info("sale already recorded, skipping", "purchase_id", event.PurchaseID)
			return errSkipped
		}
		return fmt.Errorf("record sale for purchase %s: %w", event.PurchaseID, err)
	}

	c.log.Info("sale recorded", "sale_id", sale.ID, "purchase_id", sale.PurchaseID, "amount", sale.Amount.StringFixed(2))
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == events.EventTypeHeader {
			return string(h.Value)
		}
	}
	return ""
}

func toSale(event events.PurchaseRecorded) *domain.Sale {
	currency := strings.ToLower(event.Currency)
	if currency == "" {
		currency = "usd"
	}

	items := make([]domain.SaleItem, len(event.Items))
	for i, item := range event.Items {
		items[i] = domain.SaleItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
	}

	recordedAt := event.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	return &domain.Sale{
		ID:         uuid.New(),
		PurchaseID: event.PurchaseID,
		UserID:     event.UserID,
		Amount:     event.Amount,
		Currency:   currency,
		Items:      items,
		RecordedAt: recordedAt,
	}
}
