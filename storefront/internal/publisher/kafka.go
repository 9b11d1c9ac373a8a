package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/pkg/events"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	now     func() time.Time
}

func NewKafkaPublisher(brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  events.PurchaseTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w, timeout: 5 * time.Second, now: time.Now}
}

func (p *KafkaPublisher) PurchaseRecorded(ctx context.Context, purchase *domain.Purchase) error {
	ev := events.PurchaseRecorded{
		PurchaseID: purchase.ID,
		UserID:     purchase.UserID,
		SessionID:  purchase.SessionID,
		Items:      make([]events.PurchaseItem, 0, len(purchase.Items)),
		Amount:     purchase.Amount,
		Currency:   purchase.Currency,
		RecordedAt: purchase.CreatedAt,
	}
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = p.now().UTC()
	}
	for _, it := range purchase.Items {
		ev.Items = append(ev.Items, events.PurchaseItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		})
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal purchase event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(purchase.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: events.EventTypeHeader, Value: []byte(events.PurchaseRecordedType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish purchase event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
