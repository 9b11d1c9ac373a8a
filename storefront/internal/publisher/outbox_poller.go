package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/pkg/logger"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
)

const defaultOutboxBatch = 100

// OutboxStore is the slice of the purchase repository the poller drains.
type OutboxStore interface {
	ListUnpublished(ctx context.Context, limit int) ([]*domain.Purchase, error)
	MarkPublished(ctx context.Context, id string) error
}

type purchasePublisher interface {
	PurchaseRecorded(ctx context.Context, p *domain.Purchase) error
}

// OutboxPoller publishes purchase.recorded for every purchase still flagged
// unpublished and flips the flag once the broker accepted it. Delivery is at least
// once; consumers deduplicate on the purchase id.
type OutboxPoller struct {
	tick   time.Duration
	batch  int
	repo   OutboxStore
	events purchasePublisher
	log    *slog.Logger
}

func NewOutboxPoller(repo OutboxStore, events purchasePublisher, tick time.Duration, log *slog.Logger) *OutboxPoller {
	if tick <= 0 {
		tick = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OutboxPoller{tick: tick, batch: defaultOutboxBatch, repo: repo, events: events, log: log}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublished(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processUnpublished returns how many purchases were published and marked.
func (p *OutboxPoller) processUnpublished(ctx context.Context) int {
	pending, err := p.repo.ListUnpublished(ctx, p.batch)
	if err != nil {
		p.log.WarnContext(ctx, "failed to fetch unpublished purchases", "error", err)
		return 0
	}

	done := 0
	for _, purchase := range pending {
		if err := p.events.PurchaseRecorded(ctx, purchase); err != nil {
			p.log.WarnContext(ctx, "failed to publish purchase", "purchase_id", purchase.ID, "error", err)
			continue
		}
		if err := p.repo.MarkPublished(ctx, purchase.ID); err != nil {
			p.log.WarnContext(ctx, "failed to mark purchase published", "purchase_id", purchase.ID, "error", err)
			continue
		}
		done++
	}
	return done
}
