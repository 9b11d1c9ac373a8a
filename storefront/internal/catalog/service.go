// Package catalog looks up sellable products so the cart only ever holds
// store-sourced titles and prices.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/docstore"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const ProductsCollection = "products"

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrProductNotApproved = errors.New("product is not approved for sale")
)

type Service struct {
	store docstore.Store
	cache ProductCache
	sfg   singleflight.Group
}

// NewService accepts a nil cache.
func NewService(store docstore.Store, cache ProductCache) *Service {
	return &Service{store: store, cache: cache}
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, ErrProductNotFound
	}
	v, err, _ := s.sfg.Do(id, func() (interface{}, error) {
		if s.cache != nil {
			p, err := s.cache.Get(ctx, id)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, ErrCacheMiss) {
				log.Printf("product cache get error: %v", err)
			}
		}

		doc, err := s.store.Get(ctx, ProductsCollection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load product: %w", err)
		}
		p := docToProduct(*doc)

		if s.cache != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := s.cache.Set(ctx, p); err != nil {
					log.Printf("product cache set error: %v", err)
				}
			}()
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	p := *v.(*domain.Product)
	if !p.Approved {
		return nil, ErrProductNotApproved
	}
	return &p, nil
}

// Invalidate drops a cached product after it changes upstream.
func (s *Service) Invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		log.Printf("product cache invalidate error: %v", err)
	}
}

// Watch subscribes to the products collection and invalidates the cached copy of every
// product that changes or disappears. The first snapshot only sets the baseline. The
// returned func stops the subscription.
func (s *Service) Watch(ctx context.Context) (func(), error) {
	var (
		mu       sync.Mutex
		seen     map[string]time.Time
		baseline = true
	)
	return s.store.Subscribe(ctx, docstore.Target{Collection: ProductsCollection}, func(docs []docstore.Document) {
		mu.Lock()
		next := make(map[string]time.Time, len(docs))
		var stale []string
		for _, doc := range docs {
			next[doc.ID] = doc.UpdateTime
			if prev, ok := seen[doc.ID]; !baseline && (!ok || !prev.Equal(doc.UpdateTime)) {
				stale = append(stale, doc.ID)
			}
		}
		for id := range seen {
			if _, ok := next[id]; !ok {
				stale = append(stale, id)
			}
		}
		seen = next
		baseline = false
		mu.Unlock()

		for _, id := range stale {
			s.Invalidate(ctx, id)
		}
	})
}

func docToProduct(doc docstore.Document) *domain.Product {
	p := &domain.Product{ID: doc.ID}
	p.Title, _ = doc.Data["title"].(string)
	p.Category, _ = doc.Data["category"].(string)
	p.MainFileID, _ = doc.Data["mainFileId"].(string)
	p.Approved, _ = doc.Data["approved"].(bool)

	switch price := doc.Data["price"].(type) {
	case float64:
		p.UnitPrice = decimal.NewFromFloat(price).Round(2)
	case int64:
		p.UnitPrice = decimal.NewFromInt(price)
	case int:
		p.UnitPrice = decimal.NewFromInt(int64(price))
	case string:
		if d, err := decimal.NewFromString(price); err == nil {
			p.UnitPrice = d
		}
	}
	if p.UnitPrice.IsNegative() {
		p.UnitPrice = decimal.Zero
	}
	return p
}
