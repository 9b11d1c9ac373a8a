// Package cart owns the line-item list of one browsing session.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Jaabir-Mahmud/folioxe/pkg/logger"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/slot"
	"github.com/shopspring/decimal"
)

// Manager is the single source of truth for a session's cart. It is constructed once
// per session and handed to whoever needs the cart; nothing else mutates the lines.
type Manager struct {
	mu    sync.RWMutex
	cart  domain.Cart
	store slot.Store
	key   string
	log   *slog.Logger
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager reads the persisted slot once. A missing or unreadable slot yields an
// empty cart; only a backend failure is returned.
func NewManager(ctx context.Context, store slot.Store, key string, opts ...Option) (*Manager, error) {
	m := &Manager{store: store, key: key, log: logger.Nop()}
	for _, o := range opts {
		o(m)
	}

	data, err := store.Load(ctx, key)
	if err != nil && !errors.Is(err, slot.ErrNotFound) {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if err == nil {
		lines, decodeErr := decodeLines(data)
		if decodeErr != nil {
			m.log.WarnContext(ctx, "discarding unreadable cart slot", slog.String("key", key), slog.Any("error", decodeErr))
		} else {
			m.cart.Lines = lines
		}
	}
	return m, nil
}

// AddToCart merges into an existing line or appends a new one with quantity 1.
func (m *Manager) AddToCart(ctx context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.cart.IndexOf(p.ID); i >= 0 {
		m.cart.Lines[i].Quantity++
	} else {
		m.cart.Lines = append(m.cart.Lines, domain.CartLine{Product: p, Quantity: 1})
	}
	return m.persist(ctx)
}

func (m *Manager) RemoveFromCart(ctx context.Context, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.cart.IndexOf(productID)
	if i < 0 {
		return nil
	}
	m.cart.Lines = append(m.cart.Lines[:i:i], m.cart.Lines[i+1:]...)
	return m.persist(ctx)
}

// UpdateQuantity reports whether the change was applied. Quantities below 1 are
// ignored: removing a line has to go through RemoveFromCart.
func (m *Manager) UpdateQuantity(ctx context.Context, productID string, quantity int) (bool, error) {
	if quantity < 1 {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.cart.IndexOf(productID)
	if i < 0 {
		return false, nil
	}
	m.cart.Lines[i].Quantity = quantity
	return true, m.persist(ctx)
}

func (m *Manager) ClearCart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cart.Lines = nil
	return m.persist(ctx)
}

// Deduct subtracts delivered quantities per product id in one write. A line whose
// quantity reaches zero is dropped; units added after the delivery was computed stay.
func (m *Manager) Deduct(ctx context.Context, delivered map[string]int) error {
	if len(delivered) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	kept := make([]domain.CartLine, 0, len(m.cart.Lines))
	for _, l := range m.cart.Lines {
		n, ok := delivered[l.Product.ID]
		if !ok || n < 1 {
			kept = append(kept, l)
			continue
		}
		changed = true
		if l.Quantity > n {
			l.Quantity -= n
			kept = append(kept, l)
		}
	}
	if !changed {
		return nil
	}
	m.cart.Lines = kept
	return m.persist(ctx)
}

// Snapshot returns a copy of the cart; mutating it has no effect on the manager.
func (m *Manager) Snapshot() domain.Cart {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cart.Clone()
}

func (m *Manager) Lines() []domain.CartLine {
	return m.Snapshot().Lines
}

func (m *Manager) TotalItems() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cart.TotalItems()
}

func (m *Manager) UniqueItemCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cart.UniqueItemCount()
}

func (m *Manager) Subtotal() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cart.Subtotal()
}

// persist must be called with mu held.
func (m *Manager) persist(ctx context.Context) error {
	data, err := encodeLines(m.cart.Lines)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := m.store.Save(ctx, m.key, data); err != nil {
		m.log.ErrorContext(ctx, "cart slot write failed", slog.String("key", m.key), slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func encodeLines(lines []domain.CartLine) ([]byte, error) {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return json.Marshal(lines)
}

func decodeLines(data []byte) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, err
	}
	// a tampered slot must not break the one-line-per-product and quantity >= 1 rules
	merged := make([]domain.CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 || l.Product.ID == "" {
			continue
		}
		if i, ok := index[l.Product.ID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.Product.ID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}
