package checkout

import (
	"context"
	"errors"
	"sync"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/repository"
)

type mockProvider struct {
	m        sync.RWMutex
	requests []domain.SessionRequest
	keys     []string
	session  *domain.Session
	err      error
	block    chan struct{}
}

func (p *mockProvider) CreateSession(ctx context.Context, req domain.SessionRequest, key string) (*domain.Session, error) {
	p.m.Lock()
	p.requests = append(p.requests, req)
	p.keys = append(p.keys, key)
	block := p.block
	p.m.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.m.RLock()
	defer p.m.RUnlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

func (p *mockProvider) setResult(s *domain.Session, err error) {
	p.m.Lock()
	defer p.m.Unlock()
	p.session, p.err = s, err
}

type mockVerifier struct {
	m        sync.RWMutex
	sessions map[string]*domain.SessionStatus
	err      error
	calls    int
}

func (v *mockVerifier) VerifySession(_ context.Context, id string) (*domain.SessionStatus, error) {
	v.m.Lock()
	defer v.m.Unlock()
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	if st, ok := v.sessions[id]; ok {
		return st, nil
	}
	return &domain.SessionStatus{ID: id}, nil
}

// pay marks id as paid for exactly lines, at their current quantities and prices.
func (v *mockVerifier) pay(id, clientRef string, lines []domain.CartLine) *domain.SessionStatus {
	st := &domain.SessionStatus{ID: id, Paid: true, ClientReference: clientRef, Currency: "usd"}
	for _, l := range lines {
		st.Items = append(st.Items, domain.PaidItem{ProductID: l.Product.ID, Quantity: l.Quantity, UnitPrice: l.Product.UnitPrice})
		st.Amount = st.Amount.Add(l.LineTotal())
	}
	v.m.Lock()
	defer v.m.Unlock()
	if v.sessions == nil {
		v.sessions = make(map[string]*domain.SessionStatus)
	}
	v.sessions[id] = st
	return st
}

type mockResolver struct {
	m     sync.RWMutex
	urls  map[string]string
	calls []string
	block chan struct{}
}

func (r *mockResolver) DownloadURL(ctx context.Context, fileID string) (string, error) {
	r.m.Lock()
	r.calls = append(r.calls, fileID)
	block := r.block
	r.m.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	r.m.RLock()
	defer r.m.RUnlock()
	u, ok := r.urls[fileID]
	if !ok {
		return "", errors.New("object not found")
	}
	return u, nil
}

type mockRecorder struct {
	m         sync.RWMutex
	purchases map[string]*domain.Purchase
	err       error
	getErr    error
	// preempt is stored on the next Record, which then reports a duplicate, as if a
	// concurrent visit had written first.
	preempt *domain.Purchase
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{purchases: make(map[string]*domain.Purchase)}
}

func (r *mockRecorder) Record(_ context.Context, p *domain.Purchase) (string, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.err != nil {
		return "", r.err
	}
	if r.preempt != nil {
		r.purchases[r.preempt.ID] = r.preempt
		r.preempt = nil
		return "", repository.ErrDuplicatePurchase
	}
	id := p.ID
	if id == "" {
		id = "generated"
	}
	if _, ok := r.purchases[id]; ok {
		return "", repository.ErrDuplicatePurchase
	}
	cp := *p
	cp.ID = id
	r.purchases[id] = &cp
	return id, nil
}

func (r *mockRecorder) Get(_ context.Context, id string) (*domain.Purchase, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	p, ok := r.purchases[id]
	if !ok {
		return nil, repository.ErrPurchaseNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *mockRecorder) count() int {
	r.m.RLock()
	defer r.m.RUnlock()
	return len(r.purchases)
}

// orderLog records the order in which the sweep and the record write happen.
type orderLog struct {
	m     sync.Mutex
	steps []string
}

func (l *orderLog) add(s string) {
	l.m.Lock()
	defer l.m.Unlock()
	l.steps = append(l.steps, s)
}

type loggingCart struct {
	Cart
	log *orderLog
}

func (c loggingCart) Deduct(ctx context.Context, delivered map[string]int) error {
	c.log.add("sweep")
	return c.Cart.Deduct(ctx, delivered)
}

type loggingRecorder struct {
	PurchaseRecorder
	log *orderLog
}

func (r loggingRecorder) Record(ctx context.Context, p *domain.Purchase) (string, error) {
	r.log.add("record")
	return r.PurchaseRecorder.Record(ctx, p)
}
