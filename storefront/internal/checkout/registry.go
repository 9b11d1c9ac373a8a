package checkout

import (
	"sync"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
)

// Registry keeps one Orchestrator per browsing session so the state of an attempt
// survives between the checkout request and the return visit. Entries follow the cart
// registry's lifetime: Forget is its eviction hook and runs after a fulfilment.
type Registry struct {
	mu   sync.Mutex
	byID map[string]*Orchestrator
	deps Dependencies
	cfg  Config
}

func NewRegistry(deps Dependencies, cfg Config) *Registry {
	return &Registry{byID: make(map[string]*Orchestrator), deps: deps, cfg: cfg}
}

// Get returns the session's orchestrator, creating it over cart on first use. An idle
// orchestrator bound to a different cart instance is rebuilt over the current one.
func (r *Registry) Get(sessionID string, cart Cart) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.byID[sessionID]; ok {
		if o.cart == cart || o.busy() {
			return o
		}
	}
	o := NewOrchestrator(cart, r.deps, r.cfg)
	r.byID[sessionID] = o
	return o
}

// Forget drops the session's orchestrator unless a request is still driving it.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.byID[sessionID]; ok && !o.busy() {
		delete(r.byID, sessionID)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (o *Orchestrator) busy() bool {
	s := o.State()
	return s == domain.CheckoutSessionRequested || s == domain.CheckoutFulfilling
}
