// Package checkout drives one session's checkout attempts: a payment session is
// requested for the cart, and on return the cart's files are delivered, a single
// purchase is recorded, and the delivered lines are swept from the cart.
package checkout

import (
	"log/slog"
	"sync"

	"github.com/Jaabir-Mahmud/folioxe/pkg/logger"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
	"github.com/google/uuid"
)

const (
	Currency               = "usd"
	defaultResolveParallel = 4
)

type Config struct {
	// RequirePaymentConfirmation makes Fulfill ask the verifier whether the session was
	// paid before releasing anything. Off means arrival at the return route is trusted.
	RequirePaymentConfirmation bool
	MaxParallelResolves        int
}

func DefaultConfig() Config {
	return Config{RequirePaymentConfirmation: true, MaxParallelResolves: defaultResolveParallel}
}

type Dependencies struct {
	Provider  SessionProvider
	Verifier  SessionVerifier
	Resolver  DownloadResolver
	Purchases PurchaseRecorder
	Logger    *slog.Logger
}

type Orchestrator struct {
	mu        sync.Mutex
	state     domain.CheckoutState
	sessionID string
	lastError string

	cart Cart
	deps Dependencies
	cfg  Config
	log  *slog.Logger

	newKey func() string
}

func NewOrchestrator(cart Cart, deps Dependencies, cfg Config) *Orchestrator {
	if cfg.MaxParallelResolves <= 0 {
		cfg.MaxParallelResolves = defaultResolveParallel
	}
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		state:  domain.CheckoutIdle,
		cart:   cart,
		deps:   deps,
		cfg:    cfg,
		log:    log,
		newKey: uuid.NewString,
	}
}

func (o *Orchestrator) State() domain.CheckoutState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SessionID is the provider session of the most recent successful BeginCheckout.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// LastError is the user-facing message of the last failed step, empty after a success.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

func (o *Orchestrator) setState(s domain.CheckoutState, errMsg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
	o.lastError = errMsg
}
