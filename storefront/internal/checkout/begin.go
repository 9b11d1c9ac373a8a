package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
)

// BeginCheckout requests a payment session for the cart as it is now and returns the
// URL to send the browser to. userID, when known, is stamped on the session as its
// client reference. The cart is never modified here.
func (o *Orchestrator) BeginCheckout(ctx context.Context, userID string) (string, error) {
	o.mu.Lock()
	switch o.state {
	case domain.CheckoutSessionRequested:
		o.mu.Unlock()
		return "", ErrCheckoutInProgress
	case domain.CheckoutFulfilling:
		o.mu.Unlock()
		return "", ErrFulfillmentInProgress
	}
	lines := o.cart.Lines()
	if len(lines) == 0 {
		o.mu.Unlock()
		return "", ErrEmptyCart
	}
	if !domain.CanTransitionTo(o.state, domain.CheckoutSessionRequested) {
		o.mu.Unlock()
		return "", IllegalTransitionError
	}
	o.state = domain.CheckoutSessionRequested
	o.lastError = ""
	o.mu.Unlock()

	req := sessionRequest(lines)
	req.ClientReference = userID
	key := o.newKey()
	session, err := o.deps.Provider.CreateSession(ctx, req, key)
	if err == nil && session.URL == "" {
		err = &domain.ProviderError{Message: "payment provider returned no redirect url"}
	}
	if err != nil {
		if ctx.Err() != nil {
			o.setState(domain.CheckoutCancelled, "checkout cancelled")
			return "", fmt.Errorf("checkout cancelled: %w", ctx.Err())
		}
		var pe *domain.ProviderError
		if !errors.As(err, &pe) {
			pe = &domain.ProviderError{Message: err.Error(), Err: err}
		}
		o.setState(domain.CheckoutFailed, pe.Message)
		o.log.WarnContext(ctx, "checkout session request failed",
			"idempotency_key", key, "items", len(req.Items), "error", err)
		return "", pe
	}

	o.mu.Lock()
	o.state = domain.CheckoutRedirecting
	o.sessionID = session.ID
	o.mu.Unlock()

	o.log.InfoContext(ctx, "checkout session created", "session_id", session.ID, "items", len(req.Items))
	return session.URL, nil
}

func sessionRequest(lines []domain.CartLine) domain.SessionRequest {
	items := make([]domain.SessionItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, domain.SessionItem{
			ProductID: l.Product.ID,
			Name:      l.Product.Title,
			UnitPrice: l.Product.UnitPrice,
			Quantity:  l.Quantity,
		})
	}
	return domain.SessionRequest{Items: items}
}
