package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/repository"
	"golang.org/x/sync/errgroup"
)

type FulfillRequest struct {
	UserID string
	// SessionID is the provider session the browser returned with. Empty falls back to
	// the session this orchestrator created.
	SessionID string
}

type FulfillResult struct {
	PurchaseID string
	Links      []domain.DownloadLink
	// Undelivered lists product ids that stayed in the cart.
	Undelivered []string
}

// Fulfill runs the return-route sequence: verify payment, resolve the file of every
// cart line the session paid for, record one purchase of what resolved, then deduct
// exactly the delivered quantities from the cart.
//
// A session that already has a purchase only re-delivers the items of that purchase,
// to the same user, with ErrAlreadyFulfilled; the cart is left alone. A non-nil result
// may also come with ErrRecordPurchase: links were delivered and the cart swept even
// though no record was written.
func (o *Orchestrator) Fulfill(ctx context.Context, req FulfillRequest) (*FulfillResult, error) {
	if req.UserID == "" {
		return nil, ErrUnauthenticated
	}

	o.mu.Lock()
	switch o.state {
	case domain.CheckoutFulfilling:
		o.mu.Unlock()
		return nil, ErrFulfillmentInProgress
	case domain.CheckoutSessionRequested:
		o.mu.Unlock()
		return nil, ErrCheckoutInProgress
	}
	if !domain.CanTransitionTo(o.state, domain.CheckoutFulfilling) {
		o.mu.Unlock()
		return nil, IllegalTransitionError
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = o.sessionID
	}
	o.state = domain.CheckoutFulfilling
	o.lastError = ""
	lines := o.cart.Lines()
	o.mu.Unlock()

	fail := func(err error) (*FulfillResult, error) {
		if ctx.Err() != nil {
			return nil, o.cancelled(ctx)
		}
		o.setState(domain.CheckoutIdle, err.Error())
		return nil, err
	}

	if sessionID != "" {
		prior, err := o.priorPurchase(ctx, sessionID)
		if err != nil {
			return fail(err)
		}
		if prior != nil {
			return o.redeliver(ctx, prior, req.UserID)
		}
	}

	payable, uncovered, err := o.payableLines(ctx, sessionID, req.UserID, lines)
	if err != nil {
		return fail(err)
	}

	links, delivered, undelivered := o.resolveDownloads(ctx, payable)
	if ctx.Err() != nil {
		return nil, o.cancelled(ctx)
	}
	if len(links) == 0 {
		o.setState(domain.CheckoutIdle, ErrNothingToDownload.Error())
		o.log.InfoContext(ctx, "nothing to download", "user_id", req.UserID, "lines", len(lines))
		return nil, ErrNothingToDownload
	}

	purchase := &domain.Purchase{
		ID:        sessionID,
		UserID:    req.UserID,
		SessionID: sessionID,
		Items:     purchaseItems(delivered),
		Currency:  Currency,
	}
	purchase.Amount = purchase.Total()

	result := &FulfillResult{Links: links, Undelivered: append(undelivered, uncovered...)}
	var resultErr error

	id, recErr := o.deps.Purchases.Record(ctx, purchase)
	switch {
	case recErr == nil:
		result.PurchaseID = id
	case errors.Is(recErr, repository.ErrDuplicatePurchase):
		// A concurrent visit for the same session recorded first; what it recorded wins.
		prior, err := o.priorPurchase(ctx, sessionID)
		if err != nil || prior == nil {
			if err == nil {
				err = recErr
			}
			return fail(err)
		}
		return o.redeliver(ctx, prior, req.UserID)
	case ctx.Err() != nil:
		// The write may or may not have landed; a retry with the same session is deduplicated.
		return nil, o.cancelled(ctx)
	default:
		resultErr = fmt.Errorf("%w: %w", ErrRecordPurchase, recErr)
		o.log.ErrorContext(ctx, "purchase record failed after delivery",
			"user_id", req.UserID, "session_id", sessionID, "items", len(delivered), "error", recErr)
	}

	// The sweep follows the write attempt and must not be abandoned halfway.
	if err := o.cart.Deduct(context.WithoutCancel(ctx), quantities(delivered)); err != nil {
		o.log.WarnContext(ctx, "cart sweep not persisted", "error", err)
	}

	msg := ""
	if resultErr != nil {
		msg = resultErr.Error()
	}
	o.setState(domain.CheckoutFulfilled, msg)
	o.log.InfoContext(ctx, "checkout fulfilled",
		"purchase_id", result.PurchaseID, "delivered", len(delivered), "undelivered", len(result.Undelivered))
	return result, resultErr
}

// priorPurchase returns the purchase already recorded for sessionID, or nil.
func (o *Orchestrator) priorPurchase(ctx context.Context, sessionID string) (*domain.Purchase, error) {
	p, err := o.deps.Purchases.Get(ctx, sessionID)
	if errors.Is(err, repository.ErrPurchaseNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up purchase: %w", err)
	}
	return p, nil
}

// redeliver resolves fresh links for the items recorded under p. Nothing else in the
// cart is released and the cart is not touched.
func (o *Orchestrator) redeliver(ctx context.Context, p *domain.Purchase, userID string) (*FulfillResult, error) {
	if p.UserID != userID {
		o.setState(domain.CheckoutIdle, ErrSessionNotOwned.Error())
		o.log.WarnContext(ctx, "replayed session for another user", "purchase_id", p.ID, "user_id", userID)
		return nil, ErrSessionNotOwned
	}

	links, _, undelivered := o.resolveDownloads(ctx, recordedLines(p))
	if ctx.Err() != nil {
		return nil, o.cancelled(ctx)
	}
	o.setState(domain.CheckoutFulfilled, ErrAlreadyFulfilled.Error())
	o.log.InfoContext(ctx, "purchase re-delivered", "purchase_id", p.ID, "links", len(links))
	return &FulfillResult{PurchaseID: p.ID, Links: links, Undelivered: undelivered}, ErrAlreadyFulfilled
}

// payableLines narrows the cart snapshot to what the session paid for. Each released
// line is capped at the paid quantity and carries the charged unit price; the rest is
// reported as uncovered and stays in the cart.
func (o *Orchestrator) payableLines(ctx context.Context, sessionID, userID string, lines []domain.CartLine) ([]domain.CartLine, []string, error) {
	if !o.cfg.RequirePaymentConfirmation || o.deps.Verifier == nil {
		return lines, nil, nil
	}
	if sessionID == "" {
		return nil, nil, fmt.Errorf("%w: no checkout session", ErrPaymentNotConfirmed)
	}
	status, err := o.deps.Verifier.VerifySession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("verify payment session: %w", err)
	}
	if status == nil || !status.Paid {
		return nil, nil, ErrPaymentNotConfirmed
	}
	if status.ClientReference != "" && status.ClientReference != userID {
		return nil, nil, ErrSessionNotOwned
	}

	paid := make(map[string]domain.PaidItem, len(status.Items))
	for _, it := range status.Items {
		prev := paid[it.ProductID]
		it.Quantity += prev.Quantity
		paid[it.ProductID] = it
	}

	var payable []domain.CartLine
	var uncovered []string
	for _, l := range lines {
		item, ok := paid[l.Product.ID]
		if !ok || item.Quantity < 1 {
			uncovered = append(uncovered, l.Product.ID)
			continue
		}
		l.Quantity = min(l.Quantity, item.Quantity)
		l.Product.UnitPrice = item.UnitPrice
		payable = append(payable, l)
	}
	if len(payable) == 0 && len(lines) > 0 {
		o.log.WarnContext(ctx, "paid session covers no cart line", "session_id", sessionID, "lines", len(lines))
		return nil, nil, fmt.Errorf("%w: session covers none of the cart", ErrPaymentNotConfirmed)
	}
	return payable, uncovered, nil
}

// resolveDownloads asks for every file concurrently and waits for all of them.
// A failed line is left undelivered; it never aborts the others.
func (o *Orchestrator) resolveDownloads(ctx context.Context, lines []domain.CartLine) ([]domain.DownloadLink, []domain.CartLine, []string) {
	urls := make([]string, len(lines))

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxParallelResolves)
	for i, line := range lines {
		if !line.Product.HasFile() {
			continue
		}
		g.Go(func() error {
			u, err := o.deps.Resolver.DownloadURL(ctx, line.Product.MainFileID)
			if err != nil {
				o.log.WarnContext(ctx, "download link not resolved",
					"product_id", line.Product.ID, "file_id", line.Product.MainFileID, "error", err)
				return nil
			}
			urls[i] = u
			return nil
		})
	}
	_ = g.Wait()

	var links []domain.DownloadLink
	var delivered []domain.CartLine
	var undelivered []string
	for i, line := range lines {
		if urls[i] == "" {
			undelivered = append(undelivered, line.Product.ID)
			continue
		}
		links = append(links, domain.DownloadLink{ProductID: line.Product.ID, Name: line.Product.Title, URL: urls[i]})
		delivered = append(delivered, line)
	}
	return links, delivered, undelivered
}

func (o *Orchestrator) cancelled(ctx context.Context) error {
	o.setState(domain.CheckoutCancelled, ErrCancelled.Error())
	o.log.WarnContext(ctx, "fulfillment cancelled", "error", ctx.Err())
	return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
}

func purchaseItems(lines []domain.CartLine) []domain.PurchaseItem {
	items := make([]domain.PurchaseItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, domain.PurchaseItem{
			ProductID:   l.Product.ID,
			ProductName: l.Product.Title,
			UnitPrice:   l.Product.UnitPrice,
			Quantity:    l.Quantity,
			FileID:      l.Product.MainFileID,
		})
	}
	return items
}

func recordedLines(p *domain.Purchase) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(p.Items))
	for _, it := range p.Items {
		lines = append(lines, domain.CartLine{
			Product: domain.Product{
				ID:         it.ProductID,
				Title:      it.ProductName,
				UnitPrice:  it.UnitPrice,
				MainFileID: it.FileID,
			},
			Quantity: it.Quantity,
		})
	}
	return lines
}

func quantities(lines []domain.CartLine) map[string]int {
	q := make(map[string]int, len(lines))
	for _, l := range lines {
		q[l.Product.ID] += l.Quantity
	}
	return q
}
