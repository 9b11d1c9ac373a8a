package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type lineItemLister func(params *stripe.CheckoutSessionListLineItemsParams) ([]*stripe.LineItem, error)

type Stripe struct {
	sessions   sessionAPI
	lineItems  lineItemLister
	successURL string
	cancelURL  string
}

func NewStripe(secretKey, successURL, cancelURL string) *Stripe {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	list := func(params *stripe.CheckoutSessionListLineItemsParams) ([]*stripe.LineItem, error) {
		it := sc.CheckoutSessions.ListLineItems(params)
		var out []*stripe.LineItem
		for it.Next() {
			out = append(out, it.LineItem())
		}
		return out, it.Err()
	}
	return &Stripe{sessions: sc.CheckoutSessions, lineItems: list, successURL: successURL, cancelURL: cancelURL}
}

func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest, idempotencyKey string) (*Session, error) {
	if err := Validate(req.Items); err != nil {
		return nil, err
	}
	params := s.sessionParams(req)
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	cs, err := s.sessions.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return toSession(cs), nil
}

// GetSession returns the session with the line items it charged for, each tagged with
// the product id given at creation.
func (s *Stripe) GetSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.sessions.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	session := toSession(cs)

	listParams := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(id)}
	listParams.Context = ctx
	listParams.AddExpand("data.price.product")
	items, err := s.lineItems(listParams)
	if err != nil {
		return nil, mapStripeError(err)
	}
	for _, li := range items {
		session.Items = append(session.Items, toPaidItem(li))
	}
	return session, nil
}

func (s *Stripe) sessionParams(req SessionRequest) *stripe.CheckoutSessionParams {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, it := range req.Items {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(it.Name),
		}
		if it.ProductID != "" {
			product.Metadata = map[string]string{ProductMetadataKey: it.ProductID}
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(ToCents(it.UnitPrice)),
			},
			Quantity: stripe.Int64(it.Quantity),
		})
	}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          lineItems,
		SuccessURL:         stripe.String(s.successURL),
		CancelURL:          stripe.String(s.cancelURL),
	}
	if req.ClientReference != "" {
		params.ClientReferenceID = stripe.String(req.ClientReference)
	}
	return params
}

func toSession(cs *stripe.CheckoutSession) *Session {
	return &Session{
		ID:              cs.ID,
		URL:             cs.URL,
		Paid:            cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Status:          string(cs.Status),
		ClientReference: cs.ClientReferenceID,
		AmountTotal:     FromCents(cs.AmountTotal),
		Currency:        string(cs.Currency),
	}
}

func toPaidItem(li *stripe.LineItem) PaidItem {
	item := PaidItem{Quantity: li.Quantity}
	if li.Price == nil {
		return item
	}
	item.UnitPrice = FromCents(li.Price.UnitAmount)
	if li.Price.Product != nil {
		item.ProductID = li.Price.Product.Metadata[ProductMetadataKey]
	}
	return item
}

func mapStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return &Error{Message: "payment provider unavailable", Status: http.StatusBadGateway, Err: err}
	}
	if se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound {
		return errors.Join(ErrSessionNotFound, err)
	}
	msg := se.Msg
	if msg == "" {
		msg = "payment provider error"
	}
	return &Error{Message: msg, Status: se.HTTPStatusCode, Err: err}
}
