package checkout

import "errors"

var (
	ErrEmptyCart             = errors.New("cart is empty, nothing to checkout")
	ErrCheckoutInProgress    = errors.New("a checkout session is already being requested")
	ErrFulfillmentInProgress = errors.New("fulfillment is already running")
	ErrUnauthenticated       = errors.New("a signed-in user is required to fulfill a purchase")
	ErrPaymentNotConfirmed   = errors.New("payment for this session is not confirmed")
	ErrSessionNotOwned       = errors.New("checkout session belongs to another user")
	ErrNothingToDownload     = errors.New("nothing to download")
	ErrAlreadyFulfilled      = errors.New("purchase for this checkout session was already recorded")
	ErrRecordPurchase        = errors.New("failed to record purchase")
	ErrCancelled             = errors.New("fulfillment cancelled")
	IllegalTransitionError   = errors.New("illegal transition of checkout state")
)
