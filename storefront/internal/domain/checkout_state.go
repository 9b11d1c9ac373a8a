package domain

type CheckoutState string

const (
	CheckoutIdle             CheckoutState = "IDLE"
	CheckoutSessionRequested CheckoutState = "SESSION_REQUESTED"
	CheckoutRedirecting      CheckoutState = "REDIRECTING"
	CheckoutFailed           CheckoutState = "FAILED"
	CheckoutFulfilling       CheckoutState = "FULFILLING"
	CheckoutFulfilled        CheckoutState = "FULFILLED"
	CheckoutCancelled        CheckoutState = "CANCELLED"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutIdle:             {CheckoutSessionRequested, CheckoutFulfilling},
	CheckoutSessionRequested: {CheckoutRedirecting, CheckoutFailed, CheckoutCancelled},
	CheckoutRedirecting:      {CheckoutFulfilling, CheckoutSessionRequested},
	CheckoutFailed:           {CheckoutSessionRequested, CheckoutFulfilling},
	CheckoutFulfilling:       {CheckoutFulfilled, CheckoutIdle, CheckoutCancelled},
	CheckoutFulfilled:        {CheckoutSessionRequested, CheckoutFulfilling},
	CheckoutCancelled:        {CheckoutSessionRequested, CheckoutFulfilling},
}

func CanTransitionTo(from, to CheckoutState) bool {
	for _, s := range checkoutTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the attempt is over from the orchestrator's point of view.
// Redirecting counts: control has left the application.
func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutRedirecting || s == CheckoutFailed || s == CheckoutFulfilled || s == CheckoutCancelled
}

// String representation (for logging)
func (s CheckoutState) String() string {
	return string(s)
}
