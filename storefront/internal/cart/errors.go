package cart

import "errors"

// ErrPersist wraps slot write failures. The in-memory mutation has already happened
// when it is returned.
var ErrPersist = errors.New("cart persisted state is stale")
