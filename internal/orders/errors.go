package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCart means checkout was attempted with no items in the cart.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrOrderNotFound means the order id resolved to nothing.
	ErrOrderNotFound = errors.New("order not found")

	// ErrPaymentRefAlreadySet guards the set-once stripe payment reference.
	ErrPaymentRefAlreadySet = errors.New("payment reference already set")
)

// ValidationError reports a malformed request field. No mutation happens
// when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError reports a status change not reachable from the
// current status. Webhook callers treat it as a benign no-op; admin callers
// surface it as a client error.
type InvalidTransitionError struct {
	OrderID string
	From    string
	To      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: transition %s -> %s is not allowed", e.OrderID, e.From, e.To)
}
