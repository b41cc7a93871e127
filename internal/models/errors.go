package models

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound is returned when no order exists for the given ID.
	ErrOrderNotFound = errors.New("order not found")
	// ErrItemNotFound is returned when an ordered item does not exist.
	ErrItemNotFound = errors.New("item not found")
	// ErrBuyerNotFound is returned when no buyer exists for the given ID.
	ErrBuyerNotFound = errors.New("buyer not found")
	// ErrPaymentNotFound is returned when no payment matches an order or reference.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrOrderExpired is returned when the settlement window has passed.
	ErrOrderExpired = errors.New("order expired")
	// ErrOrderCancelled is returned when acting on a cancelled order.
	ErrOrderCancelled = errors.New("order cancelled")
	// ErrAlreadySettled is returned when cancelling or re-charging a paid order.
	ErrAlreadySettled = errors.New("order already settled")
	// ErrBuyerEmailRequired is returned when payment is initiated without a
	// buyer email on record or in the request.
	ErrBuyerEmailRequired = errors.New("buyer email is required")
	// ErrGatewayUnavailable wraps transient payment gateway failures.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// InsufficientStockError reports a reservation that exceeds available stock.
type InsufficientStockError struct {
	ItemID    string
	ItemName  string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	if e.ItemName != "" {
		return fmt.Sprintf("item %s is remaining %d, requested %d", e.ItemName, e.Available, e.Requested)
	}
	return fmt.Sprintf("item %s is remaining %d, requested %d", e.ItemID, e.Available, e.Requested)
}

// IsRetryable reports whether the failure is transient and worth retrying,
// as opposed to a request the client must change.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}
