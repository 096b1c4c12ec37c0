package store

import (
	"errors"
	"fmt"

	"tour-payments/internal/models"
)

var (
	// ErrNotFound is returned when no order matches the lookup.
	ErrNotFound = errors.New("order not found")

	// ErrOrderExists is returned by Put when the order id or intent id is already stored.
	ErrOrderExists = errors.New("order already exists")

	// ErrIllegalTransition matches every IllegalTransitionError.
	ErrIllegalTransition = errors.New("illegal payment status transition")

	// ErrConcurrencyConflict is returned when an order lock could not be taken before the deadline.
	ErrConcurrencyConflict = errors.New("order is locked by another reconciliation")
)

// IllegalTransitionError reports a rejected state machine move
type IllegalTransitionError struct {
	OrderID string
	From    models.PaymentStatus
	To      models.PaymentStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition for order %s: %s -> %s", e.OrderID, e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

func checkTransition(orderID string, from, to models.PaymentStatus) error {
	if !to.IsValid() || !models.CanTransition(from, to) {
		return &IllegalTransitionError{OrderID: orderID, From: from, To: to}
	}
	return nil
}
