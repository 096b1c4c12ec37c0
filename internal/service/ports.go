package service

import (
	"context"

	"tour-payments/internal/models"
)

// Locker serializes work on a single order. store.KeyedMutex serves one
// process, redisclient.Locker serves several.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockKey is the lock name shared by checkout and reconciliation
func LockKey(orderID string) string {
	return "order:" + orderID
}

// EventPublisher receives domain events. Publishing is best effort.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishStatusChanged(ctx context.Context, event *models.PaymentStatusChangedEvent) error
}

// FulfillmentNotifier is told once per order when its payment is approved
type FulfillmentNotifier interface {
	ConfirmFulfillment(ctx context.Context, order *models.Order) error
}

// DedupWindow remembers recently seen notification keys for a bounded time
type DedupWindow interface {
	// FirstSeen records key and reports whether it was not already present.
	FirstSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// ReconciliationQueue hands an accepted notification over for reconciliation
type ReconciliationQueue interface {
	Enqueue(ctx context.Context, event *models.ReconciliationEvent) error
}

type nopPublisher struct{}

func (nopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error {
	return nil
}

func (nopPublisher) PublishStatusChanged(context.Context, *models.PaymentStatusChangedEvent) error {
	return nil
}

type nopNotifier struct{}

func (nopNotifier) ConfirmFulfillment(context.Context, *models.Order) error { return nil }
