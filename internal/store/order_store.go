package store

import (
	"context"

	"tour-payments/internal/models"
)

// OrderStore is the single source of truth for orders and their payment intents.
// Implementations serialize updates per order and hand out copies only.
type OrderStore interface {
	// Put persists a new order together with its intent.
	Put(ctx context.Context, order *models.Order) error

	// Get retrieves an order by id.
	Get(ctx context.Context, orderID string) (*models.Order, error)

	// FindByIntentID retrieves the order owning the given provider intent.
	FindByIntentID(ctx context.Context, intentID string) (*models.Order, error)

	// UpdateStatus applies a legal transition and returns the status it replaced.
	UpdateStatus(ctx context.Context, orderID string, status models.PaymentStatus) (models.PaymentStatus, error)

	// List returns the most recently created orders first.
	List(ctx context.Context, limit int) ([]*models.Order, error)
}

// Ensure concrete types implement the interface.
var (
	_ OrderStore = (*Memory)(nil)
	_ OrderStore = (*Store)(nil)
)
