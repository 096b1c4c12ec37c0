package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"tour-payments/internal/models"
)

// Memory is an in-process OrderStore. Reads take a shared lock and copy the
// record out; status updates additionally hold the per-order lock so two
// updates of the same order never interleave.
type Memory struct {
	mu       sync.RWMutex
	orders   map[string]*models.Order
	byIntent map[string]string
	locks    *KeyedMutex
	now      func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		orders:   make(map[string]*models.Order),
		byIntent: make(map[string]string),
		locks:    NewKeyedMutex(),
		now:      time.Now,
	}
}

// Put persists a new order
func (m *Memory) Put(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; ok {
		return ErrOrderExists
	}
	if order.Intent.ID != "" {
		if _, ok := m.byIntent[order.Intent.ID]; ok {
			return ErrOrderExists
		}
	}

	stored := order.Clone()
	now := m.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.Intent.Status == "" {
		stored.Intent.Status = models.PaymentStatusCreated
	}
	if stored.Intent.StatusUpdatedAt.IsZero() {
		stored.Intent.StatusUpdatedAt = now
	}

	m.orders[stored.ID] = stored
	if stored.Intent.ID != "" {
		m.byIntent[stored.Intent.ID] = stored.ID
	}
	return nil
}

// Get retrieves an order by id
func (m *Memory) Get(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return order.Clone(), nil
}

// FindByIntentID retrieves the order linked to a provider intent
func (m *Memory) FindByIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orderID, ok := m.byIntent[intentID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.orders[orderID].Clone(), nil
}

// UpdateStatus applies a legal transition under the order's lock
func (m *Memory) UpdateStatus(ctx context.Context, orderID string, status models.PaymentStatus) (models.PaymentStatus, error) {
	unlock, err := m.locks.Lock(ctx, orderID)
	if err != nil {
		return "", err
	}
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return "", ErrNotFound
	}

	previous := order.Intent.Status
	if err := checkTransition(orderID, previous, status); err != nil {
		return previous, err
	}

	// Swap in a fresh copy so readers holding an older clone never see a half update.
	updated := order.Clone()
	now := m.now()
	updated.Intent.Status = status
	updated.Intent.StatusUpdatedAt = now
	updated.UpdatedAt = now
	m.orders[orderID] = updated

	return previous, nil
}

// List returns the newest orders first
func (m *Memory) List(ctx context.Context, limit int) ([]*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := make([]*models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		orders = append(orders, o.Clone())
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}
