package service

import (
	"context"
	"sync"
	"time"

	"tour-payments/internal/gateway"
	"tour-payments/internal/models"
	"tour-payments/internal/store"
)

type recordingNotifier struct {
	mu     sync.Mutex
	orders []string
}

func (n *recordingNotifier) ConfirmFulfillment(_ context.Context, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, order.ID)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.orders)
}

type recordingPublisher struct {
	mu      sync.Mutex
	created []*models.OrderCreatedEvent
	changed []*models.PaymentStatusChangedEvent
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, e *models.PaymentStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return nil
}

type fixture struct {
	gw        *gateway.Fake
	orders    *store.Memory
	locks     *store.KeyedMutex
	notifier  *recordingNotifier
	publisher *recordingPublisher
	checkout  *CheckoutService
	engine    *Engine
}

func newFixture() *fixture {
	f := &fixture{
		gw:        gateway.NewFake(),
		orders:    store.NewMemory(),
		locks:     store.NewKeyedMutex(),
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}
	f.checkout = NewCheckoutService(newTestValidator(), newTestBuilder(), f.gw, f.orders, f.locks, f.publisher, time.Second)
	f.engine = NewEngine(f.orders, f.gw, f.locks, f.notifier, f.publisher)
	return f
}

func event(intentID string) models.ReconciliationEvent {
	return models.ReconciliationEvent{
		ProviderEventType: models.ProviderEventTypePayment,
		IntentID:          intentID,
		ReceivedAt:        time.Now(),
	}
}
