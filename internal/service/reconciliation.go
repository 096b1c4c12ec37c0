package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tour-payments/internal/gateway"
	"tour-payments/internal/models"
	"tour-payments/internal/store"
	"tour-payments/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Engine converges stored orders with the provider's authoritative status.
// Notifications only name the intent; the status always comes from a fetch.
type Engine struct {
	store    store.OrderStore
	gateway  gateway.Client
	locks    Locker
	notifier FulfillmentNotifier
	events   EventPublisher
	logger   *zap.Logger

	byReference bool
}

// ReconcileResult describes what a reconciliation did to an order
type ReconcileResult struct {
	OrderID   string
	IntentID  string
	Previous  models.PaymentStatus
	Current   models.PaymentStatus
	Changed   bool
	Fulfilled bool
}

// NewEngine creates a reconciliation engine. The locker must be the one used
// by checkout so both paths serialize on the same order.
func NewEngine(
	orders store.OrderStore,
	gw gateway.Client,
	locks Locker,
	notifier FulfillmentNotifier,
	events EventPublisher,
) *Engine {
	if locks == nil {
		locks = store.NewKeyedMutex()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if events == nil {
		events = nopPublisher{}
	}
	return &Engine{
		store:    orders,
		gateway:  gw,
		locks:    locks,
		notifier: notifier,
		events:   events,
		logger:   util.GetLogger(),
	}
}

// ResolveByReference lets notifications that name a provider payment rather
// than the stored intent be matched through the payment's external reference,
// which is always our order id.
func (e *Engine) ResolveByReference(enabled bool) {
	e.byReference = enabled
}

// Reconcile processes one notification. Re-delivering a notification whose
// resolved status is already stored is a no-op.
func (e *Engine) Reconcile(ctx context.Context, ev models.ReconciliationEvent) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "Engine.Reconcile", attribute.String("intent.id", ev.IntentID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReconciliationLatency.Observe(time.Since(start).Seconds())
	}()

	order, err := e.resolve(ctx, ev.IntentID)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	unlock, err := e.locks.Lock(ctx, LockKey(order.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %s: %w", order.ID, err)
	}
	defer unlock()

	// Re-read under the lock; another reconciliation may have just finished.
	order, err = e.store.Get(ctx, order.ID)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	// Fetched again even when resolve already fetched by reference: the status
	// is only authoritative if read after the lock was taken.
	snap, err := e.gateway.FetchIntentByID(ctx, ev.IntentID)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to fetch intent %s: %w", ev.IntentID, err)
	}
	if snap.ExternalReference != order.ID && (snap.ExternalReference != "" || order.Intent.ID != ev.IntentID) {
		return nil, fmt.Errorf("%w: intent %s references %q, stored under %q",
			ErrReferenceMismatch, ev.IntentID, snap.ExternalReference, order.ID)
	}

	result := &ReconcileResult{
		OrderID:  order.ID,
		IntentID: ev.IntentID,
		Previous: order.Intent.Status,
		Current:  order.Intent.Status,
	}

	if snap.Status == order.Intent.Status {
		e.logger.Debug("Payment status unchanged",
			zap.String("order_id", order.ID),
			zap.String("status", string(snap.Status)))
		return result, nil
	}

	previous, err := e.store.UpdateStatus(ctx, order.ID, snap.Status)
	if err != nil {
		util.RecordError(span, err)
		return result, err
	}

	result.Previous = previous
	result.Current = snap.Status
	result.Changed = true

	util.ReconciliationTransitionsTotal.WithLabelValues(string(previous), string(snap.Status)).Inc()
	e.logger.Info("Payment status updated",
		zap.String("order_id", order.ID),
		zap.String("intent_id", ev.IntentID),
		zap.String("from", string(previous)),
		zap.String("to", string(snap.Status)),
		zap.String("provider_status", snap.RawStatus))

	changed := &models.PaymentStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentStatusChanged,
			Timestamp: time.Now().UTC(),
		},
		OrderID:  order.ID,
		IntentID: ev.IntentID,
		From:     previous,
		To:       snap.Status,
	}
	if err := e.events.PublishStatusChanged(ctx, changed); err != nil {
		e.logger.Error("Failed to publish PaymentStatusChanged event", zap.Error(err))
	}

	if models.IsFulfillmentEdge(previous, snap.Status) {
		result.Fulfilled = true
		order.Intent.Status = snap.Status
		if err := e.notifier.ConfirmFulfillment(ctx, order); err != nil {
			// The transition is committed and terminal; a redelivery would be a
			// no-op, so the failure is only recorded for an operator.
			util.ReconciliationIrregularitiesTotal.WithLabelValues("fulfillment_failed").Inc()
			e.logger.Error("Failed to confirm fulfillment",
				zap.String("order_id", order.ID),
				zap.Error(err))
		} else {
			util.FulfillmentConfirmationsTotal.Inc()
		}
	}

	return result, nil
}

func (e *Engine) resolve(ctx context.Context, intentID string) (*models.Order, error) {
	order, err := e.store.FindByIntentID(ctx, intentID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve intent: %w", err)
	}
	if !e.byReference {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntent, intentID)
	}

	snap, err := e.gateway.FetchIntentByID(ctx, intentID)
	if err != nil {
		if gateway.IsTransient(err) {
			return nil, fmt.Errorf("failed to fetch intent %s: %w", intentID, err)
		}
		return nil, fmt.Errorf("%w: %s (%v)", ErrUnknownIntent, intentID, err)
	}
	if snap.ExternalReference == "" {
		return nil, fmt.Errorf("%w: %s has no external reference", ErrUnknownIntent, intentID)
	}

	order, err = e.store.Get(ctx, snap.ExternalReference)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s references unknown order %q", ErrUnknownIntent, intentID, snap.ExternalReference)
		}
		return nil, fmt.Errorf("failed to resolve order: %w", err)
	}
	return order, nil
}
