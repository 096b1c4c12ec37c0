package broker

import (
	"context"
	"encoding/json"
	"time"

	"tour-payments/internal/models"
	"tour-payments/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events and queueing notifications
type EventPublisher struct {
	orderEvents   *Producer
	notifications *Producer
}

// NewEventPublisher creates a new event publisher. orderEvents carries domain
// events, notifications is the reconciliation queue.
func NewEventPublisher(orderEvents, notifications *Producer) *EventPublisher {
	return &EventPublisher{orderEvents: orderEvents, notifications: notifications}
}

func orderKey(orderID string) string {
	return "order-" + orderID
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.orderEvents.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishStatusChanged publishes PaymentStatusChanged event
func (ep *EventPublisher) PublishStatusChanged(ctx context.Context, event *models.PaymentStatusChangedEvent) error {
	return ep.orderEvents.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// ConfirmFulfillment tells the booking system the order is paid
func (ep *EventPublisher) ConfirmFulfillment(ctx context.Context, order *models.Order) error {
	event := &models.FulfillmentConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeFulfillmentConfirmed,
			Timestamp: time.Now().UTC(),
		},
		OrderID:       order.ID,
		PackageName:   order.PackageName,
		Travelers:     order.TravelerCount,
		DepartureDate: order.DepartureDate,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency,
	}
	return ep.orderEvents.PublishEvent(ctx, orderKey(order.ID), event)
}

// Enqueue durably queues a notification for the reconciliation worker.
// Keyed by intent so redeliveries for one intent are consumed in order.
func (ep *EventPublisher) Enqueue(ctx context.Context, ev *models.ReconciliationEvent) error {
	event := &models.ReconciliationRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReconciliationRequest,
			Timestamp: time.Now().UTC(),
		},
		Notification: *ev,
	}
	return ep.notifications.PublishEvent(ctx, "intent-"+ev.IntentID, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onReconciliationRequested func(context.Context, *models.ReconciliationRequestedEvent) error
	logger                    *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnReconciliationRequested registers a handler for queued notifications
func (eh *EventHandler) OnReconciliationRequested(handler func(context.Context, *models.ReconciliationRequestedEvent) error) {
	eh.onReconciliationRequested = handler
}

// HandleMessage routes messages to appropriate handlers. Messages that cannot
// be decoded are logged and dropped; retrying them would block the partition.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		eh.dropMalformed(msg, err)
		return nil
	}

	switch baseEvent.EventType {
	case models.EventTypeReconciliationRequest:
		if eh.onReconciliationRequested != nil {
			var event models.ReconciliationRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				eh.dropMalformed(msg, err)
				return nil
			}
			return eh.onReconciliationRequested(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type",
			zap.String("event_type", baseEvent.EventType),
			zap.String("event_id", baseEvent.EventID))
	}

	return nil
}

func (eh *EventHandler) dropMalformed(msg kafka.Message, err error) {
	util.ReconciliationIrregularitiesTotal.WithLabelValues("malformed_message").Inc()
	eh.logger.Error("Dropping malformed message",
		zap.Int64("offset", msg.Offset),
		zap.ByteString("key", msg.Key),
		zap.Error(err))
}
