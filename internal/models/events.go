package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated          = "ORDER_CREATED"
	EventTypePaymentStatusChanged  = "PAYMENT_STATUS_CHANGED"
	EventTypeFulfillmentConfirmed  = "ORDER_FULFILLMENT_CONFIRMED"
	EventTypeReconciliationRequest = "RECONCILIATION_REQUESTED"
)

// ProviderEventTypePayment is the only provider notification type that triggers reconciliation
const ProviderEventTypePayment = "payment"

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ReconciliationEvent is an inbound provider notification reduced to what we trust:
// the identifier of the intent to re-fetch.
type ReconciliationEvent struct {
	ProviderEventType string    `json:"provider_event_type"`
	IntentID          string    `json:"intent_id"`
	DeliveryID        string    `json:"delivery_id,omitempty"`
	Action            string    `json:"action,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
}

// ReconciliationRequestedEvent carries a ReconciliationEvent through the queue
type ReconciliationRequestedEvent struct {
	BaseEvent
	Notification ReconciliationEvent `json:"notification"`
}

// OrderCreatedEvent published when an order and its intent are stored
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	IntentID    string          `json:"intent_id"`
	PackageName string          `json:"package_name"`
	Travelers   int             `json:"travelers"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
}

// PaymentStatusChangedEvent published after every applied transition
type PaymentStatusChangedEvent struct {
	BaseEvent
	OrderID  string        `json:"order_id"`
	IntentID string        `json:"intent_id"`
	From     PaymentStatus `json:"from"`
	To       PaymentStatus `json:"to"`
}

// FulfillmentConfirmedEvent tells the booking system an order was paid
type FulfillmentConfirmedEvent struct {
	BaseEvent
	OrderID       string          `json:"order_id"`
	PackageName   string          `json:"package_name"`
	Travelers     int             `json:"travelers"`
	DepartureDate string          `json:"departure_date"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
}
