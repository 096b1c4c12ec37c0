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

// CheckoutService turns storefront submissions into stored orders with a payment intent
type CheckoutService struct {
	validator     *OrderValidator
	builder       *IntentBuilder
	gateway       gateway.Client
	store         store.OrderStore
	locks         Locker
	events        EventPublisher
	createTimeout time.Duration
	logger        *zap.Logger
}

// CheckoutResult is the stored order plus whether it already existed
type CheckoutResult struct {
	Order    *models.Order
	Replayed bool
}

// NewCheckoutService creates a new checkout service. createTimeout bounds the
// whole intent creation including retries; nil events disables publishing.
func NewCheckoutService(
	validator *OrderValidator,
	builder *IntentBuilder,
	gw gateway.Client,
	orders store.OrderStore,
	locks Locker,
	events EventPublisher,
	createTimeout time.Duration,
) *CheckoutService {
	if events == nil {
		events = nopPublisher{}
	}
	if locks == nil {
		locks = store.NewKeyedMutex()
	}
	if createTimeout <= 0 {
		createTimeout = 30 * time.Second
	}
	return &CheckoutService{
		validator:     validator,
		builder:       builder,
		gateway:       gw,
		store:         orders,
		locks:         locks,
		events:        events,
		createTimeout: createTimeout,
		logger:        util.GetLogger(),
	}
}

// Checkout validates raw, creates its payment intent and stores the order in
// state CREATED. Submitting an order id that is already stored returns the
// stored order without calling the gateway again.
func (s *CheckoutService) Checkout(ctx context.Context, raw RawOrder) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	order, err := s.validator.Validate(raw)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			util.OrdersRejectedTotal.WithLabelValues(string(vErr.Kind)).Inc()
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	if TotalMismatch(raw, order) {
		util.OrderTotalCorrectedTotal.Inc()
		s.logger.Warn("Submitted total replaced by unit price times travelers",
			zap.String("order_id", order.ID),
			zap.String("submitted", raw.TotalAmount.text()),
			zap.String("canonical", order.TotalAmount.String()))
	}

	unlock, err := s.locks.Lock(ctx, LockKey(order.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %s: %w", order.ID, err)
	}
	defer unlock()

	existing, err := s.store.Get(ctx, order.ID)
	if err == nil {
		return s.replay(existing), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to check existing order: %w", err)
	}

	req, err := s.builder.Build(order)
	if err != nil {
		util.OrdersRejectedTotal.WithLabelValues("build").Inc()
		return nil, err
	}

	// The intent outlives the caller: once the create is on the wire the
	// order must be stored even if the client goes away.
	createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.createTimeout)
	defer cancel()

	created, err := s.gateway.CreateIntent(createCtx, req, req.IdempotencyKey)
	if err != nil {
		util.OrdersRejectedTotal.WithLabelValues("gateway_" + string(gateway.KindOf(err))).Inc()
		util.RecordError(span, err)
		s.logger.Error("Failed to create payment intent",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	now := time.Now().UTC()
	order.Intent = models.PaymentIntent{
		ID:                 created.IntentID,
		IdempotencyKey:     req.IdempotencyKey,
		RedirectURL:        created.RedirectURL,
		SandboxRedirectURL: created.SandboxRedirectURL,
		RedirectURLs:       req.BackURLs,
		Status:             models.PaymentStatusCreated,
		StatusUpdatedAt:    now,
	}

	if err := s.store.Put(createCtx, order); err != nil {
		if errors.Is(err, store.ErrOrderExists) {
			if existing, getErr := s.store.Get(createCtx, order.ID); getErr == nil {
				return s.replay(existing), nil
			}
		}
		util.RecordError(span, err)
		s.logger.Error("Payment intent created but order not stored",
			zap.String("order_id", order.ID),
			zap.String("intent_id", created.IntentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to store order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("intent_id", created.IntentID),
		zap.String("total", order.TotalAmount.String()))

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: now,
		},
		OrderID:     order.ID,
		IntentID:    created.IntentID,
		PackageName: order.PackageName,
		Travelers:   order.TravelerCount,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
	}
	if err := s.events.PublishOrderCreated(createCtx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	stored, err := s.store.Get(createCtx, order.ID)
	if err != nil {
		stored = order
	}
	return &CheckoutResult{Order: stored}, nil
}

func (s *CheckoutService) replay(existing *models.Order) *CheckoutResult {
	util.OrdersReplayedTotal.Inc()
	s.logger.Info("Duplicate order submission detected",
		zap.String("order_id", existing.ID),
		zap.String("intent_id", existing.Intent.ID))
	return &CheckoutResult{Order: existing, Replayed: true}
}

// GetOrder retrieves an order by ID
func (s *CheckoutService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.Get(ctx, orderID)
}

// ListOrders returns the most recent orders
func (s *CheckoutService) ListOrders(ctx context.Context, limit int) ([]*models.Order, error) {
	return s.store.List(ctx, limit)
}
