package worker

import (
	"context"
	"log"

	"tour-payments/internal/broker"
	"tour-payments/internal/models"
	"tour-payments/internal/service"
	"tour-payments/internal/util"

	"go.uber.org/zap"
)

// Reconciler is the engine capability the workers drive
type Reconciler interface {
	Reconcile(ctx context.Context, ev models.ReconciliationEvent) (*service.ReconcileResult, error)
}

var _ Reconciler = (*service.Engine)(nil)

// ReconciliationWorker consumes queued notifications from Kafka and
// reconciles them one at a time
type ReconciliationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	engine       Reconciler
	logger       *zap.Logger
}

// NewReconciliationWorker creates a new reconciliation worker
func NewReconciliationWorker(consumer *broker.Consumer, engine Reconciler) *ReconciliationWorker {
	w := &ReconciliationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		engine:       engine,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnReconciliationRequested(w.handle)
	return w
}

// handle returns an error only for failures worth retrying, which keeps the
// message uncommitted
func (w *ReconciliationWorker) handle(ctx context.Context, event *models.ReconciliationRequestedEvent) error {
	res, err := w.engine.Reconcile(ctx, event.Notification)
	if err != nil {
		return service.Absorb(w.logger, event.Notification, err)
	}
	w.logger.Debug("Notification reconciled",
		zap.String("event_id", event.EventID),
		zap.String("order_id", res.OrderID),
		zap.Bool("changed", res.Changed))
	return nil
}

// Start starts the worker
func (w *ReconciliationWorker) Start(ctx context.Context) error {
	log.Println("Starting reconciliation worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReconciliationWorker) Stop() error {
	log.Println("Stopping reconciliation worker...")
	return w.consumer.Close()
}

// InlineDispatcher reconciles in the caller's goroutine. It serves
// single-process deployments where no durable queue is configured: business
// irregularities are absorbed, retryable failures go back to the caller so
// the provider redelivers.
type InlineDispatcher struct {
	engine Reconciler
	logger *zap.Logger
}

var _ service.ReconciliationQueue = (*InlineDispatcher)(nil)

// NewInlineDispatcher creates a new inline dispatcher
func NewInlineDispatcher(engine Reconciler) *InlineDispatcher {
	return &InlineDispatcher{engine: engine, logger: util.GetLogger()}
}

// Enqueue reconciles ev immediately
func (d *InlineDispatcher) Enqueue(ctx context.Context, ev *models.ReconciliationEvent) error {
	_, err := d.engine.Reconcile(ctx, *ev)
	return service.Absorb(d.logger, *ev, err)
}
