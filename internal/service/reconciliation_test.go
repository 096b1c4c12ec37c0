package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tour-payments/internal/gateway"
	"tour-payments/internal/models"
	"tour-payments/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func checkedOut(t *testing.T, f *fixture) *models.Order {
	t.Helper()
	res, err := f.checkout.Checkout(context.Background(), validRaw())
	require.NoError(t, err)
	return res.Order
}

func TestReconcileApprovesAndFulfillsOnce(t *testing.T) {
	f := newFixture()
	order := checkedOut(t, f)
	f.gw.SetStatus(order.Intent.ID, "approved")

	res, err := f.engine.Reconcile(context.Background(), event(order.Intent.ID))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Fulfilled)
	assert.Equal(t, models.PaymentStatusCreated, res.Previous)
	assert.Equal(t, models.PaymentStatusApproved, res.Current)

	res, err = f.engine.Reconcile(context.Background(), event(order.Intent.ID))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.False(t, res.Fulfilled)

	assert.Equal(t, 1, f.notifier.count())
	require.Len(t, f.publisher.changed, 1)
	assert.Equal(t, models.PaymentStatusApproved, f.publisher.changed[0].To)
}

func TestReconcileTerminalStatesAreSticky(t *testing.T) {
	f := newFixture()
	order := checkedOut(t, f)
	ctx := context.Background()

	f.gw.SetStatus(order.Intent.ID, "in_process")
	res, err := f.engine.Reconcile(ctx, event(order.Intent.ID))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, res.Current)

	f.gw.SetStatus(order.Intent.ID, "approved")
	_, err = f.engine.Reconcile(ctx, event(order.Intent.ID))
	require.NoError(t, err)

	f.gw.SetStatus(order.Intent.ID, "rejected")
	_, err = f.engine.Reconcile(ctx, event(order.Intent.ID))
	assert.ErrorIs(t, err, store.ErrIllegalTransition)

	f.gw.SetStatus(order.Intent.ID, "pending")
	_, err = f.engine.Reconcile(ctx, event(order.Intent.ID))
	assert.ErrorIs(t, err, store.ErrIllegalTransition)

	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, stored.Intent.Status)
	assert.Equal(t, 1, f.notifier.count())
}

func TestReconcileUnknownIntent(t *testing.T) {
	f := newFixture()
	f.gw.SetStatus("never-created", "approved")

	_, err := f.engine.Reconcile(context.Background(), event("never-created"))
	assert.ErrorIs(t, err, ErrUnknownIntent)

	orders, err := f.orders.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, 0, f.gw.FetchCalls())
	assert.Equal(t, 0, f.notifier.count())
}

func TestReconcileTransientFetchLeavesOrderUntouched(t *testing.T) {
	f := newFixture()
	order := checkedOut(t, f)
	f.gw.SetStatus(order.Intent.ID, "approved")
	f.gw.FailNextFetch(&gateway.Error{Kind: gateway.KindTransientFailure, Op: gateway.OpFetchIntent, StatusCode: 503})

	_, err := f.engine.Reconcile(context.Background(), event(order.Intent.ID))
	require.Error(t, err)
	assert.True(t, gateway.IsTransient(err))

	stored, err := f.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCreated, stored.Intent.Status)

	// The redelivery succeeds
	_, err = f.engine.Reconcile(context.Background(), event(order.Intent.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.count())
}

func TestReconcileConcurrentDeliveriesFulfillOnce(t *testing.T) {
	f := newFixture()
	order := checkedOut(t, f)
	f.gw.SetStatus(order.Intent.ID, "approved")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Reconcile(context.Background(), event(order.Intent.ID))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, 0, f.locks.Len())
}

func TestReconcileCancelledCheckout(t *testing.T) {
	f := newFixture()
	order := checkedOut(t, f)
	f.gw.SetStatus(order.Intent.ID, "cancelled")

	res, err := f.engine.Reconcile(context.Background(), event(order.Intent.ID))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, res.Current)
	assert.False(t, res.Fulfilled)
}

func TestReconcileResolvesPaymentByReference(t *testing.T) {
	f := newFixture()
	f.engine.ResolveByReference(true)
	order := checkedOut(t, f)

	paymentID, err := f.gw.Pay(order.Intent.ID, "approved")
	require.NoError(t, err)

	res, err := f.engine.Reconcile(context.Background(), event(paymentID))
	require.NoError(t, err)
	assert.Equal(t, order.ID, res.OrderID)
	assert.True(t, res.Fulfilled)

	_, err = f.engine.Reconcile(context.Background(), event(paymentID))
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.count())
}

// changingGateway moves the provider status right after the first fetch
type changingGateway struct {
	*gateway.Fake
	mu      sync.Mutex
	fetches int
	change  func()
}

func (g *changingGateway) FetchIntentByID(ctx context.Context, id string) (*models.IntentSnapshot, error) {
	snap, err := g.Fake.FetchIntentByID(ctx, id)
	g.mu.Lock()
	g.fetches++
	first := g.fetches == 1
	g.mu.Unlock()
	if first {
		g.change()
	}
	return snap, err
}

func TestReconcileByReferenceUsesStatusReadUnderLock(t *testing.T) {
	f := newFixture()
	order := checkedOut(t, f)

	paymentID, err := f.gw.Pay(order.Intent.ID, "in_process")
	require.NoError(t, err)

	gw := &changingGateway{Fake: f.gw, change: func() { f.gw.SetStatus(paymentID, "approved") }}
	engine := NewEngine(f.orders, gw, f.locks, f.notifier, f.publisher)
	engine.ResolveByReference(true)

	res, err := engine.Reconcile(context.Background(), event(paymentID))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, res.Current)
	assert.True(t, res.Fulfilled)
	assert.Equal(t, 2, gw.fetches)
}

func TestReconcileReferenceFallbackUnknownOrder(t *testing.T) {
	f := newFixture()
	f.engine.ResolveByReference(true)

	// Payments with no reference, and ids the provider does not know, never create orders
	f.gw.SetStatus("orphan-payment", "approved")
	_, err := f.engine.Reconcile(context.Background(), event("orphan-payment"))
	assert.ErrorIs(t, err, ErrUnknownIntent)

	_, err = f.engine.Reconcile(context.Background(), event("missing"))
	assert.ErrorIs(t, err, ErrUnknownIntent)

	orders, err := f.orders.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestReconcileReferenceFallbackTransientFetch(t *testing.T) {
	f := newFixture()
	f.engine.ResolveByReference(true)
	f.gw.FailNextFetch(&gateway.Error{Kind: gateway.KindTransientFailure, Op: gateway.OpFetchIntent})

	_, err := f.engine.Reconcile(context.Background(), event("pay-1"))
	require.Error(t, err)
	assert.True(t, gateway.IsTransient(err))
	assert.NotErrorIs(t, err, ErrUnknownIntent)
}

func TestIrregularityKind(t *testing.T) {
	tests := []struct {
		err  error
		kind string
		ok   bool
	}{
		{ErrUnknownIntent, "unknown_intent", true},
		{&store.IllegalTransitionError{From: models.PaymentStatusApproved, To: models.PaymentStatusRejected}, "illegal_transition", true},
		{ErrReferenceMismatch, "reference_mismatch", true},
		{&gateway.Error{Kind: gateway.KindInvalidRequest}, "gateway_invalidRequest", true},
		{&gateway.Error{Kind: gateway.KindTransientFailure}, "", false},
		{store.ErrConcurrencyConflict, "", false},
		{errors.New("db down"), "", false},
	}
	for _, tt := range tests {
		kind, ok := IrregularityKind(tt.err)
		assert.Equal(t, tt.kind, kind, tt.err.Error())
		assert.Equal(t, tt.ok, ok, tt.err.Error())
	}

	assert.NoError(t, Absorb(zap.NewNop(), event("x"), ErrUnknownIntent))
	assert.Error(t, Absorb(zap.NewNop(), event("x"), errors.New("db down")))
}
