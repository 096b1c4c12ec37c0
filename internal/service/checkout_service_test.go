package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"tour-payments/internal/gateway"
	"tour-payments/internal/models"
	"tour-payments/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutStoresCreatedOrder(t *testing.T) {
	f := newFixture()

	res, err := f.checkout.Checkout(context.Background(), validRaw())
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	order := res.Order
	assert.Equal(t, models.PaymentStatusCreated, order.Intent.Status)
	assert.NotEmpty(t, order.Intent.ID)
	assert.Contains(t, order.Intent.RedirectURL, order.Intent.ID)
	assert.Equal(t, IdempotencyKey(order.ID), order.Intent.IdempotencyKey)

	stored, err := f.orders.FindByIntentID(context.Background(), order.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)

	assert.Equal(t, 1, f.gw.CreateCalls())
	require.Len(t, f.publisher.created, 1)
	assert.Equal(t, order.ID, f.publisher.created[0].OrderID)
}

func TestCheckoutSendsCanonicalTotal(t *testing.T) {
	f := newFixture()
	raw := validRaw()
	raw.TotalAmount = NewFlexNumber("5")

	res, err := f.checkout.Checkout(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(res.Order.TotalAmount))

	req, ok := f.gw.LastRequest(res.Order.Intent.ID)
	require.True(t, ok)
	sent := req.Items[0].UnitPrice.Mul(decimal.NewFromInt(int64(req.Items[0].Quantity)))
	assert.True(t, decimal.NewFromInt(1000).Equal(sent))
}

func TestCheckoutSameOrderIDCreatesOneIntent(t *testing.T) {
	f := newFixture()
	raw := validRaw()
	raw.OrderID = "client-order-7"

	first, err := f.checkout.Checkout(context.Background(), raw)
	require.NoError(t, err)
	second, err := f.checkout.Checkout(context.Background(), raw)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.Intent.ID, second.Order.Intent.ID)
	assert.Equal(t, 1, f.gw.CreateCalls())
}

func TestCheckoutConcurrentSameOrderID(t *testing.T) {
	f := newFixture()
	raw := validRaw()
	raw.OrderID = "client-order-8"

	var wg sync.WaitGroup
	ids := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.checkout.Checkout(context.Background(), raw)
			if assert.NoError(t, err) {
				ids <- res.Order.Intent.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)
	assert.Equal(t, 1, f.gw.CreateCalls())
}

func TestCheckoutValidationErrorSkipsGateway(t *testing.T) {
	f := newFixture()
	raw := validRaw()
	raw.TotalAmount = FlexNumber{}

	_, err := f.checkout.Checkout(context.Background(), raw)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "totalAmount")
	assert.Equal(t, 0, f.gw.CreateCalls())
}

func TestCheckoutGatewayFailureStoresNothing(t *testing.T) {
	f := newFixture()
	f.gw.FailNextCreate(&gateway.Error{Kind: gateway.KindAuthenticationFailed, Op: gateway.OpCreateIntent, StatusCode: 401})
	raw := validRaw()
	raw.OrderID = "client-order-9"

	_, err := f.checkout.Checkout(context.Background(), raw)
	require.Error(t, err)
	assert.Equal(t, gateway.KindAuthenticationFailed, gateway.KindOf(err))

	_, err = f.orders.Get(context.Background(), "client-order-9")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// cancelingGateway cancels the caller's context while the create is in flight
type cancelingGateway struct {
	*gateway.Fake
	cancel context.CancelFunc
}

func (g *cancelingGateway) CreateIntent(ctx context.Context, req *models.PaymentIntentRequest, key string) (*models.CreatedIntent, error) {
	g.cancel()
	return g.Fake.CreateIntent(ctx, req, key)
}

func TestCheckoutSurvivesCallerCancellation(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &cancelingGateway{Fake: f.gw, cancel: cancel}
	checkout := NewCheckoutService(newTestValidator(), newTestBuilder(), gw, f.orders, f.locks, nil, time.Second)

	raw := validRaw()
	raw.OrderID = "client-order-10"

	res, err := checkout.Checkout(ctx, raw)
	require.NoError(t, err)
	assert.Error(t, ctx.Err())

	stored, err := f.orders.Get(context.Background(), "client-order-10")
	require.NoError(t, err)
	assert.Equal(t, res.Order.Intent.ID, stored.Intent.ID)
}
