package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tour-payments/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(id, intentID string) *models.Order {
	return &models.Order{
		ID:            id,
		PackageName:   "Cancun-5d",
		TravelerCount: 2,
		CustomerEmail: "a@b.com",
		UnitPrice:     decimal.NewFromInt(500),
		TotalAmount:   decimal.NewFromInt(1000),
		Currency:      "MXN",
		Intent: models.PaymentIntent{
			ID:             intentID,
			IdempotencyKey: "key-" + id,
			Status:         models.PaymentStatusCreated,
		},
	}
}

func TestMemoryPutAndGet(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newOrder("o-1", "i-1")))

	got, err := s.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "Cancun-5d", got.PackageName)
	assert.Equal(t, models.PaymentStatusCreated, got.Intent.Status)
	assert.False(t, got.CreatedAt.IsZero())

	byIntent, err := s.FindByIntentID(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, "o-1", byIntent.ID)
}

func TestMemoryPutRejectsDuplicates(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newOrder("o-1", "i-1")))
	assert.ErrorIs(t, s.Put(ctx, newOrder("o-1", "i-2")), ErrOrderExists)
	assert.ErrorIs(t, s.Put(ctx, newOrder("o-2", "i-1")), ErrOrderExists)
}

func TestMemoryNotFound(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindByIntentID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateStatus(ctx, "missing", models.PaymentStatusApproved)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, newOrder("o-1", "i-1")))

	got, err := s.Get(ctx, "o-1")
	require.NoError(t, err)
	got.Intent.Status = models.PaymentStatusApproved
	got.PackageName = "tampered"

	again, err := s.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCreated, again.Intent.Status)
	assert.Equal(t, "Cancun-5d", again.PackageName)
}

func TestMemoryUpdateStatus(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, newOrder("o-1", "i-1")))

	prev, err := s.UpdateStatus(ctx, "o-1", models.PaymentStatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCreated, prev)

	prev, err = s.UpdateStatus(ctx, "o-1", models.PaymentStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, prev)

	prev, err = s.UpdateStatus(ctx, "o-1", models.PaymentStatusRejected)
	require.Error(t, err)
	assert.Equal(t, models.PaymentStatusApproved, prev)

	var illegal *IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
	assert.Equal(t, models.PaymentStatusApproved, illegal.From)
	assert.Equal(t, models.PaymentStatusRejected, illegal.To)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	got, err := s.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, got.Intent.Status)
}

func TestMemoryConcurrentUpdatesApplyOnce(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, newOrder("o-1", "i-1")))

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.UpdateStatus(ctx, "o-1", models.PaymentStatusApproved); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 0, s.locks.Len())
}

func TestMemoryList(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, newOrder("o-1", "i-1")))
	require.NoError(t, s.Put(ctx, newOrder("o-2", "i-2")))
	require.NoError(t, s.Put(ctx, newOrder("o-3", "i-3")))

	orders, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}
