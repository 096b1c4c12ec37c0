package gateway

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"tour-payments/internal/models"
	"tour-payments/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RetryPolicy bounds how hard we push a struggling provider
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// AttemptTimeout is the longest one attempt may take, round trips included
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy is used when a zero policy is supplied
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	BaseDelay:      500 * time.Millisecond,
	MaxDelay:       5 * time.Second,
	AttemptTimeout: 10 * time.Second,
}

// Budget covers every attempt plus the longest backoff between them
func (p RetryPolicy) Budget() time.Duration {
	return p.AttemptTimeout*time.Duration(p.MaxAttempts) + p.MaxDelay*time.Duration(p.MaxAttempts-1)
}

// Retrying decorates a Client with bounded retries for transient failures.
// Concurrent fetches of the same intent share one upstream call.
type Retrying struct {
	next   Client
	policy RetryPolicy
	group  singleflight.Group
	logger *zap.Logger

	mu   sync.Mutex
	rand *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
}

var _ Client = (*Retrying)(nil)

// NewRetrying wraps next with the given policy
func NewRetrying(next Client, policy RetryPolicy) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = DefaultRetryPolicy.AttemptTimeout
	}
	return &Retrying{
		next:   next,
		policy: policy,
		logger: util.GetLogger(),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
}

// CreateIntent retries with the same idempotency key, so the provider
// collapses repeats into one intent.
func (r *Retrying) CreateIntent(ctx context.Context, req *models.PaymentIntentRequest, idempotencyKey string) (*models.CreatedIntent, error) {
	var created *models.CreatedIntent
	err := r.retry(ctx, OpCreateIntent, func(ctx context.Context) error {
		var err error
		created, err = r.next.CreateIntent(ctx, req, idempotencyKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// FetchIntentByID retries reads and deduplicates concurrent lookups. The
// shared call is detached from every caller and bounded by the policy budget,
// so one caller giving up does not fail the others; each caller still stops
// waiting when its own context is done.
func (r *Retrying) FetchIntentByID(ctx context.Context, intentID string) (*models.IntentSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(OpFetchIntent, err)
	}
	ch := r.group.DoChan(intentID, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.policy.Budget())
		defer cancel()

		var snap *models.IntentSnapshot
		err := r.retry(shared, OpFetchIntent, func(ctx context.Context) error {
			var err error
			snap, err = r.next.FetchIntentByID(ctx, intentID)
			return err
		})
		return snap, err
	})

	select {
	case <-ctx.Done():
		return nil, transient(OpFetchIntent, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		snap := *res.Val.(*models.IntentSnapshot)
		return &snap, nil
	}
}

func (r *Retrying) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransient(err) || attempt == r.policy.MaxAttempts {
			return err
		}

		delay := r.backoff(attempt)
		util.GatewayRetriesTotal.WithLabelValues(op).Inc()
		r.logger.Warn("Gateway call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
	return err
}

// backoff returns base*2^(attempt-1) capped at MaxDelay, with jitter on the upper half
func (r *Retrying) backoff(attempt int) time.Duration {
	d := r.policy.BaseDelay << uint(attempt-1)
	if d <= 0 || d > r.policy.MaxDelay {
		d = r.policy.MaxDelay
	}
	half := d / 2
	r.mu.Lock()
	jitter := time.Duration(r.rand.Int63n(int64(half) + 1))
	r.mu.Unlock()
	return half + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
