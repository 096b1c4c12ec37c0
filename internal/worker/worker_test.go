package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tour-payments/internal/gateway"
	"tour-payments/internal/models"
	"tour-payments/internal/service"
	"tour-payments/internal/store"

	"github.com/stretchr/testify/assert"
)

type stubReconciler struct {
	err   error
	calls int
}

func (s *stubReconciler) Reconcile(_ context.Context, ev models.ReconciliationEvent) (*service.ReconcileResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &service.ReconcileResult{IntentID: ev.IntentID}, nil
}

func TestInlineDispatcherAbsorbsIrregularities(t *testing.T) {
	absorbed := []error{
		fmt.Errorf("%w: 123", service.ErrUnknownIntent),
		&store.IllegalTransitionError{OrderID: "o", From: models.PaymentStatusApproved, To: models.PaymentStatusRejected},
		&gateway.Error{Kind: gateway.KindInvalidRequest, Op: gateway.OpFetchIntent, StatusCode: 404},
	}
	for _, err := range absorbed {
		d := NewInlineDispatcher(&stubReconciler{err: err})
		assert.NoError(t, d.Enqueue(context.Background(), &models.ReconciliationEvent{IntentID: "123"}), err.Error())
	}
}

func TestInlineDispatcherSurfacesRetryable(t *testing.T) {
	retryable := []error{
		&gateway.Error{Kind: gateway.KindTransientFailure, Op: gateway.OpFetchIntent, StatusCode: 503},
		store.ErrConcurrencyConflict,
		errors.New("connection reset"),
	}
	for _, err := range retryable {
		d := NewInlineDispatcher(&stubReconciler{err: err})
		assert.Error(t, d.Enqueue(context.Background(), &models.ReconciliationEvent{IntentID: "123"}), err.Error())
	}
}

func TestWorkerHandleCommitsAbsorbedErrors(t *testing.T) {
	stub := &stubReconciler{err: service.ErrUnknownIntent}
	w := NewReconciliationWorker(nil, stub)

	err := w.handle(context.Background(), &models.ReconciliationRequestedEvent{
		Notification: models.ReconciliationEvent{IntentID: "nope"},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, stub.calls)

	stub.err = &gateway.Error{Kind: gateway.KindTransientFailure}
	assert.Error(t, w.handle(context.Background(), &models.ReconciliationRequestedEvent{}))
}
