// Package gateway adapts the external payment processor. It is the only code
// that crosses the network boundary towards the provider and it never touches
// the order store.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"tour-payments/internal/models"
)

// Client is the capability set the service needs from a payment processor
type Client interface {
	CreateIntent(ctx context.Context, req *models.PaymentIntentRequest, idempotencyKey string) (*models.CreatedIntent, error)
	FetchIntentByID(ctx context.Context, intentID string) (*models.IntentSnapshot, error)
}

// ErrorKind classifies gateway failures by what the caller should do about them
type ErrorKind string

const (
	// KindAuthenticationFailed means bad credentials: fatal, never retried.
	KindAuthenticationFailed ErrorKind = "authenticationFailed"
	// KindInvalidRequest means the provider refused the payload: never retried.
	KindInvalidRequest ErrorKind = "invalidRequest"
	// KindTransientFailure covers network errors, timeouts, throttling and 5xx.
	KindTransientFailure ErrorKind = "transientFailure"
)

// Operation names used in errors and metrics
const (
	OpCreateIntent = "create_intent"
	OpFetchIntent  = "fetch_intent"
)

// Error is returned by every Client implementation
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s failed (%s, http %d): %s", e.Op, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("gateway %s failed (%s): %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind, treating unknown errors as transient
func KindOf(err error) ErrorKind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindTransientFailure
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindTransientFailure
}

func transient(op string, err error) *Error {
	return &Error{Kind: KindTransientFailure, Op: op, Err: err}
}
