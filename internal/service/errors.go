package service

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationKind tells the caller which rule a submission broke
type ValidationKind string

const (
	KindMissingFields        ValidationKind = "missingFields"
	KindInvalidAmount        ValidationKind = "invalidAmount"
	KindInvalidTravelerCount ValidationKind = "invalidTravelerCount"
	KindInvalidEmail         ValidationKind = "invalidEmail"
	KindInvalidPhone         ValidationKind = "invalidPhone"
	KindInvalidOrderID       ValidationKind = "invalidOrderId"
)

// ValidationError is a client-caused rejection of an order submission
type ValidationError struct {
	Kind   ValidationKind
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation failed: %s", e.Kind)
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Kind, strings.Join(e.Fields, ", "))
}

// BuildError is returned when an order does not survive the final structural check
type BuildError struct {
	Kind   string
	Reason string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("cannot build payment intent (%s): %s", e.Kind, e.Reason)
}

const buildKindInvalidOrder = "invalidOrder"

var (
	// ErrUnknownIntent means a notification referenced an intent we never created
	ErrUnknownIntent = errors.New("unknown payment intent")

	// ErrReferenceMismatch means the provider ties the intent to a different order
	ErrReferenceMismatch = errors.New("provider external reference does not match order")

	// ErrIngestion wraps failures to hand a notification over for reconciliation
	ErrIngestion = errors.New("notification ingestion failed")
)
