package service

import (
	"errors"

	"tour-payments/internal/gateway"
	"tour-payments/internal/models"
	"tour-payments/internal/store"
	"tour-payments/internal/util"

	"go.uber.org/zap"
)

// IrregularityKind classifies a reconciliation failure that must not be
// retried: the provider has no recourse and a redelivery would fail the same
// way. The second return is false for errors worth retrying.
func IrregularityKind(err error) (string, bool) {
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, ErrUnknownIntent):
		return "unknown_intent", true
	case errors.Is(err, store.ErrIllegalTransition):
		return "illegal_transition", true
	case errors.Is(err, ErrReferenceMismatch):
		return "reference_mismatch", true
	}
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) && gwErr.Kind != gateway.KindTransientFailure {
		return "gateway_" + string(gwErr.Kind), true
	}
	return "", false
}

// Absorb records an irregularity and swallows it. Retryable errors are
// returned unchanged.
func Absorb(logger *zap.Logger, ev models.ReconciliationEvent, err error) error {
	kind, ok := IrregularityKind(err)
	if !ok {
		return err
	}
	util.ReconciliationIrregularitiesTotal.WithLabelValues(kind).Inc()
	logger.Warn("Reconciliation irregularity absorbed",
		zap.String("kind", kind),
		zap.String("intent_id", ev.IntentID),
		zap.String("delivery_id", ev.DeliveryID),
		zap.Error(err))
	return nil
}
