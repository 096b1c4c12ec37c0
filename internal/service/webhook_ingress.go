package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tour-payments/internal/models"
	"tour-payments/internal/util"

	"go.uber.org/zap"
)

// Reasons a notification is acknowledged without reconciliation
const (
	IgnoredUnsupportedType = "unsupported_type"
	IgnoredMissingID       = "missing_id"
	IgnoredDuplicate       = "duplicate"
)

// FlexID accepts identifiers sent either as JSON strings or numbers
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s", b)
	}
	*f = FlexID(n.String())
	return nil
}

// RawNotification is the provider envelope as received, plus the query
// string for the legacy topic/id form.
type RawNotification struct {
	ID          FlexID `json:"id"`
	Type        string `json:"type"`
	Topic       string `json:"topic"`
	Action      string `json:"action"`
	LiveMode    bool   `json:"live_mode"`
	DateCreated string `json:"date_created"`
	Data        struct {
		ID FlexID `json:"id"`
	} `json:"data"`

	Query      url.Values `json:"-"`
	ReceivedAt time.Time  `json:"-"`
}

// IngressResult is either an accepted event or an ignored notification
type IngressResult struct {
	Event   *models.ReconciliationEvent
	Ignored bool
	Reason  string
}

// WebhookIngress filters and deduplicates provider notifications before
// handing them to the reconciliation queue.
type WebhookIngress struct {
	dedup  DedupWindow
	queue  ReconciliationQueue
	bucket time.Duration
	logger *zap.Logger
}

// DefaultDedupBucket keeps the window without a delivery id short: two
// notifications for the same intent inside one bucket are one fetch, so a
// status change landing in the same bucket waits for the provider's next retry.
const DefaultDedupBucket = 10 * time.Second

// NewWebhookIngress creates the ingress. bucket sizes the receivedAt window
// used for dedup when the provider sends no delivery id.
func NewWebhookIngress(dedup DedupWindow, queue ReconciliationQueue, bucket time.Duration) *WebhookIngress {
	if bucket <= 0 {
		bucket = DefaultDedupBucket
	}
	return &WebhookIngress{
		dedup:  dedup,
		queue:  queue,
		bucket: bucket,
		logger: util.GetLogger(),
	}
}

// Handle converts a raw notification into a ReconciliationEvent and enqueues
// it. A nil error means the provider can be acknowledged.
func (w *WebhookIngress) Handle(ctx context.Context, raw RawNotification) (*IngressResult, error) {
	ctx, span := util.StartSpan(ctx, "WebhookIngress.Handle")
	defer span.End()

	if raw.ReceivedAt.IsZero() {
		raw.ReceivedAt = time.Now().UTC()
	}

	eventType := strings.ToLower(firstNonEmpty(raw.Type, raw.Topic, raw.Query.Get("type"), raw.Query.Get("topic")))
	if eventType != models.ProviderEventTypePayment {
		return w.ignore(IgnoredUnsupportedType, zap.String("type", eventType))
	}

	intentID := strings.TrimSpace(firstNonEmpty(string(raw.Data.ID), raw.Query.Get("data.id"), raw.Query.Get("id")))
	if intentID == "" {
		return w.ignore(IgnoredMissingID)
	}

	ev := &models.ReconciliationEvent{
		ProviderEventType: eventType,
		IntentID:          intentID,
		DeliveryID:        string(raw.ID),
		Action:            raw.Action,
		ReceivedAt:        raw.ReceivedAt,
	}

	key := w.dedupKey(ev)
	first, err := w.dedup.FirstSeen(ctx, key)
	if err != nil {
		// Reconciliation is idempotent; a broken window only costs a fetch.
		w.logger.Warn("Dedup window unavailable, accepting notification",
			zap.String("key", key), zap.Error(err))
		first = true
	}
	if !first {
		return w.ignore(IgnoredDuplicate, zap.String("intent_id", intentID))
	}

	if err := w.queue.Enqueue(ctx, ev); err != nil {
		if fErr := w.dedup.Forget(ctx, key); fErr != nil {
			w.logger.Warn("Failed to forget dedup key", zap.String("key", key), zap.Error(fErr))
		}
		util.WebhookNotificationsTotal.WithLabelValues("failed").Inc()
		util.RecordError(span, err)
		return nil, fmt.Errorf("%w: %v", ErrIngestion, err)
	}

	util.WebhookNotificationsTotal.WithLabelValues("accepted").Inc()
	w.logger.Info("Notification accepted",
		zap.String("intent_id", intentID),
		zap.String("delivery_id", ev.DeliveryID),
		zap.String("action", ev.Action))

	return &IngressResult{Event: ev}, nil
}

func (w *WebhookIngress) dedupKey(ev *models.ReconciliationEvent) string {
	if ev.DeliveryID != "" {
		return "delivery:" + ev.DeliveryID
	}
	return fmt.Sprintf("%s:%s:%d", ev.ProviderEventType, ev.IntentID, ev.ReceivedAt.Truncate(w.bucket).Unix())
}

func (w *WebhookIngress) ignore(reason string, fields ...zap.Field) (*IngressResult, error) {
	util.WebhookNotificationsTotal.WithLabelValues("ignored_" + reason).Inc()
	w.logger.Debug("Notification ignored", append(fields, zap.String("reason", reason))...)
	return &IngressResult{Ignored: true, Reason: reason}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
