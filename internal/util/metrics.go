package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders stored with a payment intent",
	})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of order submissions rejected before reaching the gateway",
	}, []string{"reason"})

	OrdersReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_replayed_total",
		Help: "Total number of submissions answered from an existing order",
	})

	OrderTotalCorrectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_total_corrected_total",
		Help: "Total number of submissions whose totalAmount disagreed with unitPrice x travelers",
	})

	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total number of payment gateway calls",
	}, []string{"operation", "outcome"})

	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	GatewayRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_retries_total",
		Help: "Total number of retried payment gateway calls",
	}, []string{"operation"})

	WebhookNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_notifications_total",
		Help: "Total number of provider notifications by ingestion outcome",
	}, []string{"outcome"})

	ReconciliationTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_transitions_total",
		Help: "Total number of applied payment status transitions",
	}, []string{"from", "to"})

	ReconciliationIrregularitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_irregularities_total",
		Help: "Total number of absorbed reconciliation anomalies",
	}, []string{"kind"})

	ReconciliationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciliation_latency_seconds",
		Help:    "Latency of a full reconciliation including the authoritative fetch",
		Buckets: prometheus.DefBuckets,
	})

	FulfillmentConfirmationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_confirmations_total",
		Help: "Total number of orders handed to fulfillment",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
