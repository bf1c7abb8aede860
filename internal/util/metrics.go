package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders committed",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of aborted order creations",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of committed order status transitions",
	}, []string{"status"})

	StockReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	OrderTxLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_tx_latency_seconds",
		Help:    "Latency of order transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	EventPublisherBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "event_publisher_breaker_state",
		Help: "Event publisher circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"breaker"})

	StockCacheRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_cache_refresh_total",
		Help: "Total number of stock mirror refreshes",
	}, []string{"outcome"})

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
