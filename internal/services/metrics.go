// Package services – Prometheus instrumentation
//
// This file exposes domain-level counters for the order pipeline. HTTP-level
// metrics (request counts, latencies) live in the middleware layer; the
// collectors here track business events instead, with label cardinality
// bounded by the fixed status and event vocabularies.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// ordersIngested counts orders accepted from webhook payloads.
	ordersIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_ingested_total",
			Help: "Total number of orders created from webhook payloads.",
		},
	)

	// ordersDuplicate counts webhook deliveries that matched an existing order.
	ordersDuplicate = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_duplicate_total",
			Help: "Total number of webhook deliveries resolved as duplicates.",
		},
	)

	// statusTransitions counts successful lifecycle transitions by target status.
	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Total number of order status transitions.",
		},
		[]string{"to"},
	)

	// notifyFailures counts Telegram notifications that could not be delivered.
	notifyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of failed Telegram notifications.",
		},
	)
)

func init() {
	prometheus.MustRegister(ordersIngested, ordersDuplicate, statusTransitions, notifyFailures)
}
