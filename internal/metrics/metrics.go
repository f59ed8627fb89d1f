// Package metrics holds the driver's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsReceived counts bus messages per topic before normalization.
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_events_received_total",
		Help: "Bus messages received, by topic.",
	}, []string{"topic"})

	// EventsDropped counts terminally dropped events per topic and reason.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_events_dropped_total",
		Help: "Bus messages dropped without retry, by topic and reason.",
	}, []string{"topic", "reason"})

	// Reconciliations counts reconciliation passes by outcome
	// (ok, deferred, error).
	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_reconciliations_total",
		Help: "Reconciliation passes, by outcome.",
	}, []string{"outcome"})

	// SubscriberWrites counts persisted subscriber updates.
	SubscriberWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workflow_subscriber_writes_total",
		Help: "Subscriber rows written by the reconciler.",
	})
)
