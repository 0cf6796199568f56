// Package metrics exposes the process counters scraped at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chathub_live_connections",
		Help: "Number of live websocket connections.",
	})
	MessagesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chathub_messages_stored_total",
		Help: "Messages accepted and persisted.",
	})
	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chathub_events_delivered_total",
		Help: "Events delivered to connection sinks.",
	})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chathub_events_dropped_total",
		Help: "Events dropped because a sink was full or slow.",
	})
)
