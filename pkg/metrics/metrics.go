// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sweeper"

var (
	// Drain coordinator
	DrainTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "drain",
		Name:      "triggers_total",
		Help:      "Drain triggers received, by trigger source and outcome",
	}, []string{"trigger", "outcome"})

	DrainDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "drain",
		Name:      "duration_seconds",
		Help:      "Duration of drains that passed trigger evaluation",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	DrainMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "drain",
		Name:      "messages_total",
		Help:      "Transfer messages submitted, by kind",
	}, []string{"kind"})

	DrainNativeSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "drain",
		Name:      "native_committed_total",
		Help:      "Native coin committed by submitted plans (attachments plus remainder)",
	})

	DrainsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "drain",
		Name:      "in_flight",
		Help:      "Drains currently estimating or submitting",
	})

	SourceBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "native_balance",
		Help:      "Last observed native balance per source",
	}, []string{"source"})

	// Priority cache
	PriorityRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "priority",
		Name:      "refresh_total",
		Help:      "Priority cache refreshes, by result",
	}, []string{"result"})

	PriceLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "priority",
		Name:      "price_lookups_total",
		Help:      "Token price resolutions, by how the price was obtained",
	}, []string{"resolution"})

	// Outbound HTTP
	ExternalRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "external",
		Name:      "request_duration_seconds",
		Help:      "Latency of calls to external collaborators",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"client", "operation", "result"})

	// Inbound HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of inbound HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// Audit log pool
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "connections",
		Help:      "Audit log connection pool usage",
	}, []string{"state"})
)
