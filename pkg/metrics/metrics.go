// Package metrics holds the Prometheus collectors shared by the status hub,
// the presence sessions and the archive recorder.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status hub metrics
var (
	// PollTicksTotal counts poll ticks, split into idle ticks and ticks that queried.
	PollTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatus_poll_ticks_total",
			Help: "Total poll ticks by outcome (idle/queried)",
		},
		[]string{"outcome"},
	)

	// PollQueriesTotal counts chunk queries by result.
	PollQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatus_poll_queries_total",
			Help: "Total batched status queries by result (success/error)",
		},
		[]string{"result"},
	)

	// PollQueryDuration tracks the latency of a single chunk query.
	PollQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livestatus_poll_query_duration_seconds",
			Help:    "Duration of a single batched status query in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// PollIDsPerTick tracks how many valid ids a tick queried.
	PollIDsPerTick = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livestatus_poll_ids_per_tick",
			Help:    "Number of entity ids included in a poll tick",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// RegisteredKeys is the number of keys with at least one listener.
	RegisteredKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livestatus_registered_keys",
			Help: "Number of entity keys with at least one listener",
		},
	)

	// Subscriptions is the number of open subscriptions across all keys.
	Subscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livestatus_subscriptions",
			Help: "Number of open status subscriptions",
		},
	)
)

// Presence metrics
var (
	// PresenceCallsTotal counts presence calls by call and result.
	PresenceCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatus_presence_calls_total",
			Help: "Total presence calls by call (join/heartbeat/leave) and result (success/error)",
		},
		[]string{"call", "result"},
	)

	// PresenceActivations is the number of presence activations not yet torn down.
	PresenceActivations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livestatus_presence_activations",
			Help: "Number of live presence activations (joining or active)",
		},
	)
)

// Archive metrics
var (
	// ArchiveObservationsDropped counts observations dropped because the recorder was full or stopped.
	ArchiveObservationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livestatus_archive_observations_dropped_total",
			Help: "Observations dropped before reaching the archive",
		},
	)

	// ArchiveFlushesTotal counts archive flushes by result.
	ArchiveFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatus_archive_flushes_total",
			Help: "Total archive batch flushes by result (success/error)",
		},
		[]string{"result"},
	)
)
