// Package metrics holds the process-wide Prometheus collectors. Counters
// only; the HTTP server exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ponziland_events_ingested_total",
		Help: "Events persisted by the event ingester, by kind.",
	}, []string{"kind"})

	EventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ponziland_events_duplicate_total",
		Help: "Events dropped as already ingested (unique violation).",
	})

	ModelsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ponziland_models_upserted_total",
		Help: "Model snapshots upserted by the model ingester, by model.",
	}, []string{"model"})

	PositionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ponziland_positions_opened_total",
		Help: "Land positions opened by the PnL deriver.",
	})

	PositionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ponziland_positions_closed_total",
		Help: "Land positions closed by the PnL deriver, by exit type.",
	}, []string{"exit_type"})

	PriceRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ponziland_price_refreshes_total",
		Help: "Price snapshot refreshes, by source and outcome.",
	}, []string{"source", "outcome"})

	DeriverErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ponziland_deriver_errors_total",
		Help: "Errors encountered by derivers, by worker.",
	}, []string{"worker"})

	FanoutLagged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ponziland_fanout_lagged_total",
		Help: "Fan-out notifications dropped on slow subscribers.",
	})
)
