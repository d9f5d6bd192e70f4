package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insidertrack",
			Name:      "ingestion_runs_total",
			Help:      "Total number of ingestion runs by final status.",
		},
		[]string{"source", "status"},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insidertrack",
			Name:      "trades_total",
			Help:      "Trades handled by ingestion, by outcome.",
		},
		[]string{"source", "outcome"}, // outcome: processed/duplicate/updated/invalid/blocked/filtered/error
	)

	FetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insidertrack",
			Name:      "fetch_errors_total",
			Help:      "Source fetch failures by kind.",
		},
		[]string{"source", "kind"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "insidertrack",
			Name:      "ingestion_run_duration_seconds",
			Help:      "Duration of ingestion runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "insidertrack",
			Name:      "source_breaker_state",
			Help:      "Source cooldown breaker state (0 closed, 1 half-open, 2 open).",
		},
		[]string{"source"},
	)
)

func MustRegister() {
	prometheus.MustRegister(RunsTotal, TradesTotal, FetchErrorsTotal, RunDuration, BreakerState)
}

// ObserveBreakerState is a breaker state-change hook.
func ObserveBreakerState(name string, _, to gobreaker.State) {
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	BreakerState.WithLabelValues(name).Set(v)
}
