// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path and status
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamtip_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration observes request latency by method and path
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamtip_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// TipsQueuedTotal counts accepted tips by source chain
	TipsQueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamtip_tips_queued_total",
		Help: "Total number of tips accepted into open batches",
	}, []string{"chain_id"})

	// DuplicateTipsTotal counts replayed tip deliveries rejected by the ledger
	DuplicateTipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamtip_duplicate_tips_total",
		Help: "Total number of duplicate tip submissions rejected",
	})

	// BatchesClosedTotal counts closed batches by trigger (threshold, window, manual)
	BatchesClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamtip_batches_closed_total",
		Help: "Total number of batches closed for processing",
	}, []string{"trigger"})

	// SettlementsProcessedTotal counts finished orchestrator runs by outcome
	SettlementsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamtip_settlements_processed_total",
		Help: "Total number of settlement processing runs by outcome",
	}, []string{"outcome"})

	// BridgeInFlightGauge tracks settlements currently converting or bridging
	BridgeInFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamtip_bridge_in_flight",
		Help: "Number of settlements currently in converting or bridging",
	})

	// SettlementDuration observes close-to-completed latency
	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamtip_settlement_duration_seconds",
		Help:    "Time from batch close to completion",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	// DatabaseConnectionsGauge tracks connection pool state
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamtip_database_connections",
		Help: "Database connection pool state",
	}, []string{"state"})
)
