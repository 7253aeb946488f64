// Package metrics exposes the mapper's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PublishAttempts counts per-subscriber delivery outcomes by result.
	PublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapper_publish_attempts_total",
		Help: "Per-subscriber fan-out delivery attempts by result.",
	}, []string{"mode", "result"})

	// HeadlinesStored counts headlines persisted by the ingestion pipeline.
	HeadlinesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mapper_headlines_stored_total",
		Help: "Headlines persisted by the ingestion pipeline.",
	})

	// Enhancements counts enhancement merge outcomes by result.
	Enhancements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapper_enhancements_total",
		Help: "Enhancement merge outcomes by result.",
	}, []string{"result"})

	// SourceClaims counts successful source rotation claims.
	SourceClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mapper_source_claims_total",
		Help: "Successful source rotation claims.",
	})
)
