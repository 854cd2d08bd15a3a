// Package metrics provides Prometheus metrics for the registry pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncsTotal tracks processed sync messages by entity type and outcome
	SyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "messages_total",
			Help:      "Total number of sync messages processed by outcome",
		},
		[]string{"entity_type", "outcome"},
	)

	// MatchesTotal tracks matches found by profile
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "matches_total",
			Help:      "Total number of entity pairs matched by profile",
		},
		[]string{"profile", "link_type"},
	)

	// MatchDuration tracks how long one match request takes
	MatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "request_duration_seconds",
			Help:      "Duration of match request evaluation in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"entity_type"},
	)

	// CatalogErrorsTotal tracks profiles skipped because they are malformed
	CatalogErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "catalog_errors_total",
			Help:      "Total number of malformed matching profiles skipped",
		},
		[]string{"profile"},
	)

	// LinkCommitsTotal tracks link commits by kind (created, joined, merged)
	LinkCommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "links",
			Name:      "commits_total",
			Help:      "Total number of committed link changes by kind",
		},
		[]string{"link_type", "kind"},
	)

	// LinkConflictsTotal tracks optimistic concurrency collisions during link merges
	LinkConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "links",
			Name:      "conflicts_total",
			Help:      "Total number of link merge attempts that lost a version race",
		},
		[]string{"link_type"},
	)

	// MessagesTotal tracks consumed queue messages by topic and outcome
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "queue",
			Name:      "messages_total",
			Help:      "Total number of queue messages handled by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	// DLQMessagesTotal tracks messages sent to the dead letter queue
	DLQMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "queue",
			Name:      "dlq_messages_total",
			Help:      "Total number of messages sent to the dead letter queue",
		},
		[]string{"topic"},
	)
)
