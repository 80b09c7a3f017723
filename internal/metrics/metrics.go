// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckIns counts check-in attempts by resource kind and outcome (created, duplicate).
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus",
		Name:      "checkins_total",
		Help:      "Check-in attempts by resource kind and outcome.",
	}, []string{"resource", "outcome"})

	Approvals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus",
		Name:      "attendance_approvals_total",
		Help:      "Attendance approvals by outcome.",
	}, []string{"outcome"})

	// Notifications counts published notifications by whether a live subscriber got them.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus",
		Name:      "notifications_total",
		Help:      "Notifications written to the durable log, by live delivery result.",
	}, []string{"type", "live"})

	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus",
		Name:      "docstore_stale_retries_total",
		Help:      "Collection writes retried after a stale version stamp.",
	}, []string{"collection"})

	AuditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "campus",
		Name:      "audit_write_failures_total",
		Help:      "Audit entries that could not be persisted.",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "campus",
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})
)
