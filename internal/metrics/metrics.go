// Package metrics defines the Prometheus collectors of the membership core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "streamshare"

// Metrics groups every collector the services record to.
type Metrics struct {
	SweepRuns       *prometheus.CounterVec
	SweepMarked     prometheus.Counter
	SweepFailedRows prometheus.Counter
	SweepDuration   prometheus.Histogram

	Deliveries      *prometheus.CounterVec
	Confirmations   *prometheus.CounterVec
	ConflictRetries prometheus.Counter

	JoinDecisions      *prometheus.CounterVec
	MembersRemoved     prometheus.Counter
	MembersLeft        *prometheus.CounterVec
	OwnershipTransfers prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Overdue sweep runs by result.",
		}, []string{"result"}),
		SweepMarked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "marked_total",
			Help:      "Memberships moved to OVERDUE by the sweep.",
		}),
		SweepFailedRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "failed_rows_total",
			Help:      "Eligible memberships the sweep could not update.",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Overdue sweep duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access",
			Name:      "deliveries_total",
			Help:      "Access data deliveries by type.",
		}, []string{"type"}),
		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access",
			Name:      "confirmations_total",
			Help:      "Member responses to a delivery by outcome.",
		}, []string{"outcome"}),
		ConflictRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access",
			Name:      "conflict_retries_total",
			Help:      "Status updates retried after losing an optimistic-lock race.",
		}),
		JoinDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "join_decisions_total",
			Help:      "Join requests responded to by decision.",
		}, []string{"decision"}),
		MembersRemoved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "removed_total",
			Help:      "Members removed by an owner or admin.",
		}),
		MembersLeft: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "left_total",
			Help:      "Members who left, by the branch taken.",
		}, []string{"outcome"}),
		OwnershipTransfers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "ownership_transfers_total",
			Help:      "Ownership transfers, explicit or by succession.",
		}),
	}
}

// NewUnregistered builds collectors on a private registry, for tests and
// callers that do not export metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
