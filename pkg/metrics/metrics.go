package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics for the dispatch service.
type Metrics struct {
	BookingsCreated      prometheus.Counter
	BookingsApproved     prometheus.Counter
	BookingsCompleted    prometheus.Counter
	BookingsCancelled    prometheus.Counter
	SchedulingConflicts  prometheus.Counter
	MergesTotal          prometheus.Counter
	UnmergesTotal        prometheus.Counter
	PassengersRemoved    prometheus.Counter
	NotificationFailures *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		BookingsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "The total number of bookings created",
		}),
		BookingsApproved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_approved_total",
			Help:      "The total number of bookings approved",
		}),
		BookingsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_completed_total",
			Help:      "The total number of bookings completed",
		}),
		BookingsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_cancelled_total",
			Help:      "The total number of bookings cancelled",
		}),
		SchedulingConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduling_conflicts_total",
			Help:      "The total number of approvals rejected for vehicle schedule overlap",
		}),
		MergesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ride_merges_total",
			Help:      "The total number of shared rides created by merging bookings",
		}),
		UnmergesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ride_unmerges_total",
			Help:      "The total number of shared rides split back apart",
		}),
		PassengersRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passengers_removed_total",
			Help:      "The total number of passengers peeled off shared rides",
		}),
		NotificationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "The total number of best-effort notification deliveries that failed",
		}, []string{"channel"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time taken by booking lifecycle operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}
