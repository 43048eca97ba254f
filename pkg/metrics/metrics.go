package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RealtimeMetrics instruments the change broker.
type RealtimeMetrics struct {
	EventsEmitted  *prometheus.CounterVec
	PendingWaiters prometheus.Gauge
	PollTimeouts   prometheus.Counter
}

// SchedulingMetrics instruments the booking engine.
type SchedulingMetrics struct {
	BookingsTotal      prometheus.Counter
	CancellationsTotal prometheus.Counter
	BookingConflicts   prometheus.Counter
	BookingLatency     prometheus.Histogram
}

type Metrics struct {
	Realtime   *RealtimeMetrics
	Scheduling *SchedulingMetrics
}

// NewMetrics creates and registers all application metrics on the default
// registry. Call once per process.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Realtime: &RealtimeMetrics{
			EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_events_emitted_total",
				Help:      "Events appended to the change broker log",
			}, []string{"kind"}),
			PendingWaiters: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_pending_waiters",
				Help:      "Long-poll waiters currently parked on the broker",
			}),
			PollTimeouts: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_poll_timeouts_total",
				Help:      "Long-poll requests answered by heartbeat timeout",
			}),
		},
		Scheduling: &SchedulingMetrics{
			BookingsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "appointments_booked_total",
				Help:      "Appointments successfully booked",
			}),
			CancellationsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "appointments_cancelled_total",
				Help:      "Appointments cancelled",
			}),
			BookingConflicts: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "appointments_booking_conflicts_total",
				Help:      "Bookings rejected because of a provider or room overlap",
			}),
			BookingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "appointments_booking_duration_seconds",
				Help:      "Time spent in the booking transaction",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			}),
		},
	}
}
