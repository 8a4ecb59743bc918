package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prayer_push_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prayer_push_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// PushDeliveries counts per-subscription outcomes: sent, failed or gone.
	PushDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prayer_push_deliveries_total",
			Help: "Web push delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	PushDispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prayer_push_dispatch_duration_seconds",
			Help:    "Time to fan out one push batch to all subscriptions",
			Buckets: prometheus.DefBuckets,
		},
	)

	PushUnavailable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prayer_push_unavailable_total",
			Help: "Dispatches that skipped push because no VAPID context could be built",
		},
	)

	InAppNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prayer_push_inapp_notifications_total",
			Help: "In-app notification rows written",
		},
		[]string{"type"},
	)

	// ReminderSweep counts reminders per sweep result: sent, skipped or failed.
	ReminderSweep = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prayer_push_reminders_total",
			Help: "Due prayer reminders handled by the scheduler",
		},
		[]string{"result"},
	)
)

// Init registers all collectors with reg.
func Init(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestCount,
		RequestDuration,
		PushDeliveries,
		PushDispatchDuration,
		PushUnavailable,
		InAppNotifications,
		ReminderSweep,
	)
}
