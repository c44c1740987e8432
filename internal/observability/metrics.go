package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mechiee"

var (
	BookingsDispatched = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "bookings_dispatched_total", Help: "Bookings fanned out to at least one garage"})
	BookingsNoCoverage = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "bookings_no_coverage_total", Help: "Booking submissions with no garage in range"})
	GaragesNotified    = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "garages_notified", Help: "Garages notified per booking", Buckets: []float64{1, 2, 3, 5, 8, 13, 21}})
	DispatchLatency    = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "dispatch_latency_seconds", Help: "Create-and-dispatch latency seconds"})

	AcceptOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_accept_total", Help: "Accept attempts by outcome"},
		[]string{"outcome"},
	)
	BookingRejections = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "booking_rejections_total", Help: "Garage rejections recorded"})

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "chat_messages_posted_total", Help: "Chat messages persisted by type"},
		[]string{"type"},
	)
	SessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "chat_sessions_created_total", Help: "Chat sessions created by kind"},
		[]string{"kind"},
	)

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_connections", Help: "Live websocket connections"})
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_dropped_total", Help: "Outbound events dropped because the receiver queue was full"},
		[]string{"event"},
	)
	NotificationFailures  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "notification_failures_total", Help: "Durable notifications that failed to persist"})
	GarageLocationUpdates = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "garage_location_updates_total", Help: "Garage location updates received"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
