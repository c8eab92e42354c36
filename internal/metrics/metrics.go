// Package metrics registers the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ComplaintsFiled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casewatch_complaints_filed_total",
		Help: "Complaints accepted at intake",
	}, []string{"fraud_type", "priority"})

	IntakeThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casewatch_intake_throttled_total",
		Help: "Complaints refused because the victim phone exceeded the intake limit",
	})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casewatch_transitions_total",
		Help: "Status transitions by resulting status and outcome",
	}, []string{"status", "result"})

	TransitionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "casewatch_transition_duration_seconds",
		Help:    "Time spent applying a status transition, notification dispatch included",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	NotificationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casewatch_notifications_dispatched_total",
		Help: "Notifications handed to the delivery queue",
	}, []string{"channel", "result"})

	NotificationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casewatch_notification_deliveries_total",
		Help: "Final delivery outcome per notification",
	}, []string{"channel", "result"})

	NotificationAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "casewatch_notification_attempts",
		Help:    "Send attempts before success or final failure",
		Buckets: []float64{1, 2, 3, 4, 5, 10},
	}, []string{"channel", "result"})

	SenderBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "casewatch_sender_breaker_state",
		Help: "Sender circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"channel"})

	LiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "casewatch_live_feed_clients",
		Help: "Officer consoles connected to the live case feed",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casewatch_http_requests_total",
		Help: "HTTP requests by route pattern, method and status code",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "casewatch_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)
