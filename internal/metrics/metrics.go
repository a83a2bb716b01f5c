package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labclient_api_request_duration_seconds",
			Help:    "Remote API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	PushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labclient_push_events_total",
			Help: "Push events received, by event name",
		},
		[]string{"event"},
	)

	PushReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "labclient_push_reconnect_attempts_total",
			Help: "Push channel reconnect attempts",
		},
	)

	PushConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "labclient_push_connected",
			Help: "1 while the push channel is open",
		},
	)

	ViewRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labclient_view_request_duration_seconds",
			Help:    "Local view server request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
