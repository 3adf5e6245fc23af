package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genui_http_requests_total",
		Help: "Total HTTP requests processed by the bridge",
	}, []string{"method", "path", "status"})

	// Streaming responses are left out; their duration is the stream's.
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "genui_http_request_duration_seconds",
		Help:    "HTTP request duration for non-streaming responses",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpStreamsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "genui_http_streams_in_flight",
		Help: "Open server-sent event responses",
	}, []string{"path"})

	httpUnauthorizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genui_http_unauthorized_total",
		Help: "Requests rejected by token auth",
	})
)
