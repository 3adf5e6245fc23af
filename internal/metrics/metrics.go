// Package metrics registers the bridge's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "genui_stream_duration_seconds",
		Help:    "Duration of consumed model streams",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"source", "outcome"})

	streamTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genui_streams_total",
		Help: "Total streams consumed grouped by source and outcome",
	}, []string{"source", "outcome"})

	streamBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genui_stream_bytes_total",
		Help: "Bytes read from model streams",
	})

	tokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genui_tokens_total",
		Help: "Tokens delivered to renderers",
	})

	patchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genui_patches_total",
		Help: "Patch operations grouped by op and result",
	}, []string{"op", "result"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "genui_active_sessions",
		Help: "Sessions currently consuming a stream",
	})
)

// ObserveStream records a finished stream.
func ObserveStream(source, outcome string, duration time.Duration, bytes int64) {
	if source == "" {
		source = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	streamDuration.WithLabelValues(source, outcome).Observe(duration.Seconds())
	streamTotal.WithLabelValues(source, outcome).Inc()
	streamBytes.Add(float64(bytes))
}

// ObserveToken counts one delivered token.
func ObserveToken() {
	tokensTotal.Inc()
}

// ObservePatch counts one patch operation. result is "applied" or a failure
// reason.
func ObservePatch(op, result string) {
	if op == "" {
		op = "unknown"
	}
	patchesTotal.WithLabelValues(op, result).Inc()
}

// SessionStarted and SessionFinished track the active session gauge.
func SessionStarted() {
	activeSessions.Inc()
}

func SessionFinished() {
	activeSessions.Dec()
}
