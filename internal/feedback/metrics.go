package feedback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_feedback_dispatches_total",
		Help: "Feedback dispatches by event type",
	}, []string{"event_type"})

	metricChannelErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_feedback_channel_errors_total",
		Help: "Failed sink calls by channel",
	}, []string{"channel"})

	metricChannelLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fusion_feedback_channel_latency_ms",
		Help:    "Sink call latency by channel",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"channel"})

	metricStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_feedback_stale_discards_total",
		Help: "Channel calls skipped because the scene changed after scheduling",
	})

	metricQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fusion_feedback_queue_depth",
		Help: "Dispatched jobs waiting for the sink worker",
	})

	metricFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_feedback_voice_fallbacks_total",
		Help: "Spoken fallbacks for passively observed conditions",
	})
)
