package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_engine_ticks_total",
		Help: "Frames processed by the fusion loop",
	})

	metricIdleTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_engine_idle_ticks_total",
		Help: "Neutral frames stepped while the signal source was quiet",
	})

	metricTickSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fusion_engine_tick_seconds",
		Help:    "Time spent processing one frame",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
	})

	metricOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_engine_outcomes_total",
		Help: "Domain events emitted by the loop",
	}, []string{"event_type", "result"})

	metricSceneSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_engine_scene_switches_total",
		Help: "Scene switches applied by the loop",
	}, []string{"scene"})

	metricVoiceDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_engine_voice_dropped_total",
		Help: "Utterances dropped because the voice queue was full",
	})
)
