package debounce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_debounce_events_total",
		Help: "Confirmed events emitted by the debounce buffer",
	}, []string{"kind"})

	metricWaveRingClears = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_debounce_wave_ring_clears_total",
		Help: "Partial wave sequences discarded by a non-wave label",
	})

	metricResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_debounce_resets_total",
		Help: "Buffer resets caused by scene switches",
	})
)
