package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fusion_ingest_streams",
		Help: "Open signal ingest streams",
	})

	metricFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_ingest_frames_total",
		Help: "Frames accepted from signal sources",
	})

	metricMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_ingest_malformed_frames_total",
		Help: "Frames rejected by the decoder",
	})

	metricAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_ingest_auth_failures_total",
		Help: "Rejected ingest streams",
	})
)
