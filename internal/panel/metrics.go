package panel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPanels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fusion_panel_connections",
		Help: "Connected GUI panels",
	})

	metricSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_panel_messages_sent_total",
		Help: "Messages written to panels",
	}, []string{"type"})

	metricDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_panel_messages_dropped_total",
		Help: "Broadcasts dropped because the outbox was full",
	}, []string{"type"})

	metricWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_panel_write_errors_total",
		Help: "Failed panel writes",
	})

	metricAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_panel_auth_failures_total",
		Help: "Rejected panel connections",
	})
)
