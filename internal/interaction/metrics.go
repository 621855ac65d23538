package interaction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_log_records_dropped_total",
		Help: "Interaction records dropped after a full queue or a failed retry",
	})

	metricWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_log_records_written_total",
		Help: "Interaction records persisted",
	})

	metricWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusion_log_write_errors_total",
		Help: "Failed write attempts, including the retry",
	})

	metricQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fusion_log_queue_depth",
		Help: "Records waiting for the writer",
	})
)
