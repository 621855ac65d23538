package profile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_profile_reloads_total",
		Help: "Profile snapshot swaps by source",
	}, []string{"source"})

	metricUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fusion_profile_users",
		Help: "Users in the current profile snapshot",
	})
)
