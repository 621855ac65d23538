package personalize

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricPasses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fusion_personalize_passes_total",
	Help: "Personalization passes by result",
}, []string{"result"})
