package scene

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_scene_transitions_total",
		Help: "Scene phase transitions",
	}, []string{"scene", "from", "to"})

	metricIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_scene_ignored_events_total",
		Help: "Confirmed events with no transition in the current phase",
	}, []string{"scene", "kind"})

	metricSceneEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_scene_entries_total",
		Help: "Scene entries, including re-entry of the active scene",
	}, []string{"scene"})

	metricDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_scene_permission_denied_total",
		Help: "Scene actions refused by the permission checker",
	}, []string{"scene", "action_tag"})
)
