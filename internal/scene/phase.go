package scene

import "cockpit/fusion/internal/types"

type Phase string

const (
	PhasePassThrough          Phase = "pass_through"
	PhaseIdle                 Phase = "idle"
	PhaseGazeOffTimerRunning  Phase = "gaze_off_timer_running"
	PhaseWarningActive        Phase = "warning_active"
	PhaseWarningConfirmed     Phase = "warning_confirmed"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
	PhaseRouteConfirmed       Phase = "route_confirmed"
	PhaseRouteRejected        Phase = "route_rejected"
	PhasePlaying              Phase = "playing"
	PhasePaused               Phase = "paused"
)

var transitions = map[types.Scene]map[Phase][]Phase{
	types.SceneFreeRecognition: {},
	types.SceneDistractionDetection: {
		PhaseIdle:                {PhaseGazeOffTimerRunning, PhaseWarningActive},
		PhaseGazeOffTimerRunning: {PhaseIdle, PhaseWarningActive},
		PhaseWarningActive:       {PhaseWarningConfirmed},
		PhaseWarningConfirmed:    {PhaseGazeOffTimerRunning, PhaseWarningActive},
	},
	types.SceneNavigationConfirm: {
		PhaseIdle:                 {PhaseAwaitingConfirmation},
		PhaseAwaitingConfirmation: {PhaseRouteConfirmed, PhaseRouteRejected},
	},
	types.SceneMusicControl: {
		PhaseIdle:                 {PhaseAwaitingConfirmation},
		PhaseAwaitingConfirmation: {PhasePlaying},
		PhasePlaying:              {PhasePaused},
		PhasePaused:               {PhasePlaying},
	},
}

// InitialPhase is the phase a scene starts in on entry.
func InitialPhase(s types.Scene) Phase {
	if s == types.SceneFreeRecognition {
		return PhasePassThrough
	}
	return PhaseIdle
}

// CanTransition reports whether from→to is an edge of the scene's graph.
func CanTransition(s types.Scene, from, to Phase) bool {
	for _, p := range transitions[s][from] {
		if p == to {
			return true
		}
	}
	return false
}
