package scene

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"cockpit/fusion/internal/command"
	"cockpit/fusion/internal/debounce"
	"cockpit/fusion/internal/types"
)

// Cue names for fixed scene audio.
const (
	CueRouteConfirmed = "route_confirmed"
	CueRouteRejected  = "route_rejected"
	CueMusicPlaying   = "music_playing"
)

// Action results recorded in the interaction log.
const (
	ResultWarningIssued    = "warning_issued"
	ResultConfirmed        = "confirmed"
	ResultRejected         = "rejected"
	ResultUnresponsive     = "unresponsive"
	ResultPrompted         = "prompted"
	ResultSuccess          = "success"
	ResultPermissionDenied = "failure_permission_denied"
)

var warningConfirmPhrases = map[string]bool{
	command.Canonical("已经注意道路"): true,
	command.Canonical("已注意道路"):  true,
}

type Config struct {
	// UnresponsiveAfter emits WARNING_UNRESPONSIVE once for a warning left
	// unanswered this long. Zero disables it.
	UnresponsiveAfter time.Duration
}

// State is the scene-local state. It is replaced wholesale on scene entry.
type State struct {
	Scene            types.Scene `json:"scene"`
	Phase            Phase       `json:"phase"`
	WarningSince     time.Time   `json:"warning_since,omitempty"`
	UnresponsiveSent bool        `json:"unresponsive_sent,omitempty"`
}

// Actor is the active user as seen by the machine.
type Actor struct {
	UserID string
	Role   string
	// Can reports whether the actor may perform an action tag. A nil Can
	// denies everything.
	Can func(actionTag string) bool
}

func (a Actor) allowed(tag string) bool {
	return a.Can != nil && a.Can(tag)
}

// Outcome is one domain event produced by a transition, with the context the
// interaction log needs.
type Outcome struct {
	Event        types.Event
	Modality     types.Modality
	InputSummary string
	Intent       string
	Action       string
	ActionTag    string
	Result       string
	Cue          string
	StopAudio    bool
	Notes        string
}

type Result struct {
	Outcomes []Outcome
	// Unhandled holds utterances the scene did not consume.
	Unhandled []debounce.Event
	Ignored   int
}

// Machine runs the active scene. Not safe for concurrent use.
type Machine struct {
	cfg Config
	log *zap.Logger
	st  State
}

func New(cfg Config, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Machine{cfg: cfg, log: log.Named("scene")}
	m.Enter(types.SceneFreeRecognition)
	return m
}

// Enter resets all scene-local state. Entering the active scene again yields
// the same state as entering it once.
func (m *Machine) Enter(s types.Scene) {
	prev := m.st
	m.st = State{Scene: s, Phase: InitialPhase(s)}
	metricSceneEntries.WithLabelValues(string(s)).Inc()
	m.log.Info("scene entered", zap.String("scene", string(s)), zap.String("from_scene", string(prev.Scene)), zap.String("from_phase", string(prev.Phase)))
}

func (m *Machine) State() State { return m.st }

// Step processes one tick in modality priority order.
func (m *Machine) Step(tick debounce.Tick, actor Actor) Result {
	var res Result
	now := tick.Frame.At

	if o, ok := m.checkUnresponsive(now); ok {
		res.Outcomes = append(res.Outcomes, o)
	}
	for _, mod := range types.Modalities() {
		if mod == types.ModalityGaze {
			if o, ok := m.onGazeLabel(tick.Frame); ok {
				res.Outcomes = append(res.Outcomes, o)
			}
		}
		ev, has := tick.Event(mod)
		if !has {
			continue
		}
		o, handled := m.handle(ev, actor, now)
		switch {
		case handled && o != nil:
			res.Outcomes = append(res.Outcomes, *o)
		case handled:
		case ev.Kind == debounce.KindUtterance:
			res.Unhandled = append(res.Unhandled, ev)
		default:
			res.Ignored++
			m.ignore(ev)
		}
	}
	return res
}

func (m *Machine) ignore(ev debounce.Event) {
	if ev.Held || m.st.Scene == types.SceneFreeRecognition {
		return
	}
	metricIgnored.WithLabelValues(string(m.st.Scene), string(ev.Kind)).Inc()
	m.log.Debug("ignored", zap.String("scene", string(m.st.Scene)), zap.String("phase", string(m.st.Phase)), zap.String("kind", string(ev.Kind)))
}

func (m *Machine) setPhase(to Phase) {
	from := m.st.Phase
	if from == to {
		return
	}
	if !CanTransition(m.st.Scene, from, to) {
		// unreachable unless a handler disagrees with the table
		m.log.Error("illegal transition", zap.String("scene", string(m.st.Scene)), zap.String("from", string(from)), zap.String("to", string(to)))
		return
	}
	m.st.Phase = to
	metricTransitions.WithLabelValues(string(m.st.Scene), string(from), string(to)).Inc()
	m.log.Debug("transition", zap.String("scene", string(m.st.Scene)), zap.String("from", string(from)), zap.String("to", string(to)))
}

func (m *Machine) checkUnresponsive(now time.Time) (Outcome, bool) {
	if m.cfg.UnresponsiveAfter <= 0 || m.st.Phase != PhaseWarningActive || m.st.UnresponsiveSent {
		return Outcome{}, false
	}
	elapsed := now.Sub(m.st.WarningSince)
	if elapsed < m.cfg.UnresponsiveAfter {
		return Outcome{}, false
	}
	m.st.UnresponsiveSent = true
	return Outcome{
		Event:        types.MustEvent(types.EventWarningUnresponsive, now, types.WarningPayload{Via: types.ModalityGaze, Elapsed: elapsed}),
		Modality:     types.ModalityGaze,
		InputSummary: fmt.Sprintf("no response for %.1fs", elapsed.Seconds()),
		Intent:       "WARNING_UNRESPONSIVE",
		Action:       "escalate_warning",
		Result:       ResultUnresponsive,
	}, true
}

// onGazeLabel arms the confirmation scenes from the raw gaze label.
func (m *Machine) onGazeLabel(f types.Frame) (Outcome, bool) {
	if m.st.Phase != PhaseIdle {
		return Outcome{}, false
	}
	var prompt string
	switch {
	case m.st.Scene == types.SceneNavigationConfirm && f.Gaze == types.GazeDown:
		prompt = "请点头确认导航路线"
	case m.st.Scene == types.SceneMusicControl && f.Gaze == types.GazeLeft:
		prompt = "请竖拇指确认音乐状态"
	default:
		return Outcome{}, false
	}
	m.setPhase(PhaseAwaitingConfirmation)
	return Outcome{
		Event:        types.MustEvent(types.EventGenericInfo, f.At, types.InfoPayload{Message: prompt, GazeArea: f.Gaze}),
		Modality:     types.ModalityGaze,
		InputSummary: "gaze=" + string(f.Gaze),
		Intent:       "ARM_CONFIRMATION",
		Action:       "prompt_confirmation",
		Result:       ResultPrompted,
	}, true
}

// handle returns handled=false when the scene has no transition for ev.
func (m *Machine) handle(ev debounce.Event, actor Actor, now time.Time) (*Outcome, bool) {
	switch m.st.Scene {
	case types.SceneDistractionDetection:
		return m.handleDistraction(ev, now)
	case types.SceneNavigationConfirm:
		return m.handleNavigation(ev, now)
	case types.SceneMusicControl:
		return m.handleMusic(ev, actor, now)
	}
	return nil, false
}

func (m *Machine) handleDistraction(ev debounce.Event, now time.Time) (*Outcome, bool) {
	ph := m.st.Phase
	switch ev.Kind {
	case debounce.KindGazeOff:
		if ph == PhaseIdle || ph == PhaseWarningConfirmed {
			m.setPhase(PhaseGazeOffTimerRunning)
			return nil, true
		}
	case debounce.KindGazeOn:
		if ph == PhaseGazeOffTimerRunning {
			m.setPhase(PhaseIdle)
			return nil, true
		}
	case debounce.KindDistracted:
		if ph != PhaseWarningActive {
			m.raiseWarning(now)
			return &Outcome{
				Event:        types.MustEvent(types.EventUserDistracted, now, types.DistractedPayload{Direction: ev.Direction, Duration: ev.Duration}),
				Modality:     types.ModalityGaze,
				InputSummary: fmt.Sprintf("gaze=%s for %.1fs", ev.Direction, ev.Duration.Seconds()),
				Intent:       "DRIVER_DISTRACTED",
				Action:       "issue_warning",
				Result:       ResultWarningIssued,
			}, true
		}
	case debounce.KindEyesClosed:
		if ph != PhaseWarningActive {
			m.raiseWarning(now)
			return &Outcome{
				Event:        types.MustEvent(types.EventEyesClosed, now, types.EyesClosedPayload{Duration: ev.Duration}),
				Modality:     types.ModalityEyeState,
				InputSummary: fmt.Sprintf("eyes closed for %.1fs", ev.Duration.Seconds()),
				Intent:       "EYES_CLOSED",
				Action:       "issue_warning",
				Result:       ResultWarningIssued,
			}, true
		}
	case debounce.KindGesture:
		if ph != PhaseWarningActive {
			break
		}
		switch ev.Gesture {
		case types.GestureThumbsUp:
			return m.confirmWarning(types.ModalityGesture, "gesture=thumbs_up", now), true
		case types.GestureWave:
			return &Outcome{
				Event:        types.MustEvent(types.EventWarningRejected, now, types.WarningPayload{Via: types.ModalityGesture, Response: "wave", Elapsed: now.Sub(m.st.WarningSince)}),
				Modality:     types.ModalityGesture,
				InputSummary: "gesture=wave",
				Intent:       "REJECT_ACTION",
				Action:       "keep_warning",
				Result:       ResultRejected,
				Notes:        "warning stays active",
			}, true
		}
	case debounce.KindUtterance:
		if ph == PhaseWarningActive && warningConfirmPhrases[command.Canonical(ev.Text)] {
			return m.confirmWarning(types.ModalityVoice, "voice="+ev.Text, now), true
		}
	}
	return nil, false
}

func (m *Machine) raiseWarning(now time.Time) {
	if m.st.Phase == PhaseIdle || m.st.Phase == PhaseWarningConfirmed || m.st.Phase == PhaseGazeOffTimerRunning {
		m.setPhase(PhaseWarningActive)
	}
	m.st.WarningSince = now
	m.st.UnresponsiveSent = false
}

func (m *Machine) confirmWarning(via types.Modality, summary string, now time.Time) *Outcome {
	elapsed := now.Sub(m.st.WarningSince)
	m.setPhase(PhaseWarningConfirmed)
	m.st.WarningSince = time.Time{}
	m.st.UnresponsiveSent = false
	return &Outcome{
		Event:        types.MustEvent(types.EventWarningConfirmed, now, types.WarningPayload{Via: via, Response: summary, Elapsed: elapsed}),
		Modality:     via,
		InputSummary: summary,
		Intent:       "CONFIRM_ACTION",
		Action:       "clear_warning",
		Result:       ResultConfirmed,
	}
}

func (m *Machine) handleNavigation(ev debounce.Event, now time.Time) (*Outcome, bool) {
	if m.st.Phase != PhaseAwaitingConfirmation {
		return nil, false
	}
	switch ev.Kind {
	case debounce.KindNod:
		m.setPhase(PhaseRouteConfirmed)
		return &Outcome{
			Event:        types.MustEvent(types.EventCommandSuccess, now, types.CommandPayload{Command: "确认导航路线", ActionTag: "CONFIRM_ACTION", Message: "导航路线已确认"}),
			Modality:     types.ModalityHeadPose,
			InputSummary: "head_pose=nod",
			Intent:       "CONFIRM_ROUTE",
			Action:       "confirm_route",
			Result:       ResultSuccess,
			Cue:          CueRouteConfirmed,
		}, true
	case debounce.KindShake:
		m.setPhase(PhaseRouteRejected)
		return &Outcome{
			Event:        types.MustEvent(types.EventCommandSuccess, now, types.CommandPayload{Command: "拒绝导航路线", ActionTag: "REJECT_ACTION", Message: "请重新选择导航路线"}),
			Modality:     types.ModalityHeadPose,
			InputSummary: "head_pose=shake",
			Intent:       "REJECT_ROUTE",
			Action:       "reject_route",
			Result:       ResultSuccess,
			Cue:          CueRouteRejected,
		}, true
	}
	return nil, false
}

func (m *Machine) handleMusic(ev debounce.Event, actor Actor, now time.Time) (*Outcome, bool) {
	ph := m.st.Phase
	switch {
	case ev.Kind == debounce.KindGesture && ev.Gesture == types.GestureThumbsUp &&
		(ph == PhaseAwaitingConfirmation || ph == PhasePaused):
		if o := m.deny(actor, "PLAY_MUSIC", types.ModalityGesture, "gesture=thumbs_up", now); o != nil {
			return o, true
		}
		m.setPhase(PhasePlaying)
		return &Outcome{
			Event:        types.MustEvent(types.EventCommandSuccess, now, types.CommandPayload{Command: "播放音乐", ActionTag: "PLAY_MUSIC", Message: "音乐正在播放"}),
			Modality:     types.ModalityGesture,
			InputSummary: "gesture=thumbs_up",
			Intent:       "PLAY_MUSIC",
			Action:       "play_music",
			ActionTag:    "PLAY_MUSIC",
			Result:       ResultSuccess,
			Cue:          CueMusicPlaying,
		}, true
	case ev.Kind == debounce.KindPauseRequested && ph == PhasePlaying:
		if o := m.deny(actor, "PAUSE_MUSIC", types.ModalityGesture, "gesture=wave,wave", now); o != nil {
			return o, true
		}
		m.setPhase(PhasePaused)
		return &Outcome{
			Event:        types.MustEvent(types.EventCommandSuccess, now, types.CommandPayload{Command: "暂停音乐", ActionTag: "PAUSE_MUSIC", Message: "音乐已暂停"}),
			Modality:     types.ModalityGesture,
			InputSummary: "gesture=wave,wave",
			Intent:       "PAUSE_MUSIC",
			Action:       "pause_music",
			ActionTag:    "PAUSE_MUSIC",
			Result:       ResultSuccess,
			StopAudio:    true,
		}, true
	}
	return nil, false
}

// deny returns a PERMISSION_DENIED outcome when the actor lacks tag. The
// phase is left unchanged.
func (m *Machine) deny(actor Actor, tag string, via types.Modality, summary string, now time.Time) *Outcome {
	if actor.allowed(tag) {
		return nil
	}
	metricDenied.WithLabelValues(string(m.st.Scene), tag).Inc()
	return &Outcome{
		Event:        types.MustEvent(types.EventPermissionDenied, now, types.PermissionDeniedPayload{ActionTag: tag, Role: actor.Role}),
		Modality:     via,
		InputSummary: summary,
		Intent:       tag,
		Action:       "none",
		ActionTag:    tag,
		Result:       ResultPermissionDenied,
		Notes:        fmt.Sprintf("role %q lacks %s", actor.Role, tag),
	}
}
