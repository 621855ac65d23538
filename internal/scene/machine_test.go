package scene

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cockpit/fusion/internal/debounce"
	"cockpit/fusion/internal/types"
)

var t0 = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

type rig struct {
	buf *debounce.Buffer
	m   *Machine
	at  time.Duration
}

func newRig(s types.Scene, cfg Config) *rig {
	r := &rig{buf: debounce.New(debounce.DefaultConfig()), m: New(cfg, nil)}
	r.m.Enter(s)
	return r
}

func (r *rig) step(f types.Frame, actor Actor) Result {
	f.At = t0.Add(r.at)
	r.at += 300 * time.Millisecond
	if f.Gaze == "" {
		f.Gaze = types.GazeCenter
	}
	return r.m.Step(r.buf.Push(f), actor)
}

func allowAll() Actor {
	return Actor{UserID: "driver", Role: "driver", Can: func(string) bool { return true }}
}

func eventTypes(res Result) []types.EventType {
	var out []types.EventType
	for _, o := range res.Outcomes {
		out = append(out, o.Event.Type)
	}
	return out
}

func TestDistractionWarningAfterThreeSeconds(t *testing.T) {
	r := newRig(types.SceneDistractionDetection, Config{})
	var fired []Result
	for i := 0; i < 11; i++ {
		res := r.step(types.Frame{Gaze: types.GazeLeft}, allowAll())
		if len(res.Outcomes) > 0 {
			fired = append(fired, res)
		}
		if i == 0 {
			assert.Equal(t, PhaseGazeOffTimerRunning, r.m.State().Phase)
		}
	}
	require.Len(t, fired, 1)
	o := fired[0].Outcomes[0]
	assert.Equal(t, types.EventUserDistracted, o.Event.Type)
	p := o.Event.Payload.(types.DistractedPayload)
	assert.Equal(t, types.GazeLeft, p.Direction)
	assert.Equal(t, 3*time.Second, p.Duration)
	assert.Equal(t, PhaseWarningActive, r.m.State().Phase)
	assert.Equal(t, t0.Add(3*time.Second), r.m.State().WarningSince)

	res := r.step(types.Frame{Gesture: types.GestureThumbsUp}, allowAll())
	assert.Equal(t, []types.EventType{types.EventWarningConfirmed}, eventTypes(res))
	assert.Equal(t, PhaseWarningConfirmed, r.m.State().Phase)
}

func TestGlanceReturnsToIdle(t *testing.T) {
	r := newRig(types.SceneDistractionDetection, Config{})
	r.step(types.Frame{Gaze: types.GazeRight}, allowAll())
	r.step(types.Frame{Gaze: types.GazeRight}, allowAll())
	res := r.step(types.Frame{Gaze: types.GazeCenter}, allowAll())
	assert.Empty(t, res.Outcomes)
	assert.Equal(t, PhaseIdle, r.m.State().Phase)
}

func TestWaveRejectKeepsWarning(t *testing.T) {
	r := newRig(types.SceneDistractionDetection, Config{})
	for i := 0; i < 11; i++ {
		r.step(types.Frame{Gaze: types.GazeDown}, allowAll())
	}
	require.Equal(t, PhaseWarningActive, r.m.State().Phase)

	res := r.step(types.Frame{Gaze: types.GazeDown, Gesture: types.GestureWave}, allowAll())
	assert.Equal(t, []types.EventType{types.EventWarningRejected}, eventTypes(res))
	assert.Equal(t, PhaseWarningActive, r.m.State().Phase)
}

func TestVoiceConfirmsWarning(t *testing.T) {
	r := newRig(types.SceneDistractionDetection, Config{})
	for i := 0; i < 11; i++ {
		r.step(types.Frame{Gaze: types.GazeLeft}, allowAll())
	}
	res := r.step(types.Frame{Gaze: types.GazeLeft, Voice: "已经注意道路。"}, allowAll())
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, types.EventWarningConfirmed, res.Outcomes[0].Event.Type)
	assert.Equal(t, types.ModalityVoice, res.Outcomes[0].Modality)
	assert.Empty(t, res.Unhandled)
}

func TestVoiceVariantConfirmsWarning(t *testing.T) {
	for _, text := range []string{"已经注意到路", "已經注意道路", "已经注意到"} {
		r := newRig(types.SceneDistractionDetection, Config{})
		for i := 0; i < 11; i++ {
			r.step(types.Frame{Gaze: types.GazeLeft}, allowAll())
		}
		res := r.step(types.Frame{Gaze: types.GazeLeft, Voice: text}, allowAll())
		require.Len(t, res.Outcomes, 1, text)
		assert.Equal(t, types.EventWarningConfirmed, res.Outcomes[0].Event.Type, text)
		assert.Empty(t, res.Unhandled, text)
	}
}

func TestUnrelatedUtteranceIsUnhandled(t *testing.T) {
	r := newRig(types.SceneDistractionDetection, Config{})
	res := r.step(types.Frame{Voice: "打开空调"}, allowAll())
	require.Len(t, res.Unhandled, 1)
	assert.Equal(t, "打开空调", res.Unhandled[0].Text)
}

func TestEyesClosedRaisesWarning(t *testing.T) {
	r := newRig(types.SceneDistractionDetection, Config{})
	var got []types.EventType
	for i := 0; i < 8; i++ {
		got = append(got, eventTypes(r.step(types.Frame{EyesClosed: true}, allowAll()))...)
	}
	assert.Equal(t, []types.EventType{types.EventEyesClosed}, got)
	assert.Equal(t, PhaseWarningActive, r.m.State().Phase)
}

func TestUnresponsiveFiresOnce(t *testing.T) {
	r := newRig(types.SceneDistractionDetection, Config{UnresponsiveAfter: 2 * time.Second})
	for i := 0; i < 11; i++ {
		r.step(types.Frame{Gaze: types.GazeLeft}, allowAll())
	}
	var got []types.EventType
	for i := 0; i < 12; i++ {
		got = append(got, eventTypes(r.step(types.Frame{Gaze: types.GazeLeft}, allowAll()))...)
	}
	assert.Equal(t, []types.EventType{types.EventWarningUnresponsive}, got)
	assert.Equal(t, PhaseWarningActive, r.m.State().Phase)
}

func TestNavigationConfirm(t *testing.T) {
	r := newRig(types.SceneNavigationConfirm, Config{})
	res := r.step(types.Frame{Gaze: types.GazeDown}, allowAll())
	assert.Equal(t, []types.EventType{types.EventGenericInfo}, eventTypes(res))
	assert.Equal(t, PhaseAwaitingConfirmation, r.m.State().Phase)

	res = r.step(types.Frame{Gaze: types.GazeCenter, HeadPose: types.HeadNod}, allowAll())
	require.Len(t, res.Outcomes, 1)
	o := res.Outcomes[0]
	assert.Equal(t, types.EventCommandSuccess, o.Event.Type)
	assert.Equal(t, "导航路线已确认", o.Event.Payload.(types.CommandPayload).Message)
	assert.Equal(t, CueRouteConfirmed, o.Cue)
	assert.Equal(t, PhaseRouteConfirmed, r.m.State().Phase)
}

func TestNavigationReject(t *testing.T) {
	r := newRig(types.SceneNavigationConfirm, Config{})
	r.step(types.Frame{Gaze: types.GazeDown}, allowAll())
	res := r.step(types.Frame{HeadPose: types.HeadShake}, allowAll())
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, "请重新选择导航路线", res.Outcomes[0].Event.Payload.(types.CommandPayload).Message)
	assert.Equal(t, PhaseRouteRejected, r.m.State().Phase)
}

func TestNavigationWaitsWithoutPose(t *testing.T) {
	r := newRig(types.SceneNavigationConfirm, Config{})
	r.step(types.Frame{Gaze: types.GazeDown}, allowAll())
	for i := 0; i < 6; i++ {
		res := r.step(types.Frame{}, allowAll())
		assert.Empty(t, res.Outcomes)
	}
	assert.Equal(t, PhaseAwaitingConfirmation, r.m.State().Phase)
}

func TestGazeArmsBeforeHeadInSameTick(t *testing.T) {
	r := newRig(types.SceneNavigationConfirm, Config{})
	res := r.step(types.Frame{Gaze: types.GazeDown, HeadPose: types.HeadNod}, allowAll())
	assert.Equal(t, []types.EventType{types.EventGenericInfo, types.EventCommandSuccess}, eventTypes(res))
	assert.Equal(t, PhaseRouteConfirmed, r.m.State().Phase)
}

func TestMusicPlayPause(t *testing.T) {
	r := newRig(types.SceneMusicControl, Config{})
	r.step(types.Frame{Gaze: types.GazeLeft}, allowAll())
	require.Equal(t, PhaseAwaitingConfirmation, r.m.State().Phase)

	res := r.step(types.Frame{Gesture: types.GestureThumbsUp}, allowAll())
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, CueMusicPlaying, res.Outcomes[0].Cue)
	assert.Equal(t, PhasePlaying, r.m.State().Phase)

	var pauses []Outcome
	for _, g := range []types.Gesture{types.GestureWave, types.GestureFist, types.GestureWave, types.GestureWave} {
		pauses = append(pauses, r.step(types.Frame{Gesture: g}, allowAll()).Outcomes...)
	}
	require.Len(t, pauses, 1)
	assert.True(t, pauses[0].StopAudio)
	assert.Equal(t, "PAUSE_MUSIC", pauses[0].ActionTag)
	assert.Equal(t, PhasePaused, r.m.State().Phase)
}

func TestMusicPermissionDenied(t *testing.T) {
	r := newRig(types.SceneMusicControl, Config{})
	guest := Actor{UserID: "guest_user", Role: "guest", Can: func(tag string) bool { return false }}
	r.step(types.Frame{Gaze: types.GazeLeft}, guest)

	res := r.step(types.Frame{Gesture: types.GestureThumbsUp}, guest)
	require.Len(t, res.Outcomes, 1)
	o := res.Outcomes[0]
	assert.Equal(t, types.EventPermissionDenied, o.Event.Type)
	assert.Equal(t, ResultPermissionDenied, o.Result)
	assert.Equal(t, types.PermissionDeniedPayload{ActionTag: "PLAY_MUSIC", Role: "guest"}, o.Event.Payload)
	assert.Equal(t, PhaseAwaitingConfirmation, r.m.State().Phase)
}

func TestFreeRecognitionPassesThrough(t *testing.T) {
	r := newRig(types.SceneFreeRecognition, Config{})
	for i := 0; i < 12; i++ {
		res := r.step(types.Frame{Gaze: types.GazeLeft, HeadPose: types.HeadNod}, allowAll())
		assert.Empty(t, res.Outcomes)
	}
	assert.Equal(t, PhasePassThrough, r.m.State().Phase)
}

func TestEnterIsIdempotent(t *testing.T) {
	a := New(Config{}, nil)
	a.Enter(types.SceneDistractionDetection)

	b := New(Config{}, nil)
	b.Enter(types.SceneDistractionDetection)
	b.Step(debounce.New(debounce.DefaultConfig()).Push(types.Frame{At: t0, Gaze: types.GazeLeft}), allowAll())
	require.Equal(t, PhaseGazeOffTimerRunning, b.State().Phase)
	b.Enter(types.SceneDistractionDetection)
	b.Enter(types.SceneDistractionDetection)

	if diff := cmp.Diff(a.State(), b.State()); diff != "" {
		t.Fatalf("state after re-entry (-want +got):\n%s", diff)
	}
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(types.SceneMusicControl, PhasePaused, PhasePlaying))
	assert.False(t, CanTransition(types.SceneMusicControl, PhaseIdle, PhasePlaying))
	assert.False(t, CanTransition(types.SceneNavigationConfirm, PhaseRouteConfirmed, PhaseAwaitingConfirmation))
	assert.False(t, CanTransition(types.SceneFreeRecognition, PhasePassThrough, PhaseIdle))
	assert.Equal(t, PhasePassThrough, InitialPhase(types.SceneFreeRecognition))
	assert.Equal(t, PhaseIdle, InitialPhase(types.SceneMusicControl))
}
