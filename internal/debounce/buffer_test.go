package debounce

import (
	"testing"
	"time"

	"cockpit/fusion/internal/types"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func frame(at time.Duration, g types.Gaze) types.Frame {
	return types.Frame{At: t0.Add(at), Gaze: g, HeadPose: types.HeadStill, Gesture: types.GestureNone}
}

func kinds(tick Tick) []Kind {
	out := make([]Kind, 0, len(tick.Events))
	for _, e := range tick.Events {
		out = append(out, e.Kind)
	}
	return out
}

func countKind(ticks []Tick, k Kind) int {
	n := 0
	for _, tk := range ticks {
		for _, e := range tk.Events {
			if e.Kind == k {
				n++
			}
		}
	}
	return n
}

func TestDistractedFiresOnceAfterThreeSeconds(t *testing.T) {
	b := New(DefaultConfig())
	var ticks []Tick
	for i := 0; i < 11; i++ {
		ticks = append(ticks, b.Push(frame(time.Duration(i)*300*time.Millisecond, types.GazeLeft)))
	}
	if n := countKind(ticks, KindDistracted); n != 1 {
		t.Fatalf("expected exactly one distracted event, got %d", n)
	}
	if n := countKind(ticks, KindGazeOff); n != 1 {
		t.Fatalf("expected one gaze_off, got %d", n)
	}
	// 3.0s elapses exactly on the last tick
	fired, ok := ticks[10].Event(types.ModalityGaze)
	if !ok || fired.Kind != KindDistracted || fired.Duration != 3*time.Second {
		t.Fatalf("expected distracted at 3.0s on tick 10, got %+v", fired)
	}
	if fired.Direction != types.GazeLeft {
		t.Fatalf("expected direction left, got %q", fired.Direction)
	}
	for i := 1; i < 10; i++ {
		if ev, ok := ticks[i].Event(types.ModalityGaze); ok {
			t.Fatalf("tick %d: unexpected gaze event %v", i, ev.Kind)
		}
	}
	more := b.Push(frame(3300*time.Millisecond, types.GazeLeft))
	if len(more.Events) != 0 {
		t.Fatalf("no duplicate expected before center, got %v", kinds(more))
	}
}

func TestCenterBeforeThresholdDiscardsTimer(t *testing.T) {
	b := New(DefaultConfig())
	b.Push(frame(0, types.GazeRight))
	b.Push(frame(2*time.Second, types.GazeRight))
	tick := b.Push(frame(2900*time.Millisecond, types.GazeCenter))
	if got := kinds(tick); len(got) != 1 || got[0] != KindGazeOn {
		t.Fatalf("expected gaze_on, got %v", got)
	}
	if !b.GazeOffSince().IsZero() {
		t.Fatal("timer should be discarded")
	}
	// A new off-run starts from zero.
	b.Push(frame(3*time.Second, types.GazeRight))
	tick = b.Push(frame(5900*time.Millisecond, types.GazeRight))
	if len(tick.Events) != 0 {
		t.Fatalf("no event expected before 3s of the new run, got %v", kinds(tick))
	}
	tick = b.Push(frame(6*time.Second, types.GazeDown))
	if got := kinds(tick); len(got) != 1 || got[0] != KindDistracted {
		t.Fatalf("expected distracted after direction change within the run, got %v", got)
	}
}

func TestLostTrackingDoesNotResetGazeTimer(t *testing.T) {
	b := New(DefaultConfig())
	b.Push(frame(0, types.GazeLeft))
	for ms := 300; ms < 3000; ms += 300 {
		if tick := b.Push(frame(time.Duration(ms)*time.Millisecond, types.GazeNone)); len(tick.Events) != 0 {
			t.Fatalf("unexpected events at %dms: %v", ms, kinds(tick))
		}
	}
	tick := b.Push(frame(3*time.Second, types.GazeNone))
	if got := kinds(tick); len(got) != 1 || got[0] != KindDistracted {
		t.Fatalf("expected distracted through lost tracking, got %v", got)
	}
}

func TestLostTrackingDoesNotStartGazeTimer(t *testing.T) {
	b := New(DefaultConfig())
	for i := 0; i < 20; i++ {
		if tick := b.Push(frame(time.Duration(i)*300*time.Millisecond, types.GazeNone)); len(tick.Events) != 0 {
			t.Fatalf("tick %d: unexpected events %v", i, kinds(tick))
		}
	}
}

func TestRearmRequiresCenter(t *testing.T) {
	b := New(DefaultConfig())
	var ticks []Tick
	for i := 0; i <= 20; i++ {
		ticks = append(ticks, b.Push(frame(time.Duration(i)*300*time.Millisecond, types.GazeDown)))
	}
	if n := countKind(ticks, KindDistracted); n != 1 {
		t.Fatalf("expected one distracted over 6s, got %d", n)
	}
	b.Push(frame(6500*time.Millisecond, types.GazeCenter))
	ticks = ticks[:0]
	for i := 0; i <= 10; i++ {
		ticks = append(ticks, b.Push(frame(7*time.Second+time.Duration(i)*300*time.Millisecond, types.GazeDown)))
	}
	if n := countKind(ticks, KindDistracted); n != 1 {
		t.Fatalf("expected re-armed distracted after center, got %d", n)
	}
}

func gestureFrame(i int, g types.Gesture) types.Frame {
	return types.Frame{At: t0.Add(time.Duration(i) * 30 * time.Millisecond), Gaze: types.GazeCenter, Gesture: g}
}

func TestWaveRingFistBetweenWaves(t *testing.T) {
	b := New(DefaultConfig())
	seq := []types.Gesture{types.GestureWave, types.GestureFist, types.GestureWave, types.GestureWave}
	var pauses []int
	for i, g := range seq {
		tick := b.Push(gestureFrame(i, g))
		if b.WaveRingLen() > waveRingSize {
			t.Fatalf("ring exceeded bound: %d", b.WaveRingLen())
		}
		if ev, ok := tick.Event(types.ModalityGesture); ok && ev.Kind == KindPauseRequested {
			pauses = append(pauses, i)
		}
	}
	if len(pauses) != 1 || pauses[0] != 3 {
		t.Fatalf("expected a single pause on the last tick, got %v", pauses)
	}
}

func TestWaveRingClearedByNone(t *testing.T) {
	b := New(DefaultConfig())
	b.Push(gestureFrame(0, types.GestureWave))
	if b.WaveRingLen() != 1 {
		t.Fatalf("ring len should be 1, got %d", b.WaveRingLen())
	}
	b.Push(gestureFrame(1, types.GestureNone))
	if b.WaveRingLen() != 0 {
		t.Fatalf("ring should be cleared, got %d", b.WaveRingLen())
	}
	tick := b.Push(gestureFrame(2, types.GestureWave))
	if ev, ok := tick.Event(types.ModalityGesture); !ok || ev.Kind != KindGesture {
		t.Fatalf("expected wave onset, got %+v", ev)
	}
}

func TestGestureOnsetIsEdgeTriggered(t *testing.T) {
	b := New(DefaultConfig())
	onsets := 0
	for i := 0; i < 10; i++ {
		tick := b.Push(gestureFrame(i, types.GestureThumbsUp))
		if ev, ok := tick.Event(types.ModalityGesture); ok && ev.Kind == KindGesture {
			onsets++
		}
	}
	if onsets != 1 {
		t.Fatalf("expected one onset for a held thumbs-up, got %d", onsets)
	}
}

func TestHeadPoseHold(t *testing.T) {
	b := New(DefaultConfig())
	at := func(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

	tick := b.Push(types.Frame{At: at(0), Gaze: types.GazeCenter, HeadPose: types.HeadNod})
	ev, ok := tick.Event(types.ModalityHeadPose)
	if !ok || ev.Kind != KindNod || ev.Held {
		t.Fatalf("expected fresh nod, got %+v ok=%v", ev, ok)
	}
	for _, ms := range []int{30, 500, 990} {
		tick = b.Push(types.Frame{At: at(ms), Gaze: types.GazeCenter, HeadPose: types.HeadStill})
		ev, ok = tick.Event(types.ModalityHeadPose)
		if !ok || ev.Kind != KindNod || !ev.Held {
			t.Fatalf("at %dms expected held nod, got %+v ok=%v", ms, ev, ok)
		}
	}
	tick = b.Push(types.Frame{At: at(1000), Gaze: types.GazeCenter, HeadPose: types.HeadStill})
	if _, ok := tick.Event(types.ModalityHeadPose); ok {
		t.Fatal("hold should have expired at 1s")
	}
}

func TestShakeReplacesNodHold(t *testing.T) {
	b := New(DefaultConfig())
	b.Push(types.Frame{At: t0, HeadPose: types.HeadNod})
	tick := b.Push(types.Frame{At: t0.Add(100 * time.Millisecond), HeadPose: types.HeadShake})
	ev, _ := tick.Event(types.ModalityHeadPose)
	if ev.Kind != KindShake || ev.Held {
		t.Fatalf("expected fresh shake, got %+v", ev)
	}
}

func TestEyesClosed(t *testing.T) {
	b := New(DefaultConfig())
	fired := 0
	for i := 0; i <= 30; i++ {
		tick := b.Push(types.Frame{At: t0.Add(time.Duration(i) * 100 * time.Millisecond), Gaze: types.GazeCenter, EyesClosed: true})
		if ev, ok := tick.Event(types.ModalityEyeState); ok && ev.Kind == KindEyesClosed {
			fired++
			if ev.Duration < 2*time.Second {
				t.Fatalf("fired early: %v", ev.Duration)
			}
		}
	}
	if fired != 1 {
		t.Fatalf("expected one eyes_closed, got %d", fired)
	}
}

func TestPriorityOrderWithinTick(t *testing.T) {
	b := New(DefaultConfig())
	tick := b.Push(types.Frame{
		At:       t0,
		Gaze:     types.GazeDown,
		HeadPose: types.HeadNod,
		Gesture:  types.GestureThumbsUp,
		Voice:    " 播放音乐 ",
	})
	got := kinds(tick)
	want := []Kind{KindGazeOff, KindNod, KindGesture, KindUtterance}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %v want %v", i, got, want)
		}
	}
	if ev, _ := tick.Event(types.ModalityVoice); ev.Text != "播放音乐" {
		t.Fatalf("voice text not trimmed: %q", ev.Text)
	}
}

func TestResetClearsEverything(t *testing.T) {
	b := New(DefaultConfig())
	b.Push(types.Frame{At: t0, Gaze: types.GazeLeft, Gesture: types.GestureWave, HeadPose: types.HeadNod})
	b.Reset()
	if !b.GazeOffSince().IsZero() || b.WaveRingLen() != 0 || b.holdPose != "" {
		t.Fatalf("reset left state behind: %+v", b)
	}
	tick := b.Push(types.Frame{At: t0.Add(30 * time.Millisecond), Gaze: types.GazeLeft, Gesture: types.GestureWave})
	if got := kinds(tick); len(got) != 2 || got[0] != KindGazeOff || got[1] != KindGesture {
		t.Fatalf("expected fresh gaze_off and wave onset after reset, got %v", got)
	}
}
