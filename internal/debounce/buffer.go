package debounce

import (
	"time"

	"cockpit/fusion/internal/types"
)

// Kind names a confirmed event produced by the buffer.
type Kind string

const (
	KindGazeOff        Kind = "gaze_off"
	KindGazeOn         Kind = "gaze_on"
	KindDistracted     Kind = "distracted"
	KindEyesClosed     Kind = "eyes_closed"
	KindNod            Kind = "nod"
	KindShake          Kind = "shake"
	KindGesture        Kind = "gesture"
	KindPauseRequested Kind = "pause_requested"
	KindUtterance      Kind = "utterance"
)

const waveRingSize = 2

type Config struct {
	GazeOffThreshold    time.Duration
	EyesClosedThreshold time.Duration
	HeadHold            time.Duration
}

func DefaultConfig() Config {
	return Config{
		GazeOffThreshold:    3 * time.Second,
		EyesClosedThreshold: 2 * time.Second,
		HeadHold:            time.Second,
	}
}

// Event is a confirmed, debounced occurrence on one modality.
type Event struct {
	Kind      Kind           `json:"kind"`
	Modality  types.Modality `json:"modality"`
	At        time.Time      `json:"at"`
	Direction types.Gaze     `json:"direction,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Gesture   types.Gesture  `json:"gesture,omitempty"`
	Pose      types.HeadPose `json:"pose,omitempty"`
	Text      string         `json:"text,omitempty"`
	// Held marks a head pose re-emitted from the hold window rather than
	// freshly pulsed by the detector.
	Held bool `json:"held,omitempty"`
}

// Tick is the buffer output for one frame. Events holds at most one event
// per modality, in modality priority order.
type Tick struct {
	Frame  types.Frame
	Events []Event
}

func (t Tick) Event(m types.Modality) (Event, bool) {
	for _, e := range t.Events {
		if e.Modality == m {
			return e, true
		}
	}
	return Event{}, false
}

// Buffer turns per-frame labels into confirmed events. Timers are stored
// timestamps compared against each frame's capture time. Not safe for
// concurrent use; the fusion loop owns it.
type Buffer struct {
	cfg Config

	offSince        time.Time
	offDir          types.Gaze
	distractedFired bool

	closedSince time.Time
	eyesFired   bool

	waveRing    [waveRingSize]types.Gesture
	waveLen     int
	lastGesture types.Gesture

	holdPose  types.HeadPose
	holdUntil time.Time
}

func New(cfg Config) *Buffer {
	d := DefaultConfig()
	if cfg.GazeOffThreshold <= 0 {
		cfg.GazeOffThreshold = d.GazeOffThreshold
	}
	if cfg.EyesClosedThreshold <= 0 {
		cfg.EyesClosedThreshold = d.EyesClosedThreshold
	}
	if cfg.HeadHold <= 0 {
		cfg.HeadHold = d.HeadHold
	}
	return &Buffer{cfg: cfg, lastGesture: types.GestureNone}
}

// Reset discards every running timer and buffered label.
func (b *Buffer) Reset() {
	*b = Buffer{cfg: b.cfg, lastGesture: types.GestureNone}
	metricResets.Inc()
}

// GazeOffSince returns the start of the running gaze-off timer, zero if none.
func (b *Buffer) GazeOffSince() time.Time { return b.offSince }

// WaveRingLen is the number of buffered wave labels, never above 2.
func (b *Buffer) WaveRingLen() int { return b.waveLen }

// Push consumes one frame and returns the confirmed events for it.
func (b *Buffer) Push(f types.Frame) Tick {
	f = f.Normalize()
	tick := Tick{Frame: f}
	for _, m := range types.Modalities() {
		var (
			ev Event
			ok bool
		)
		switch m {
		case types.ModalityGaze:
			ev, ok = b.pushGaze(f)
		case types.ModalityEyeState:
			ev, ok = b.pushEyes(f)
		case types.ModalityHeadPose:
			ev, ok = b.pushHead(f)
		case types.ModalityGesture:
			ev, ok = b.pushGesture(f)
		case types.ModalityVoice:
			ev, ok = b.pushVoice(f)
		}
		if ok {
			ev.Modality = m
			ev.At = f.At
			tick.Events = append(tick.Events, ev)
			metricEvents.WithLabelValues(string(ev.Kind)).Inc()
		}
	}
	return tick
}

func (b *Buffer) pushGaze(f types.Frame) (Event, bool) {
	switch {
	case f.Gaze == types.GazeCenter:
		running := !b.offSince.IsZero()
		b.offSince = time.Time{}
		b.offDir = ""
		b.distractedFired = false
		if running {
			return Event{Kind: KindGazeOn}, true
		}
		return Event{}, false
	case f.Gaze.OffRoad():
		b.offDir = f.Gaze
		if b.offSince.IsZero() {
			b.offSince = f.At
			return Event{Kind: KindGazeOff, Direction: f.Gaze}, true
		}
	}
	// Lost tracking keeps the timer running.
	if b.offSince.IsZero() || b.distractedFired {
		return Event{}, false
	}
	if off := f.At.Sub(b.offSince); off >= b.cfg.GazeOffThreshold {
		b.distractedFired = true
		return Event{Kind: KindDistracted, Direction: b.offDir, Duration: off}, true
	}
	return Event{}, false
}

func (b *Buffer) pushEyes(f types.Frame) (Event, bool) {
	if !f.EyesClosed {
		if f.Gaze != types.GazeNone {
			b.closedSince = time.Time{}
			b.eyesFired = false
		}
		return Event{}, false
	}
	if b.closedSince.IsZero() {
		b.closedSince = f.At
		return Event{}, false
	}
	if b.eyesFired {
		return Event{}, false
	}
	if d := f.At.Sub(b.closedSince); d >= b.cfg.EyesClosedThreshold {
		b.eyesFired = true
		return Event{Kind: KindEyesClosed, Duration: d}, true
	}
	return Event{}, false
}

func (b *Buffer) pushHead(f types.Frame) (Event, bool) {
	if f.HeadPose == types.HeadNod || f.HeadPose == types.HeadShake {
		held := b.holdPose == f.HeadPose && f.At.Before(b.holdUntil)
		b.holdPose = f.HeadPose
		b.holdUntil = f.At.Add(b.cfg.HeadHold)
		return Event{Kind: poseKind(f.HeadPose), Pose: f.HeadPose, Held: held}, true
	}
	if b.holdPose != "" && f.At.Before(b.holdUntil) {
		return Event{Kind: poseKind(b.holdPose), Pose: b.holdPose, Held: true}, true
	}
	b.holdPose = ""
	b.holdUntil = time.Time{}
	return Event{}, false
}

func poseKind(p types.HeadPose) Kind {
	if p == types.HeadShake {
		return KindShake
	}
	return KindNod
}

func (b *Buffer) pushGesture(f types.Frame) (Event, bool) {
	prev := b.lastGesture
	b.lastGesture = f.Gesture

	if f.Gesture != types.GestureWave {
		if b.waveLen > 0 {
			metricWaveRingClears.Inc()
		}
		b.waveLen = 0
	} else {
		b.waveRing[b.waveLen] = f.Gesture
		b.waveLen++
		if b.waveLen == waveRingSize {
			b.waveLen = 0
			return Event{Kind: KindPauseRequested, Gesture: types.GestureWave}, true
		}
	}
	if f.Gesture != types.GestureNone && f.Gesture != prev {
		return Event{Kind: KindGesture, Gesture: f.Gesture}, true
	}
	return Event{}, false
}

func (b *Buffer) pushVoice(f types.Frame) (Event, bool) {
	if f.Voice == "" {
		return Event{}, false
	}
	return Event{Kind: KindUtterance, Text: f.Voice}, true
}
