package types

import (
	"strings"
	"time"
)

// Gaze is the classified gaze area for one frame.
type Gaze string

const (
	GazeNone   Gaze = "none"
	GazeCenter Gaze = "center"
	GazeLeft   Gaze = "left"
	GazeRight  Gaze = "right"
	GazeDown   Gaze = "down"
)

// OffRoad reports whether the gaze label is a known off-center direction.
// GazeNone is not off-road: lost tracking is neutral.
func (g Gaze) OffRoad() bool {
	return g == GazeLeft || g == GazeRight || g == GazeDown
}

type HeadPose string

const (
	HeadStill HeadPose = "still"
	HeadNod   HeadPose = "nod"
	HeadShake HeadPose = "shake"
)

type Gesture string

const (
	GestureNone     Gesture = "none"
	GestureThumbsUp Gesture = "thumbs_up"
	GestureWave     Gesture = "wave"
	GestureFist     Gesture = "fist"
	GestureOK       Gesture = "ok"
	GestureOpenHand Gesture = "open_hand"
)

// Modality is an independent input channel. The declaration order is the
// processing priority used when several modalities confirm in the same tick.
type Modality int

const (
	ModalityGaze Modality = iota
	ModalityEyeState
	ModalityHeadPose
	ModalityGesture
	ModalityVoice

	modalityCount
)

// Modalities lists every modality in priority order.
func Modalities() []Modality {
	out := make([]Modality, 0, modalityCount)
	for m := Modality(0); m < modalityCount; m++ {
		out = append(out, m)
	}
	return out
}

func (m Modality) String() string {
	switch m {
	case ModalityGaze:
		return "gaze"
	case ModalityEyeState:
		return "eye_state"
	case ModalityHeadPose:
		return "head_pose"
	case ModalityGesture:
		return "gesture"
	case ModalityVoice:
		return "voice"
	default:
		return "unknown"
	}
}

func (m Modality) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Frame is one tick worth of classified labels from the signal source.
type Frame struct {
	At         time.Time `json:"at"`
	Gaze       Gaze      `json:"gaze"`
	HeadPose   HeadPose  `json:"head_pose"`
	Gesture    Gesture   `json:"gesture"`
	EyesClosed bool      `json:"eyes_closed"`
	Voice      string    `json:"voice_text,omitempty"`
}

// Normalize maps empty or unknown labels to their neutral value.
func (f Frame) Normalize() Frame {
	f.Gaze = ParseGaze(string(f.Gaze))
	f.HeadPose = ParseHeadPose(string(f.HeadPose))
	f.Gesture = ParseGesture(string(f.Gesture))
	f.Voice = strings.TrimSpace(f.Voice)
	return f
}

func ParseGaze(s string) Gaze {
	switch g := Gaze(strings.ToLower(strings.TrimSpace(s))); g {
	case GazeCenter, GazeLeft, GazeRight, GazeDown:
		return g
	default:
		return GazeNone
	}
}

func ParseHeadPose(s string) HeadPose {
	switch p := HeadPose(strings.ToLower(strings.TrimSpace(s))); p {
	case HeadNod, HeadShake:
		return p
	default:
		return HeadStill
	}
}

func ParseGesture(s string) Gesture {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch g := Gesture(norm); g {
	case GestureThumbsUp, GestureWave, GestureFist, GestureOK, GestureOpenHand:
		return g
	default:
		return GestureNone
	}
}

// Scene is a mutually exclusive interaction mode.
type Scene string

const (
	SceneFreeRecognition      Scene = "free_recognition"
	SceneDistractionDetection Scene = "distraction_detection"
	SceneNavigationConfirm    Scene = "navigation_confirm"
	SceneMusicControl         Scene = "music_control"
)

func Scenes() []Scene {
	return []Scene{SceneFreeRecognition, SceneDistractionDetection, SceneNavigationConfirm, SceneMusicControl}
}

// ParseScene returns ok=false for anything outside the closed set.
func ParseScene(s string) (Scene, bool) {
	sc := Scene(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Scenes() {
		if sc == known {
			return sc, true
		}
	}
	return "", false
}
