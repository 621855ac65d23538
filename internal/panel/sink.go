package panel

import (
	"context"
	"time"

	"cockpit/fusion/internal/engine"
	"cockpit/fusion/internal/feedback"
)

// Sink renders feedback channels on connected panels.
type Sink struct {
	hub *Hub
}

func NewSink(h *Hub) *Sink { return &Sink{hub: h} }

var (
	_ feedback.Sink        = (*Sink)(nil)
	_ feedback.AudioPlayer = (*Sink)(nil)
)

func (s *Sink) ShowGraphicStatus(_ context.Context, state feedback.GraphicState, message string) error {
	return s.hub.Publish("graphic", map[string]any{"state": string(state), "message": message})
}

func (s *Sink) TriggerDashboardAlert(_ context.Context, a feedback.Alert) error {
	return s.hub.Publish("dashboard", map[string]any{"type": a.Type, "intensity": a.Intensity, "color": a.Color})
}

func (s *Sink) ShowText(_ context.Context, message string, style feedback.TextStyle, d time.Duration) error {
	return s.hub.Publish("text", map[string]any{"message": message, "style": string(style), "duration_ms": d.Milliseconds()})
}

func (s *Sink) Speak(_ context.Context, text string, volume int, lang string) error {
	return s.hub.Publish("speak", map[string]any{"text": text, "volume": volume, "lang": lang})
}

func (s *Sink) PlayCue(_ context.Context, cue string) error {
	return s.hub.Publish("cue", map[string]any{"cue": cue})
}

func (s *Sink) StopAudio(context.Context) error {
	return s.hub.Publish("stop_audio", nil)
}

// PublishSnapshot is an engine snapshot hook.
func (h *Hub) PublishSnapshot(s engine.Snapshot) {
	_ = h.Publish("state", snapshotPayload(s))
}

func snapshotPayload(s engine.Snapshot) map[string]any {
	return map[string]any{
		"scene":       string(s.Scene),
		"phase":       string(s.Phase),
		"user":        s.User,
		"role":        s.Role,
		"gaze":        string(s.Gaze),
		"head_pose":   string(s.HeadPose),
		"gesture":     string(s.Gesture),
		"eyes_closed": s.EyesClosed,
		"voice":       s.Voice,
		"tick":        s.Tick,
		"epoch":       s.Epoch,
		"last_event":  s.LastEvent,
	}
}
