package feedback

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type GraphicState string

const (
	GraphicInfo    GraphicState = "info"
	GraphicSuccess GraphicState = "success"
	GraphicWarning GraphicState = "warning"
	GraphicError   GraphicState = "error"
)

type TextStyle string

const (
	TextInfo    TextStyle = "info"
	TextWarning TextStyle = "warning"
	TextError   TextStyle = "error"
)

type Alert struct {
	Type      string `json:"type"`
	Intensity string `json:"intensity"`
	Color     string `json:"color"`
}

// Sink is an output surface for feedback channels.
type Sink interface {
	ShowGraphicStatus(ctx context.Context, state GraphicState, message string) error
	TriggerDashboardAlert(ctx context.Context, alert Alert) error
	ShowText(ctx context.Context, message string, style TextStyle, duration time.Duration) error
	Speak(ctx context.Context, text string, volume int, lang string) error
}

// AudioPlayer plays fixed scene cues.
type AudioPlayer interface {
	PlayCue(ctx context.Context, cue string) error
	StopAudio(ctx context.Context) error
}

// ConsoleSink writes every channel call to the log.
type ConsoleSink struct {
	log *zap.Logger
}

func NewConsoleSink(log *zap.Logger) *ConsoleSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConsoleSink{log: log.Named("sink")}
}

func (c *ConsoleSink) ShowGraphicStatus(_ context.Context, state GraphicState, message string) error {
	c.log.Info("graphic", zap.String("state", string(state)), zap.String("message", message))
	return nil
}

func (c *ConsoleSink) TriggerDashboardAlert(_ context.Context, a Alert) error {
	c.log.Info("dashboard", zap.String("type", a.Type), zap.String("intensity", a.Intensity), zap.String("color", a.Color))
	return nil
}

func (c *ConsoleSink) ShowText(_ context.Context, message string, style TextStyle, d time.Duration) error {
	c.log.Info("text", zap.String("style", string(style)), zap.Duration("duration", d), zap.String("message", message))
	return nil
}

func (c *ConsoleSink) Speak(_ context.Context, text string, volume int, lang string) error {
	c.log.Info("speak", zap.Int("volume", volume), zap.String("lang", lang), zap.String("text", text))
	return nil
}

func (c *ConsoleSink) PlayCue(_ context.Context, cue string) error {
	c.log.Info("cue", zap.String("cue", cue))
	return nil
}

func (c *ConsoleSink) StopAudio(context.Context) error {
	c.log.Info("stop audio")
	return nil
}

// Call is one recorded channel invocation.
type Call struct {
	Method    string
	State     GraphicState
	Alert     Alert
	Style     TextStyle
	Duration  time.Duration
	Text      string
	Volume    int
	Lang      string
	Cue       string
	Timestamp time.Time
}

// Recorder is the headless sink. It keeps every call in order.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	// Fail makes every call for the named method return an error.
	Fail map[string]error
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) record(c Call) error {
	c.Timestamp = time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	if err, ok := r.Fail[c.Method]; ok {
		return err
	}
	return nil
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Methods lists recorded method names in call order.
func (r *Recorder) Methods() []string {
	calls := r.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Method)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

func (r *Recorder) ShowGraphicStatus(_ context.Context, state GraphicState, message string) error {
	return r.record(Call{Method: "graphic", State: state, Text: message})
}

func (r *Recorder) TriggerDashboardAlert(_ context.Context, a Alert) error {
	return r.record(Call{Method: "dashboard", Alert: a})
}

func (r *Recorder) ShowText(_ context.Context, message string, style TextStyle, d time.Duration) error {
	return r.record(Call{Method: "text", Text: message, Style: style, Duration: d})
}

func (r *Recorder) Speak(_ context.Context, text string, volume int, lang string) error {
	return r.record(Call{Method: "speak", Text: text, Volume: volume, Lang: lang})
}

func (r *Recorder) PlayCue(_ context.Context, cue string) error {
	return r.record(Call{Method: "cue", Cue: cue})
}

func (r *Recorder) StopAudio(context.Context) error {
	return r.record(Call{Method: "stop_audio"})
}

// Multi fans each call out to every sink and joins their errors.
type Multi []Sink

func (m Multi) ShowGraphicStatus(ctx context.Context, state GraphicState, message string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.ShowGraphicStatus(ctx, state, message))
	}
	return errors.Join(errs...)
}

func (m Multi) TriggerDashboardAlert(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.TriggerDashboardAlert(ctx, a))
	}
	return errors.Join(errs...)
}

func (m Multi) ShowText(ctx context.Context, message string, style TextStyle, d time.Duration) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.ShowText(ctx, message, style, d))
	}
	return errors.Join(errs...)
}

func (m Multi) Speak(ctx context.Context, text string, volume int, lang string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Speak(ctx, text, volume, lang))
	}
	return errors.Join(errs...)
}

// MultiAudio fans cue and stop calls out to every player.
type MultiAudio []AudioPlayer

func (m MultiAudio) PlayCue(ctx context.Context, cue string) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.PlayCue(ctx, cue))
	}
	return errors.Join(errs...)
}

func (m MultiAudio) StopAudio(ctx context.Context) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.StopAudio(ctx))
	}
	return errors.Join(errs...)
}
