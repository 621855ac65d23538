package feedback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cockpit/fusion/internal/profile"
	"cockpit/fusion/internal/types"
)

type Config struct {
	Lang string
	// PassiveVoiceFallback speaks passively observed conditions that would
	// otherwise reach no channel at all.
	PassiveVoiceFallback bool
	UrgentBoost          int
	VolumeCap            int
	FallbackVolume       int
	CallTimeout          time.Duration
}

func DefaultConfig() Config {
	return Config{
		Lang:                 "zh-CN",
		PassiveVoiceFallback: true,
		UrgentBoost:          20,
		VolumeCap:            90,
		FallbackVolume:       70,
		CallTimeout:          5 * time.Second,
	}
}

// Request is one domain event ready for dispatch.
type Request struct {
	Event     types.Event
	Prefs     Preferences
	Epoch     uint64
	Cue       string
	StopAudio bool
}

// Outcome is what the interaction log records about a dispatch.
type Outcome struct {
	JobID    string            `json:"job_id"`
	Channels []profile.Channel `json:"channels"`
	Message  string            `json:"message"`
	Summary  string            `json:"summary"`
	Fallback bool              `json:"fallback,omitempty"`
}

// ChannelNames renders channels for the log record.
func (o Outcome) ChannelNames() []string {
	out := make([]string, 0, len(o.Channels))
	for _, c := range o.Channels {
		out = append(out, string(c))
	}
	return out
}

type graphicCall struct {
	state GraphicState
	msg   string
}

type textCall struct {
	msg   string
	style TextStyle
	dur   time.Duration
}

type voiceCall struct {
	text   string
	volume int
}

type plan struct {
	graphic *graphicCall
	alert   *Alert
	text    *textCall
	voice   *voiceCall
	cue     string
	stop    bool
}

type job struct {
	id    string
	epoch uint64
	p     plan
}

// Dispatcher runs channel calls on a single background worker, so jobs
// reach the sinks in dispatch order.
type Dispatcher struct {
	sink  Sink
	audio AudioPlayer
	cfg   Config
	log   *zap.Logger

	mu    sync.RWMutex
	epoch func() uint64

	qmu      sync.Mutex
	queue    []job
	draining bool

	wg sync.WaitGroup
}

func NewDispatcher(sink Sink, audio AudioPlayer, cfg Config, log *zap.Logger) *Dispatcher {
	d := DefaultConfig()
	if cfg.Lang == "" {
		cfg.Lang = d.Lang
	}
	if cfg.VolumeCap <= 0 {
		cfg.VolumeCap = d.VolumeCap
	}
	if cfg.FallbackVolume <= 0 {
		cfg.FallbackVolume = d.FallbackVolume
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = d.CallTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{sink: sink, audio: audio, cfg: cfg, log: log.Named("dispatch")}
}

// SetEpochSource installs the scene epoch reader used to drop stale work.
func (d *Dispatcher) SetEpochSource(fn func() uint64) {
	d.mu.Lock()
	d.epoch = fn
	d.mu.Unlock()
}

func (d *Dispatcher) stale(epoch uint64) bool {
	d.mu.RLock()
	fn := d.epoch
	d.mu.RUnlock()
	return fn != nil && fn() != epoch
}

// Dispatch computes the outcome synchronously and queues the channel calls
// for the background worker. It never blocks on a sink.
func (d *Dispatcher) Dispatch(req Request) Outcome {
	p, out := d.plan(req)
	out.JobID = uuid.New().String()
	metricDispatches.WithLabelValues(string(req.Event.Type)).Inc()

	d.wg.Add(1)
	d.qmu.Lock()
	d.queue = append(d.queue, job{id: out.JobID, epoch: req.Epoch, p: p})
	metricQueueDepth.Set(float64(len(d.queue)))
	if !d.draining {
		d.draining = true
		go d.drain()
	}
	d.qmu.Unlock()
	return out
}

// drain runs queued jobs in FIFO order and exits once the queue is empty.
func (d *Dispatcher) drain() {
	for {
		d.qmu.Lock()
		if len(d.queue) == 0 {
			d.draining = false
			d.qmu.Unlock()
			return
		}
		j := d.queue[0]
		d.queue[0] = job{}
		d.queue = d.queue[1:]
		metricQueueDepth.Set(float64(len(d.queue)))
		d.qmu.Unlock()

		d.run(j.id, j.epoch, j.p)
		d.wg.Done()
	}
}

// Wait blocks until all scheduled channel calls have finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) plan(req Request) (plan, Outcome) {
	var (
		p       plan
		out     Outcome
		summary []string
	)
	et := req.Event.Type
	prefs := req.Prefs
	msg := Message(et, req.Event.Payload, prefs.Verbosity)
	out.Message = msg
	urgent := prefs.Verbosity == profile.VerbosityUrgent

	if prefs.Enabled(profile.ChannelGraphic) {
		st := graphicState(et)
		p.graphic = &graphicCall{state: st, msg: msg}
		out.Channels = append(out.Channels, profile.ChannelGraphic)
		summary = append(summary, "graphic="+string(st))
	}
	if prefs.Enabled(profile.ChannelDashboard) {
		a := dashboardAlert(et, urgent, prefs.AlertIntensity)
		p.alert = &a
		out.Channels = append(out.Channels, profile.ChannelDashboard)
		summary = append(summary, fmt.Sprintf("dashboard=%s/%s/%s", a.Type, a.Intensity, a.Color))
	}
	if prefs.Enabled(profile.ChannelText) && prefs.TextEnabled {
		st := textStyle(et)
		p.text = &textCall{msg: msg, style: st, dur: prefs.TextDuration}
		out.Channels = append(out.Channels, profile.ChannelText)
		summary = append(summary, fmt.Sprintf("text=%s/%dms", st, prefs.TextDuration.Milliseconds()))
	}

	switch {
	case prefs.Enabled(profile.ChannelVoice) && !prefs.AudioDisabled:
		vol := prefs.Volume
		if urgent {
			vol = d.boost(vol)
		}
		p.voice = &voiceCall{text: msg, volume: vol}
		out.Channels = append(out.Channels, profile.ChannelVoice)
		summary = append(summary, fmt.Sprintf("voice=%d", vol))
	case d.cfg.PassiveVoiceFallback && len(out.Channels) == 0:
		if desc := passiveDescription(req.Event.Payload); desc != "" {
			p.voice = &voiceCall{text: desc, volume: d.cfg.FallbackVolume}
			out.Channels = append(out.Channels, profile.ChannelVoice)
			out.Fallback = true
			summary = append(summary, fmt.Sprintf("voice_fallback=%d", d.cfg.FallbackVolume))
			metricFallbacks.Inc()
		}
	}

	p.cue = req.Cue
	p.stop = req.StopAudio
	if p.cue != "" {
		summary = append(summary, "cue="+p.cue)
	}
	if p.stop {
		summary = append(summary, "stop_audio")
	}
	if len(summary) == 0 {
		summary = append(summary, "none")
	}
	out.Summary = strings.Join(summary, "; ")
	return p, out
}

// boost raises an urgent volume by the configured offset. The result never
// exceeds the cap, even when the preferred volume already does.
func (d *Dispatcher) boost(vol int) int {
	return min(vol+d.cfg.UrgentBoost, d.cfg.VolumeCap)
}

func (d *Dispatcher) run(jobID string, epoch uint64, p plan) {
	call := func(name string, fn func(ctx context.Context) error) bool {
		if d.stale(epoch) {
			metricStale.Inc()
			d.log.Debug("discarding stale dispatch", zap.String("job", jobID), zap.String("channel", name))
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.CallTimeout)
		defer cancel()
		start := time.Now()
		err := fn(ctx)
		metricChannelLatency.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
		if err != nil {
			metricChannelErrors.WithLabelValues(name).Inc()
			d.log.Warn("channel call failed", zap.String("job", jobID), zap.String("channel", name), zap.Error(err))
		}
		return true
	}

	if d.sink != nil {
		if p.graphic != nil && !call("graphic", func(ctx context.Context) error {
			return d.sink.ShowGraphicStatus(ctx, p.graphic.state, p.graphic.msg)
		}) {
			return
		}
		if p.alert != nil && !call("dashboard", func(ctx context.Context) error {
			return d.sink.TriggerDashboardAlert(ctx, *p.alert)
		}) {
			return
		}
		if p.text != nil && !call("text", func(ctx context.Context) error {
			return d.sink.ShowText(ctx, p.text.msg, p.text.style, p.text.dur)
		}) {
			return
		}
		if p.voice != nil && !call("voice", func(ctx context.Context) error {
			return d.sink.Speak(ctx, p.voice.text, p.voice.volume, d.cfg.Lang)
		}) {
			return
		}
	}
	if d.audio == nil {
		return
	}
	if p.stop && !call("stop_audio", d.audio.StopAudio) {
		return
	}
	if p.cue != "" {
		call("cue", func(ctx context.Context) error { return d.audio.PlayCue(ctx, p.cue) })
	}
}

func graphicState(et types.EventType) GraphicState {
	switch et {
	case types.EventUserDistracted, types.EventEyesClosed, types.EventWarningUnresponsive:
		return GraphicError
	case types.EventCommandSuccess, types.EventWarningConfirmed:
		return GraphicSuccess
	case types.EventCommandFailure, types.EventPermissionDenied, types.EventWarningRejected:
		return GraphicWarning
	default:
		return GraphicInfo
	}
}

func textStyle(et types.EventType) TextStyle {
	switch graphicState(et) {
	case GraphicError:
		return TextError
	case GraphicWarning:
		return TextWarning
	default:
		return TextInfo
	}
}

func dashboardAlert(et types.EventType, urgent bool, intensity string) Alert {
	switch et {
	case types.EventUserDistracted, types.EventEyesClosed, types.EventWarningUnresponsive:
		if urgent {
			return Alert{Type: "warning_solid_red", Intensity: "high", Color: "red"}
		}
		return Alert{Type: "warning_blink_red", Intensity: "medium", Color: "red"}
	case types.EventCommandFailure, types.EventPermissionDenied:
		return Alert{Type: "error_blink_orange", Intensity: "medium", Color: "orange"}
	default:
		return Alert{Type: "info_blink_blue", Intensity: intensity, Color: "blue"}
	}
}
