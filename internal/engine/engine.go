// Package engine owns the fusion loop: one goroutine holds the debounce
// buffer, the scene machine and the active user, and everything else talks
// to it through channels or reads its published snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cockpit/fusion/internal/command"
	"cockpit/fusion/internal/debounce"
	"cockpit/fusion/internal/feedback"
	"cockpit/fusion/internal/interaction"
	"cockpit/fusion/internal/permission"
	"cockpit/fusion/internal/profile"
	"cockpit/fusion/internal/scene"
	"cockpit/fusion/internal/types"
)

var ErrEngineStopped = errors.New("engine is not running")

const (
	DefaultVoiceQueue = 8
	unrecognizedText  = "抱歉，我没有听懂。"
)

type Config struct {
	Debounce     debounce.Config
	Scene        scene.Config
	InitialScene types.Scene
	InitialUser  string
	VoiceQueue   int
	// IdleTick steps a neutral frame when the signal source has been quiet
	// this long, so queued voice and warning timeouts still advance. Zero
	// disables it.
	IdleTick time.Duration
}

// Dispatcher is satisfied by *feedback.Dispatcher.
type Dispatcher interface {
	Dispatch(req feedback.Request) feedback.Outcome
}

// Appender is satisfied by *interaction.Logger.
type Appender interface {
	Append(rec interaction.Record)
}

type Deps struct {
	Profiles   *profile.Store
	Dispatcher Dispatcher
	Records    Appender
	Router     *command.Router
}

// Snapshot is the read-only view of the loop published after every tick.
type Snapshot struct {
	Scene      types.Scene    `json:"scene"`
	Phase      scene.Phase    `json:"phase"`
	User       string         `json:"user"`
	Role       string         `json:"role"`
	Gaze       types.Gaze     `json:"gaze"`
	HeadPose   types.HeadPose `json:"head_pose"`
	Gesture    types.Gesture  `json:"gesture"`
	EyesClosed bool           `json:"eyes_closed"`
	Voice      string         `json:"voice,omitempty"`
	Tick       uint64         `json:"tick"`
	Epoch      uint64         `json:"epoch"`
	UpdatedAt  time.Time      `json:"updated_at"`
	LastEvent  string         `json:"last_event,omitempty"`
}

type control struct {
	scene types.Scene
	user  string
	reply chan error
}

type Engine struct {
	cfg Config
	log *zap.Logger

	buf      *debounce.Buffer
	machine  *scene.Machine
	profiles *profile.Store
	checker  *permission.Checker
	resolver *feedback.Resolver
	dispatch Dispatcher
	records  Appender
	router   *command.Router

	// owned by the loop goroutine
	user      string
	tick      uint64
	lastEvent string
	lastFrame types.Frame

	voice   chan string
	control chan control
	epoch   atomic.Uint64
	started atomic.Bool
	running atomic.Bool
	done    chan struct{}

	snap    atomic.Pointer[Snapshot]
	hooksMu sync.RWMutex
	hooks   []func(Snapshot)
}

func New(cfg Config, deps Deps, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.VoiceQueue <= 0 {
		cfg.VoiceQueue = DefaultVoiceQueue
	}
	if cfg.InitialScene == "" {
		cfg.InitialScene = types.SceneFreeRecognition
	}
	if deps.Profiles == nil {
		deps.Profiles = profile.NewStore(nil, log)
	}
	if deps.Router == nil {
		deps.Router = command.NewRouter()
	}
	e := &Engine{
		cfg:      cfg,
		log:      log.Named("engine"),
		buf:      debounce.New(cfg.Debounce),
		machine:  scene.New(cfg.Scene, log),
		profiles: deps.Profiles,
		checker:  permission.NewChecker(deps.Profiles),
		resolver: feedback.NewResolver(deps.Profiles),
		dispatch: deps.Dispatcher,
		records:  deps.Records,
		router:   deps.Router,
		voice:    make(chan string, cfg.VoiceQueue),
		control:  make(chan control),
		done:     make(chan struct{}),
		user:     profile.DefaultUserID,
	}
	e.lastFrame = types.Frame{}.Normalize()
	if es, ok := deps.Dispatcher.(interface{ SetEpochSource(func() uint64) }); ok {
		es.SetEpochSource(e.epoch.Load)
	}
	if cfg.InitialUser != "" {
		if err := e.SetUser(cfg.InitialUser); err != nil {
			e.log.Warn("initial user unknown, using guest", zap.String("user", cfg.InitialUser))
		}
	}
	e.machine.Enter(cfg.InitialScene)
	e.publish(time.Now())
	return e
}

// Snapshot returns the latest published view. Safe from any goroutine.
func (e *Engine) Snapshot() Snapshot { return *e.snap.Load() }

// OnSnapshot registers a hook called from the loop after each publish.
// Hooks must not block.
func (e *Engine) OnSnapshot(fn func(Snapshot)) {
	e.hooksMu.Lock()
	e.hooks = append(e.hooks, fn)
	e.hooksMu.Unlock()
}

func (e *Engine) Running() bool { return e.running.Load() }

// Epoch increments on every scene switch.
func (e *Engine) Epoch() uint64 { return e.epoch.Load() }

// SubmitVoice queues a transcribed utterance for the next tick. It reports
// false when the queue is full and the utterance was dropped.
func (e *Engine) SubmitVoice(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	select {
	case e.voice <- text:
		return true
	default:
		metricVoiceDropped.Inc()
		e.log.Warn("voice queue full, utterance dropped", zap.String("text", text))
		return false
	}
}

// RequestScene asks the running loop to switch scenes between ticks.
func (e *Engine) RequestScene(ctx context.Context, s types.Scene) error {
	return e.request(ctx, control{scene: s})
}

// RequestUser asks the running loop to switch the active user between ticks.
func (e *Engine) RequestUser(ctx context.Context, id string) error {
	if _, ok := e.profiles.User(id); !ok {
		return fmt.Errorf("%s: %w", id, profile.ErrUnknownUser)
	}
	return e.request(ctx, control{user: id})
}

func (e *Engine) request(ctx context.Context, c control) error {
	c.reply = make(chan error, 1)
	select {
	case e.control <- c:
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run owns the loop until ctx is cancelled or frames is closed. It may be
// called once.
func (e *Engine) Run(ctx context.Context, frames <-chan types.Frame) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine already started")
	}
	e.running.Store(true)
	defer func() {
		e.running.Store(false)
		close(e.done)
	}()
	e.log.Info("engine started", zap.String("scene", string(e.machine.State().Scene)), zap.String("user", e.user))

	var idle <-chan time.Time
	if e.cfg.IdleTick > 0 {
		t := time.NewTicker(e.cfg.IdleTick)
		defer t.Stop()
		idle = t.C
	}
	lastFrame := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped")
			return nil
		case c := <-e.control:
			c.reply <- e.apply(c)
		case f, ok := <-frames:
			if !ok {
				e.log.Info("frame source closed")
				return nil
			}
			lastFrame = time.Now()
			e.Step(f)
		case now := <-idle:
			if now.Sub(lastFrame) < e.cfg.IdleTick {
				continue
			}
			metricIdleTicks.Inc()
			e.Step(types.Frame{At: now}.Normalize())
		}
	}
}

func (e *Engine) apply(c control) error {
	if c.scene != "" {
		e.Switch(c.scene)
		return nil
	}
	return e.SetUser(c.user)
}

// Switch enters s, discarding all scene-local and debounce state. In-flight
// feedback from the previous scene is dropped by the epoch check.
func (e *Engine) Switch(s types.Scene) {
	e.epoch.Add(1)
	e.buf.Reset()
	e.machine.Enter(s)
	metricSceneSwitches.WithLabelValues(string(s)).Inc()
	e.log.Info("scene switched", zap.String("scene", string(s)), zap.Uint64("epoch", e.epoch.Load()))
	e.publish(time.Now())
}

// SetUser changes the active user. Scene state is kept.
func (e *Engine) SetUser(id string) error {
	if _, ok := e.profiles.User(id); !ok {
		return fmt.Errorf("%s: %w", id, profile.ErrUnknownUser)
	}
	e.user = id
	e.log.Info("active user", zap.String("user", id))
	e.publish(time.Now())
	return nil
}

// Step runs one tick and returns the log records it produced, one per
// outcome.
func (e *Engine) Step(f types.Frame) []interaction.Record {
	start := time.Now()
	if f.At.IsZero() {
		f.At = start
	}
	if strings.TrimSpace(f.Voice) == "" {
		select {
		case v := <-e.voice:
			f.Voice = v
		default:
		}
	}
	e.tick++
	tick := e.buf.Push(f)
	e.lastFrame = tick.Frame

	role, _ := e.profiles.RoleOf(e.user)
	user := e.user
	actor := scene.Actor{
		UserID: user,
		Role:   string(role),
		Can:    func(tag string) bool { return e.checker.IsPermitted(user, tag) },
	}
	res := e.machine.Step(tick, actor)

	var recs []interaction.Record
	for _, o := range res.Outcomes {
		recs = append(recs, e.emit(o, tick.Frame, string(role)))
	}
	for _, u := range res.Unhandled {
		recs = append(recs, e.emit(e.route(u, actor), tick.Frame, string(role)))
	}

	metricTicks.Inc()
	metricTickSeconds.Observe(time.Since(start).Seconds())
	e.publish(f.At)
	return recs
}

// route turns an utterance the scene declined into a command outcome.
func (e *Engine) route(ev debounce.Event, actor scene.Actor) scene.Outcome {
	summary := "voice=" + ev.Text
	in, ok := e.router.Route(ev.Text)
	if !ok {
		return scene.Outcome{
			Event:        types.MustEvent(types.EventGenericInfo, ev.At, types.InfoPayload{Message: unrecognizedText}),
			Modality:     types.ModalityVoice,
			InputSummary: summary,
			Action:       "none",
			Result:       "unrecognized",
		}
	}
	if !e.checker.IsPermitted(actor.UserID, in.ActionTag) {
		return scene.Outcome{
			Event:        types.MustEvent(types.EventPermissionDenied, ev.At, types.PermissionDeniedPayload{ActionTag: in.ActionTag, Role: actor.Role}),
			Modality:     types.ModalityVoice,
			InputSummary: summary,
			Intent:       in.Name,
			Action:       "none",
			ActionTag:    in.ActionTag,
			Result:       scene.ResultPermissionDenied,
			Notes:        fmt.Sprintf("role %q lacks %s", actor.Role, in.ActionTag),
		}
	}
	return scene.Outcome{
		Event:        types.MustEvent(types.EventCommandSuccess, ev.At, types.CommandPayload{Command: in.Phrase, ActionTag: in.ActionTag}),
		Modality:     types.ModalityVoice,
		InputSummary: summary,
		Intent:       in.Name,
		Action:       strings.ToLower(in.ActionTag),
		ActionTag:    in.ActionTag,
		Result:       scene.ResultSuccess,
	}
}

// emit resolves preferences, dispatches feedback and appends exactly one
// record for the outcome.
func (e *Engine) emit(o scene.Outcome, f types.Frame, role string) interaction.Record {
	et := o.Event.Type
	var fb feedback.Outcome
	if e.dispatch != nil {
		fb = e.dispatch.Dispatch(feedback.Request{
			Event:     o.Event,
			Prefs:     e.resolver.Resolve(e.user, et),
			Epoch:     e.epoch.Load(),
			Cue:       o.Cue,
			StopAudio: o.StopAudio,
		})
	}
	rec := interaction.Record{
		Timestamp:        o.Event.At.UTC().Format(interaction.TimeLayout),
		UserID:           e.user,
		UserRole:         role,
		EventType:        string(et),
		InputModalities:  strings.Join(inputs(o.Modality, f), ";"),
		InputSummary:     o.InputSummary,
		RecognizedIntent: o.Intent,
		ActionTaken:      o.Action,
		ActionResult:     o.Result,
		FeedbackChannels: strings.Join(fb.ChannelNames(), ","),
		FeedbackSummary:  fb.Summary,
		Notes:            o.Notes,
	}
	if e.records != nil {
		e.records.Append(rec)
	}
	e.lastEvent = string(et)
	metricOutcomes.WithLabelValues(string(et), o.Result).Inc()
	e.log.Debug("outcome",
		zap.String("event_type", string(et)),
		zap.String("result", o.Result),
		zap.String("user", e.user),
		zap.Strings("channels", fb.ChannelNames()))
	return rec
}

// inputs lists the triggering modality plus every modality that carried a
// non-neutral label this tick, in priority order.
func inputs(trigger types.Modality, f types.Frame) []string {
	active := map[types.Modality]bool{
		types.ModalityGaze:     f.Gaze.OffRoad(),
		types.ModalityEyeState: f.EyesClosed,
		types.ModalityHeadPose: f.HeadPose != types.HeadStill,
		types.ModalityGesture:  f.Gesture != types.GestureNone,
		types.ModalityVoice:    f.Voice != "",
	}
	active[trigger] = true
	var out []string
	for _, m := range types.Modalities() {
		if active[m] {
			out = append(out, m.String())
		}
	}
	return out
}

func (e *Engine) publish(at time.Time) {
	st := e.machine.State()
	role, _ := e.profiles.RoleOf(e.user)
	s := Snapshot{
		Scene:      st.Scene,
		Phase:      st.Phase,
		User:       e.user,
		Role:       string(role),
		Gaze:       e.lastFrame.Gaze,
		HeadPose:   e.lastFrame.HeadPose,
		Gesture:    e.lastFrame.Gesture,
		EyesClosed: e.lastFrame.EyesClosed,
		Voice:      e.lastFrame.Voice,
		Tick:       e.tick,
		Epoch:      e.epoch.Load(),
		UpdatedAt:  at,
		LastEvent:  e.lastEvent,
	}
	e.snap.Store(&s)
	e.hooksMu.RLock()
	hooks := e.hooks
	e.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(s)
	}
}
