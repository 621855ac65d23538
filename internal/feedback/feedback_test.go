package feedback

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"cockpit/fusion/internal/profile"
	"cockpit/fusion/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type prefMap map[string]profile.FeedbackPreferences

func (m prefMap) Preferences(id string) (profile.FeedbackPreferences, bool) {
	p, ok := m[id]
	return p, ok
}

func intp(v int) *int { return &v }

func TestResolveIsTotal(t *testing.T) {
	resolvers := map[string]*Resolver{
		"nil source":  NewResolver(nil),
		"empty map":   NewResolver(prefMap{}),
		"default doc": NewResolver(profile.NewStore(nil, nil)),
	}
	for name, r := range resolvers {
		for _, user := range []string{"", "ghost", profile.DefaultUserID} {
			for _, et := range types.EventTypes() {
				p := r.Resolve(user, et)
				assert.NotEmpty(t, p.Channels, "%s %q %s", name, user, et)
				assert.NotEmpty(t, p.Verbosity, "%s %q %s", name, user, et)
				assert.NotEmpty(t, p.AlertIntensity, "%s %q %s", name, user, et)
				assert.Positive(t, p.TextDuration, "%s %q %s", name, user, et)
			}
		}
	}
}

func TestResolveHardcodedDefaults(t *testing.T) {
	p := NewResolver(prefMap{}).Resolve("nobody", types.EventCommandSuccess)
	assert.Equal(t, []profile.Channel{profile.ChannelText}, p.Channels)
	assert.Equal(t, profile.VerbosityNormal, p.Verbosity)
	assert.Equal(t, 70, p.Volume)
	assert.False(t, p.AudioDisabled)
	assert.True(t, p.TextEnabled)
}

func TestResolveThreeTierFallback(t *testing.T) {
	src := prefMap{
		"u": {
			MasterVolume: intp(55),
			Events: map[types.EventType]profile.EventPreference{
				types.EventGenericInfo: {
					Channels:  []profile.Channel{profile.ChannelGraphic},
					Verbosity: profile.VerbosityDetailed,
					Volume:    intp(40),
				},
				types.EventUserDistracted: {
					Verbosity: profile.VerbosityUrgent,
				},
				types.EventCommandSuccess: {
					Channels: []profile.Channel{},
				},
			},
		},
	}
	r := NewResolver(src)

	d := r.Resolve("u", types.EventUserDistracted)
	assert.Equal(t, profile.VerbosityUrgent, d.Verbosity, "specific wins")
	assert.Equal(t, []profile.Channel{profile.ChannelGraphic}, d.Channels, "generic fills channels")
	assert.Equal(t, 40, d.Volume, "generic volume beats master")

	c := r.Resolve("u", types.EventCommandSuccess)
	assert.Equal(t, []profile.Channel{profile.ChannelGraphic}, c.Channels, "empty list falls back")

	src["v"] = profile.FeedbackPreferences{MasterVolume: intp(55), DisableAllAudio: true}
	v := r.Resolve("v", types.EventWarningRejected)
	assert.Equal(t, 55, v.Volume, "master volume before hardcoded default")
	assert.True(t, v.AudioDisabled)
}

func TestResolveUnknownUserUsesGuest(t *testing.T) {
	src := prefMap{
		profile.DefaultUserID: {Events: map[types.EventType]profile.EventPreference{
			types.EventGenericInfo: {Channels: []profile.Channel{profile.ChannelVoice}},
		}},
	}
	p := NewResolver(src).Resolve("stranger", types.EventGenericInfo)
	assert.Equal(t, []profile.Channel{profile.ChannelVoice}, p.Channels)
}

func TestMessageVerbosity(t *testing.T) {
	dp := types.DistractedPayload{Direction: types.GazeLeft, Duration: 3300 * time.Millisecond}
	assert.Equal(t, "请注意前方！", Message(types.EventUserDistracted, dp, profile.VerbosityBrief))
	assert.Contains(t, Message(types.EventUserDistracted, dp, profile.VerbosityUrgent), "警告！")
	assert.Contains(t, Message(types.EventUserDistracted, dp, profile.VerbosityNormal), "3.3")

	cp := types.CommandPayload{Command: "打开空调", ActionTag: "CONTROL_AC"}
	assert.Equal(t, "打开空调，已完成。", Message(types.EventCommandSuccess, cp, profile.VerbosityBrief))
	assert.Equal(t, "指令 '打开空调' 已成功执行。", Message(types.EventCommandSuccess, cp, profile.VerbosityNormal))
	assert.Contains(t, Message(types.EventCommandFailure, cp, profile.VerbosityNormal), "原因是：未知")

	scene := types.CommandPayload{Command: "播放音乐", ActionTag: "PLAY_MUSIC", Message: "音乐正在播放"}
	assert.Equal(t, "播放音乐，已完成。", Message(types.EventCommandSuccess, scene, profile.VerbosityBrief))
	assert.Equal(t, "音乐正在播放", Message(types.EventCommandSuccess, scene, profile.VerbosityNormal))
	assert.Equal(t, "请立即注意！音乐正在播放", Message(types.EventCommandSuccess, scene, profile.VerbosityUrgent))

	pd := types.PermissionDeniedPayload{ActionTag: "RESET_SYSTEM", Role: "passenger"}
	assert.Equal(t, "权限不足。", Message(types.EventPermissionDenied, pd, profile.VerbosityBrief))
	assert.Contains(t, Message(types.EventPermissionDenied, pd, profile.VerbosityNormal), "RESET_SYSTEM")

	assert.Equal(t, "检测到目光区域在下方", Message(types.EventGenericInfo, types.InfoPayload{GazeArea: types.GazeDown}, profile.VerbosityNormal))
	assert.Equal(t, "收到一条新信息。", Message(types.EventGenericInfo, types.InfoPayload{}, profile.VerbosityNormal))

	// pure: same inputs, same output
	assert.Equal(t, Message(types.EventUserDistracted, dp, profile.VerbosityNormal), Message(types.EventUserDistracted, dp, profile.VerbosityNormal))
}

func allChannels(v profile.Verbosity, vol int) Preferences {
	return Preferences{
		Channels:       []profile.Channel{profile.ChannelVoice, profile.ChannelText, profile.ChannelDashboard, profile.ChannelGraphic},
		Verbosity:      v,
		Volume:         vol,
		TextDuration:   5 * time.Second,
		TextEnabled:    true,
		AlertIntensity: "medium",
	}
}

func distracted() types.Event {
	return types.MustEvent(types.EventUserDistracted, time.Now(), types.DistractedPayload{Direction: types.GazeLeft, Duration: 3 * time.Second})
}

func TestDispatchFixedChannelOrder(t *testing.T) {
	rec := NewRecorder()
	d := NewDispatcher(rec, rec, DefaultConfig(), nil)
	out := d.Dispatch(Request{Event: distracted(), Prefs: allChannels(profile.VerbosityNormal, 70), Cue: "beep"})
	d.Wait()

	assert.Equal(t, []string{"graphic", "dashboard", "text", "speak", "cue"}, rec.Methods())
	assert.Equal(t, []profile.Channel{profile.ChannelGraphic, profile.ChannelDashboard, profile.ChannelText, profile.ChannelVoice}, out.Channels)
	assert.NotEmpty(t, out.JobID)
	assert.Equal(t, 5, len(strings.Split(out.Summary, "; ")))

	calls := rec.Calls()
	assert.Equal(t, GraphicError, calls[0].State)
	assert.Equal(t, Alert{Type: "warning_blink_red", Intensity: "medium", Color: "red"}, calls[1].Alert)
	assert.Equal(t, TextError, calls[2].Style)
	assert.Equal(t, 70, calls[3].Volume)
	assert.Equal(t, "zh-CN", calls[3].Lang)
}

func TestDispatchUrgentVolumeCapped(t *testing.T) {
	cases := []struct{ in, want int }{{50, 70}, {70, 90}, {85, 90}, {95, 90}, {100, 90}}
	for _, tc := range cases {
		rec := NewRecorder()
		d := NewDispatcher(rec, nil, DefaultConfig(), nil)
		d.Dispatch(Request{Event: distracted(), Prefs: allChannels(profile.VerbosityUrgent, tc.in)})
		d.Wait()
		calls := rec.Calls()
		require.Len(t, calls, 4)
		assert.Equal(t, tc.want, calls[3].Volume, "input %d", tc.in)
		assert.Equal(t, "warning_solid_red", calls[1].Alert.Type)
	}
}

func TestDispatchAudioDisabledSkipsVoice(t *testing.T) {
	rec := NewRecorder()
	d := NewDispatcher(rec, nil, DefaultConfig(), nil)
	p := allChannels(profile.VerbosityNormal, 70)
	p.AudioDisabled = true
	out := d.Dispatch(Request{Event: distracted(), Prefs: p})
	d.Wait()
	assert.NotContains(t, rec.Methods(), "speak")
	assert.NotContains(t, out.Channels, profile.ChannelVoice)
}

func TestDispatchPassiveFallback(t *testing.T) {
	ev := types.MustEvent(types.EventGenericInfo, time.Now(), types.InfoPayload{GazeArea: types.GazeDown})
	silent := Preferences{Channels: []profile.Channel{profile.ChannelVoice}, AudioDisabled: true, Verbosity: profile.VerbosityNormal}

	rec := NewRecorder()
	d := NewDispatcher(rec, nil, DefaultConfig(), nil)
	out := d.Dispatch(Request{Event: ev, Prefs: silent})
	d.Wait()
	require.Equal(t, []string{"speak"}, rec.Methods())
	assert.True(t, out.Fallback)
	assert.Equal(t, 70, rec.Calls()[0].Volume)

	cfg := DefaultConfig()
	cfg.PassiveVoiceFallback = false
	rec2 := NewRecorder()
	d2 := NewDispatcher(rec2, nil, cfg, nil)
	out2 := d2.Dispatch(Request{Event: ev, Prefs: silent})
	d2.Wait()
	assert.Empty(t, rec2.Methods())
	assert.Equal(t, "none", out2.Summary)

	// another channel already carries it
	rec3 := NewRecorder()
	d3 := NewDispatcher(rec3, nil, DefaultConfig(), nil)
	d3.Dispatch(Request{Event: ev, Prefs: Preferences{Channels: []profile.Channel{profile.ChannelText}, TextEnabled: true, AudioDisabled: true}})
	d3.Wait()
	assert.Equal(t, []string{"text"}, rec3.Methods())
}

type blockingSink struct {
	*Recorder
	release chan struct{}
}

func (b blockingSink) ShowGraphicStatus(ctx context.Context, st GraphicState, msg string) error {
	<-b.release
	return b.Recorder.ShowGraphicStatus(ctx, st, msg)
}

func TestDispatchDoesNotBlockAndDropsStale(t *testing.T) {
	var epoch atomic.Uint64
	sink := blockingSink{Recorder: NewRecorder(), release: make(chan struct{})}
	d := NewDispatcher(sink, nil, DefaultConfig(), nil)
	d.SetEpochSource(epoch.Load)

	done := make(chan Outcome, 1)
	go func() {
		done <- d.Dispatch(Request{Event: distracted(), Prefs: allChannels(profile.VerbosityNormal, 70)})
	}()
	select {
	case out := <-done:
		assert.Len(t, out.Channels, 4)
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a slow sink")
	}

	// scene changes while the first channel is still in flight
	epoch.Add(1)
	close(sink.release)
	d.Wait()
	assert.Equal(t, []string{"graphic"}, sink.Methods(), "remaining channels are discarded")
}

func TestDispatchKeepsOrderAcrossJobs(t *testing.T) {
	sink := blockingSink{Recorder: NewRecorder(), release: make(chan struct{})}
	d := NewDispatcher(sink, nil, DefaultConfig(), nil)
	prefs := Preferences{Channels: []profile.Channel{profile.ChannelGraphic, profile.ChannelText}, TextEnabled: true}

	prompt := types.MustEvent(types.EventGenericInfo, time.Now(), types.InfoPayload{Message: "请确认导航路线"})
	confirmed := types.MustEvent(types.EventCommandSuccess, time.Now(), types.CommandPayload{Command: "确认导航路线", Message: "导航路线已确认"})
	d.Dispatch(Request{Event: prompt, Prefs: prefs})
	d.Dispatch(Request{Event: confirmed, Prefs: prefs})
	close(sink.release)
	d.Wait()

	var texts []string
	for _, c := range sink.Calls() {
		texts = append(texts, c.Method+":"+c.Text)
	}
	assert.Equal(t, []string{
		"graphic:请确认导航路线", "text:请确认导航路线",
		"graphic:导航路线已确认", "text:导航路线已确认",
	}, texts)

	// the worker restarts after the queue drains
	d.Dispatch(Request{Event: confirmed, Prefs: prefs})
	d.Wait()
	assert.Len(t, sink.Calls(), 6)
}

func TestDispatchSinkErrorsAreSwallowed(t *testing.T) {
	rec := NewRecorder()
	rec.Fail = map[string]error{"dashboard": errors.New("bus offline")}
	d := NewDispatcher(rec, nil, DefaultConfig(), nil)
	d.Dispatch(Request{Event: distracted(), Prefs: allChannels(profile.VerbosityNormal, 70)})
	d.Wait()
	assert.Equal(t, []string{"graphic", "dashboard", "text", "speak"}, rec.Methods())
}

func TestMultiJoinsErrors(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	b.Fail = map[string]error{"speak": errors.New("no speaker")}
	m := Multi{a, b}
	err := m.Speak(context.Background(), "hi", 50, "zh-CN")
	require.Error(t, err)
	assert.Equal(t, []string{"speak"}, a.Methods())
	assert.Equal(t, []string{"speak"}, b.Methods())
	assert.NoError(t, m.ShowText(context.Background(), "x", TextInfo, time.Second))
}
