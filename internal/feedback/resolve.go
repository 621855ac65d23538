package feedback

import (
	"time"

	"cockpit/fusion/internal/profile"
	"cockpit/fusion/internal/types"
)

// Hardcoded last-tier defaults.
const (
	DefaultVolume         = 70
	DefaultTextDuration   = 3 * time.Second
	DefaultAlertIntensity = "medium"
	DefaultVerbosity      = profile.VerbosityNormal
)

// Preferences is a fully populated preference record for one event.
type Preferences struct {
	Channels       []profile.Channel `json:"channels"`
	Verbosity      profile.Verbosity `json:"verbosity"`
	Volume         int               `json:"volume"`
	TextDuration   time.Duration     `json:"text_duration"`
	TextEnabled    bool              `json:"text_enabled"`
	AlertIntensity string            `json:"alert_intensity"`
	AudioDisabled  bool              `json:"audio_disabled"`
}

func (p Preferences) Enabled(c profile.Channel) bool {
	for _, x := range p.Channels {
		if x == c {
			return true
		}
	}
	return false
}

// PreferenceSource is satisfied by *profile.Store.
type PreferenceSource interface {
	Preferences(userID string) (profile.FeedbackPreferences, bool)
}

type Resolver struct {
	src PreferenceSource
}

func NewResolver(src PreferenceSource) *Resolver {
	return &Resolver{src: src}
}

// Resolve never fails: each field falls back from the event entry to the
// user's GENERIC_INFO entry and then to the hardcoded default. Unknown users
// resolve through the guest profile.
func (r *Resolver) Resolve(userID string, et types.EventType) Preferences {
	var fp profile.FeedbackPreferences
	if r != nil && r.src != nil {
		var ok bool
		fp, ok = r.src.Preferences(userID)
		if !ok {
			fp, _ = r.src.Preferences(profile.DefaultUserID)
		}
	}
	specific := fp.Events[et]
	generic := fp.Events[types.EventGenericInfo]

	out := Preferences{
		Channels:       []profile.Channel{profile.ChannelText},
		Verbosity:      DefaultVerbosity,
		Volume:         DefaultVolume,
		TextDuration:   DefaultTextDuration,
		TextEnabled:    true,
		AlertIntensity: DefaultAlertIntensity,
		AudioDisabled:  fp.DisableAllAudio,
	}

	switch {
	case len(specific.Channels) > 0:
		out.Channels = append([]profile.Channel(nil), specific.Channels...)
	case len(generic.Channels) > 0:
		out.Channels = append([]profile.Channel(nil), generic.Channels...)
	}

	switch {
	case specific.Verbosity != "":
		out.Verbosity = specific.Verbosity
	case generic.Verbosity != "":
		out.Verbosity = generic.Verbosity
	}

	switch {
	case specific.Volume != nil:
		out.Volume = *specific.Volume
	case generic.Volume != nil:
		out.Volume = *generic.Volume
	case fp.MasterVolume != nil:
		out.Volume = *fp.MasterVolume
	}
	out.Volume = clamp(out.Volume, 0, 100)

	switch {
	case specific.TextDurationMS != nil:
		out.TextDuration = time.Duration(*specific.TextDurationMS) * time.Millisecond
	case generic.TextDurationMS != nil:
		out.TextDuration = time.Duration(*generic.TextDurationMS) * time.Millisecond
	}

	switch {
	case specific.TextEnabled != nil:
		out.TextEnabled = *specific.TextEnabled
	case generic.TextEnabled != nil:
		out.TextEnabled = *generic.TextEnabled
	}

	switch {
	case specific.AlertIntensity != "":
		out.AlertIntensity = specific.AlertIntensity
	case generic.AlertIntensity != "":
		out.AlertIntensity = generic.AlertIntensity
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
