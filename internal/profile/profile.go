package profile

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"cockpit/fusion/internal/permission"
	"cockpit/fusion/internal/types"
)

// DefaultUserID is always present in a loaded document.
const DefaultUserID = "guest_user"

var (
	ErrUnknownUser      = errors.New("unknown user")
	ErrUnknownEventType = errors.New("unknown event type in preferences")
	ErrInvalidChannel   = errors.New("unknown feedback channel")
)

// Channel is one feedback output.
type Channel string

const (
	ChannelGraphic   Channel = "visual_graphic_feedback"
	ChannelDashboard Channel = "visual_dashboard_light"
	ChannelText      Channel = "text_display"
	ChannelVoice     Channel = "voice"
)

// DispatchOrder is the fixed order in which channels are driven.
var DispatchOrder = []Channel{ChannelGraphic, ChannelDashboard, ChannelText, ChannelVoice}

func (c Channel) Valid() bool {
	for _, k := range DispatchOrder {
		if c == k {
			return true
		}
	}
	return false
}

type Verbosity string

const (
	VerbosityBrief    Verbosity = "brief"
	VerbosityNormal   Verbosity = "normal"
	VerbosityDetailed Verbosity = "detailed"
	VerbosityUrgent   Verbosity = "urgent"
)

// EventPreference fields are optional; nil/empty means "fall back".
type EventPreference struct {
	Channels       []Channel `yaml:"enabled_modalities,omitempty" json:"enabled_modalities,omitempty"`
	Verbosity      Verbosity `yaml:"voice_detail_level,omitempty" json:"voice_detail_level,omitempty"`
	Volume         *int      `yaml:"volume,omitempty" json:"volume,omitempty"`
	TextDurationMS *int      `yaml:"text_display_duration_ms,omitempty" json:"text_display_duration_ms,omitempty"`
	TextEnabled    *bool     `yaml:"text_display_enabled,omitempty" json:"text_display_enabled,omitempty"`
	AlertIntensity string    `yaml:"visual_alert_intensity,omitempty" json:"visual_alert_intensity,omitempty"`
}

type FeedbackPreferences struct {
	DisableAllAudio bool                                `yaml:"disable_all_audio" json:"disable_all_audio"`
	MasterVolume    *int                                `yaml:"master_volume,omitempty" json:"master_volume,omitempty"`
	Events          map[types.EventType]EventPreference `yaml:"events,omitempty" json:"events,omitempty"`
}

type WarningResponses struct {
	Confirmed    int `yaml:"confirmed" json:"confirmed"`
	Rejected     int `yaml:"rejected" json:"rejected"`
	Unresponsive int `yaml:"unresponsive" json:"unresponsive"`
}

// Habits is written by the personalization pass.
type Habits struct {
	CommonCommands    map[string]int   `yaml:"common_commands,omitempty" json:"common_commands,omitempty"`
	PreferredModality string           `yaml:"preferred_modality,omitempty" json:"preferred_modality,omitempty"`
	WarningResponses  WarningResponses `yaml:"warning_responses" json:"warning_responses"`
	AnalyzedAt        time.Time        `yaml:"analyzed_at,omitempty" json:"analyzed_at,omitempty"`
}

type User struct {
	ID          string              `yaml:"-" json:"id"`
	Name        string              `yaml:"name" json:"name"`
	Role        permission.Role     `yaml:"role" json:"role"`
	Preferences FeedbackPreferences `yaml:"feedback_preferences" json:"feedback_preferences"`
	Habits      Habits              `yaml:"interaction_habits" json:"interaction_habits"`
}

// Document is the persisted user registry. A loaded Document is shared
// read-only between goroutines; mutate only a Clone.
type Document struct {
	Users map[string]User `yaml:"users"`
}

func (d *Document) User(id string) (User, bool) {
	if d == nil {
		return User{}, false
	}
	u, ok := d.Users[id]
	return u, ok
}

// UserIDs returns ids in sorted order.
func (d *Document) UserIDs() []string {
	ids := make([]string, 0, len(d.Users))
	for id := range d.Users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy via an encode/decode round trip.
func (d *Document) Clone() (*Document, error) {
	b, err := d.Marshal()
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode profiles: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode profiles: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse decodes and validates a profile document, inserting the default
// guest user when it is missing.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	if err := doc.normalize(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) normalize() error {
	if d.Users == nil {
		d.Users = make(map[string]User)
	}
	if _, ok := d.Users[DefaultUserID]; !ok {
		d.Users[DefaultUserID] = defaultGuest()
	}
	for id, u := range d.Users {
		u.ID = id
		for et, p := range u.Preferences.Events {
			if !et.Valid() {
				return fmt.Errorf("user %s: %q: %w", id, et, ErrUnknownEventType)
			}
			for _, c := range p.Channels {
				if !c.Valid() {
					return fmt.Errorf("user %s event %s: %q: %w", id, et, c, ErrInvalidChannel)
				}
			}
		}
		d.Users[id] = u
	}
	return nil
}

func intp(v int) *int    { return &v }
func boolp(v bool) *bool { return &v }

// DefaultPreferences are the factory preferences for a new user.
func DefaultPreferences() FeedbackPreferences {
	return FeedbackPreferences{
		DisableAllAudio: false,
		MasterVolume:    intp(70),
		Events: map[types.EventType]EventPreference{
			types.EventUserDistracted: {
				Channels:       []Channel{ChannelVoice, ChannelText, ChannelDashboard, ChannelGraphic},
				Verbosity:      VerbosityNormal,
				TextDurationMS: intp(5000),
				AlertIntensity: "high",
			},
			types.EventCommandSuccess: {
				Channels:    []Channel{ChannelVoice, ChannelGraphic},
				Verbosity:   VerbosityBrief,
				TextEnabled: boolp(false),
			},
			types.EventCommandFailure: {
				Channels:  []Channel{ChannelVoice, ChannelText, ChannelGraphic, ChannelDashboard},
				Verbosity: VerbosityNormal,
			},
			types.EventPermissionDenied: {
				Channels:  []Channel{ChannelVoice, ChannelText, ChannelGraphic, ChannelDashboard},
				Verbosity: VerbosityBrief,
			},
			types.EventGenericInfo: {
				Channels:       []Channel{ChannelText, ChannelGraphic},
				Verbosity:      VerbosityNormal,
				TextDurationMS: intp(3000),
				AlertIntensity: "medium",
			},
		},
	}
}

func defaultGuest() User {
	return User{
		ID:          DefaultUserID,
		Name:        "访客",
		Role:        permission.RoleGuest,
		Preferences: DefaultPreferences(),
	}
}

// DefaultDocument is written when no profile file exists yet.
func DefaultDocument() *Document {
	return &Document{Users: map[string]User{DefaultUserID: defaultGuest()}}
}
