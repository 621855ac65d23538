package personalize

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cockpit/fusion/internal/interaction"
	"cockpit/fusion/internal/permission"
	"cockpit/fusion/internal/profile"
	"cockpit/fusion/internal/types"
)

func rec(user, et, mods, intent string) interaction.Record {
	return interaction.Record{UserID: user, EventType: et, InputModalities: mods, RecognizedIntent: intent}
}

func sampleLog() []interaction.Record {
	return []interaction.Record{
		rec("driver", "COMMAND_SUCCESS", "voice", "CONTROL_AC"),
		rec("driver", "COMMAND_SUCCESS", "voice", "CONTROL_AC"),
		rec("driver", "PERMISSION_DENIED", "voice", "RESET_SYSTEM"),
		rec("driver", "USER_DISTRACTED", "gaze", "DRIVER_DISTRACTED"),
		rec("driver", "WARNING_CONFIRMED", "gesture", "CONFIRM_ACTION"),
		rec("driver", "WARNING_REJECTED", "gesture", "REJECT_ACTION"),
		rec("driver", "WARNING_UNRESPONSIVE", "gaze", "WARNING_UNRESPONSIVE"),
		rec("driver", "GENERIC_INFO", "gaze;head_pose", ""),
		rec("", "GENERIC_INFO", "voice", ""),
		rec("passenger", "COMMAND_SUCCESS", "voice", "PLAY_MUSIC"),
	}
}

func TestAnalyze(t *testing.T) {
	h := Analyze(sampleLog())
	require.Len(t, h, 2)

	d := h["driver"]
	assert.Equal(t, map[string]int{"CONTROL_AC": 2, "RESET_SYSTEM": 1}, d.CommonCommands)
	assert.Equal(t, profile.WarningResponses{Confirmed: 1, Rejected: 1, Unresponsive: 1}, d.WarningResponses)
	// voice 3, gaze 3, gesture 2, head_pose 1: tie breaks alphabetically
	assert.Equal(t, "gaze", d.PreferredModality)

	assert.Equal(t, "voice", h["passenger"].PreferredModality)
}

func TestApplyEscalatesUnresponsiveUsers(t *testing.T) {
	doc := profile.DefaultDocument()
	doc.Users["driver"] = profile.User{ID: "driver", Role: permission.RoleDriver, Preferences: profile.DefaultPreferences()}
	pref := profile.DefaultPreferences()
	pref.Events[types.EventUserDistracted] = profile.EventPreference{Verbosity: profile.VerbosityBrief}
	doc.Users["picky"] = profile.User{ID: "picky", Role: permission.RoleDriver, Preferences: pref}

	unresponsive := profile.Habits{WarningResponses: profile.WarningResponses{Unresponsive: 3}}
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	changed := Apply(doc, map[string]profile.Habits{
		"driver": unresponsive,
		"picky":  unresponsive,
		"ghost":  unresponsive,
	}, at)

	assert.Equal(t, []string{"driver", "picky"}, changed)
	assert.Equal(t, profile.VerbosityUrgent, doc.Users["driver"].Preferences.Events[types.EventUserDistracted].Verbosity)
	assert.Equal(t, profile.VerbosityBrief, doc.Users["picky"].Preferences.Events[types.EventUserDistracted].Verbosity)
	assert.Equal(t, at, doc.Users["driver"].Habits.AnalyzedAt)
	assert.Equal(t, profile.VerbosityNormal, doc.Users[profile.DefaultUserID].Preferences.Events[types.EventUserDistracted].Verbosity)
}

func TestPassSavesHabits(t *testing.T) {
	store, err := profile.Open(filepath.Join(t.TempDir(), "profiles.yaml"), zap.NewNop())
	require.NoError(t, err)

	mem := interaction.NewMemory(0)
	for _, r := range []interaction.Record{
		rec(profile.DefaultUserID, "COMMAND_SUCCESS", "voice", "GET_WEATHER"),
		rec(profile.DefaultUserID, "WARNING_UNRESPONSIVE", "gaze", ""),
	} {
		require.NoError(t, mem.Write(context.Background(), r))
	}
	require.NoError(t, Pass(context.Background(), mem, store, zap.NewNop()))

	u, ok := store.User(profile.DefaultUserID)
	require.True(t, ok)
	assert.Equal(t, 1, u.Habits.CommonCommands["GET_WEATHER"])
	assert.Equal(t, 1, u.Habits.WarningResponses.Unresponsive)

	reopened, err := profile.Open(store.Path(), zap.NewNop())
	require.NoError(t, err)
	u, _ = reopened.User(profile.DefaultUserID)
	// one voice, one gaze
	assert.Equal(t, "gaze", u.Habits.PreferredModality)
}

func TestRunDisabled(t *testing.T) {
	assert.NoError(t, Run(context.Background(), 0, nil, nil, zap.NewNop()))
}
