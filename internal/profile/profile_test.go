package profile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"cockpit/fusion/internal/permission"
	"cockpit/fusion/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sampleDoc = `
users:
  driver_1:
    name: 张伟
    role: driver
    feedback_preferences:
      disable_all_audio: false
      master_volume: 60
      events:
        USER_DISTRACTED:
          enabled_modalities: [voice, text_display]
          voice_detail_level: urgent
  passenger_1:
    name: 李娜
    role: passenger
`

func TestParseInsertsGuest(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	guest, ok := doc.User(DefaultUserID)
	require.True(t, ok)
	assert.Equal(t, permission.RoleGuest, guest.Role)
	assert.Equal(t, DefaultUserID, guest.ID)

	d, ok := doc.User("driver_1")
	require.True(t, ok)
	assert.Equal(t, "driver_1", d.ID)
	assert.Equal(t, VerbosityUrgent, d.Preferences.Events[types.EventUserDistracted].Verbosity)
	assert.Equal(t, []string{"driver_1", DefaultUserID, "passenger_1"}, doc.UserIDs())
}

func TestParseRejectsUnknownEventAndChannel(t *testing.T) {
	_, err := Parse([]byte("users:\n  a:\n    role: driver\n    feedback_preferences:\n      events:\n        NOT_AN_EVENT: {}\n"))
	assert.True(t, errors.Is(err, ErrUnknownEventType), "got %v", err)

	_, err = Parse([]byte("users:\n  a:\n    role: driver\n    feedback_preferences:\n      events:\n        GENERIC_INFO:\n          enabled_modalities: [hologram]\n"))
	assert.True(t, errors.Is(err, ErrInvalidChannel), "got %v", err)
}

func TestOpenWritesDefaultThenRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	s, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err, "default document should be written")

	err = s.Update(func(doc *Document) error {
		doc.Users["maint"] = User{Name: "Tech", Role: permission.RoleVehicleMaintenance}
		return nil
	})
	require.NoError(t, err)

	reopened, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	role, ok := reopened.RoleOf("maint")
	require.True(t, ok)
	assert.Equal(t, permission.RoleVehicleMaintenance, role)
}

func TestUpdateDoesNotMutatePreviousSnapshot(t *testing.T) {
	s := NewStore(nil, nil)
	before := s.Snapshot()
	require.NoError(t, s.Update(func(doc *Document) error {
		u := doc.Users[DefaultUserID]
		u.Name = "changed"
		doc.Users[DefaultUserID] = u
		return nil
	}))
	assert.Equal(t, "访客", before.Users[DefaultUserID].Name)
	assert.Equal(t, "changed", s.Snapshot().Users[DefaultUserID].Name)
}

func TestReloadKeepsSnapshotOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))
	s, err := Open(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("users: [not, a, map"), 0o644))
	require.Error(t, s.Reload())
	_, ok := s.User("driver_1")
	assert.True(t, ok, "previous snapshot must survive a bad reload")
}

func TestConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	s := NewStore(nil, nil)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				doc := s.Snapshot()
				if _, ok := doc.Users[DefaultUserID]; !ok {
					t.Error("snapshot without guest user")
					return
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		doc := DefaultDocument()
		doc.Users["u"] = User{Role: permission.RoleDriver}
		require.NoError(t, s.Replace(doc))
	}
	close(stop)
	wg.Wait()
}

func TestWatcherHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	s, err := Open(path, nil)
	require.NoError(t, err)

	w, err := NewWatcher(s, nil, 50*time.Millisecond)
	require.NoError(t, err)
	reloaded := make(chan struct{}, 8)
	w.OnReload(func(*Document) { reloaded <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))
	require.Eventually(t, func() bool {
		_, ok := s.User("passenger_1")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	select {
	case <-reloaded:
	case <-time.After(time.Second):
		t.Fatal("reload hook not called")
	}
}
