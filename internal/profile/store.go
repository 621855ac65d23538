package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"cockpit/fusion/internal/permission"
)

// Store holds the current profile snapshot. Readers always see a complete
// document; writers replace the pointer.
type Store struct {
	path string
	log  *zap.Logger

	cur atomic.Pointer[Document]
	// serializes Reload/Save so a stale reload cannot overwrite a newer save
	mu sync.Mutex
}

// NewStore wraps an in-memory document, used by tests and headless replay.
func NewStore(doc *Document, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if doc == nil {
		doc = DefaultDocument()
	}
	_ = doc.normalize()
	s := &Store{log: log.Named("profile")}
	s.cur.Store(doc)
	return s
}

// Open loads path, writing the default document first if it does not exist.
func Open(path string, log *zap.Logger) (*Store, error) {
	s := NewStore(nil, log)
	s.path = path
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.Save(DefaultDocument()); err != nil {
			return nil, err
		}
		s.log.Info("wrote default profiles", zap.String("path", path))
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Snapshot returns the current document. Callers must not mutate it.
func (s *Store) Snapshot() *Document { return s.cur.Load() }

func (s *Store) User(id string) (User, bool) { return s.Snapshot().User(id) }

// RoleOf implements permission.RoleLookup.
func (s *Store) RoleOf(id string) (permission.Role, bool) {
	u, ok := s.User(id)
	if !ok {
		return "", false
	}
	return u.Role, true
}

// Preferences implements the resolver's lookup; unknown users report false.
func (s *Store) Preferences(id string) (FeedbackPreferences, bool) {
	u, ok := s.User(id)
	if !ok {
		return FeedbackPreferences{}, false
	}
	return u.Preferences, true
}

// Replace swaps in a new document without touching disk.
func (s *Store) Replace(doc *Document) error {
	if doc == nil {
		return errors.New("nil profile document")
	}
	if err := doc.normalize(); err != nil {
		return err
	}
	s.cur.Store(doc)
	metricReloads.WithLabelValues("replace").Inc()
	metricUsers.Set(float64(len(doc.Users)))
	return nil
}

// Reload re-reads the backing file. A bad file leaves the previous
// snapshot in place.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		metricReloads.WithLabelValues("error").Inc()
		return fmt.Errorf("read profiles: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		metricReloads.WithLabelValues("error").Inc()
		return err
	}
	s.cur.Store(doc)
	metricReloads.WithLabelValues("file").Inc()
	metricUsers.Set(float64(len(doc.Users)))
	s.log.Info("profiles loaded", zap.String("path", s.path), zap.Int("users", len(doc.Users)))
	return nil
}

// Save persists doc with a temp-file rename, then swaps it in.
func (s *Store) Save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := doc.normalize(); err != nil {
		return err
	}
	if s.path != "" {
		data, err := doc.Marshal()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("create profile dir: %w", err)
		}
		tmp, err := os.CreateTemp(filepath.Dir(s.path), ".profiles-*.yaml")
		if err != nil {
			return fmt.Errorf("create temp profile: %w", err)
		}
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("write temp profile: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return fmt.Errorf("close temp profile: %w", err)
		}
		if err := os.Rename(tmp.Name(), s.path); err != nil {
			os.Remove(tmp.Name())
			return fmt.Errorf("rename profile: %w", err)
		}
	}
	s.cur.Store(doc)
	metricReloads.WithLabelValues("save").Inc()
	metricUsers.Set(float64(len(doc.Users)))
	return nil
}

// Update applies fn to a clone of the current document and saves it.
func (s *Store) Update(fn func(doc *Document) error) error {
	doc, err := s.Snapshot().Clone()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.Save(doc)
}
