package profile

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the store when its backing file changes. It watches the
// parent directory so editors that replace the file by rename are seen.
type Watcher struct {
	mu       sync.Mutex
	store    *Store
	log      *zap.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration
	pending  time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool

	// onReload is called after each successful reload.
	onReload func(*Document)
}

func NewWatcher(store *Store, log *zap.Logger, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		store:    store,
		log:      log.Named("profile_watcher"),
		watcher:  fw,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// OnReload registers a hook run on the watcher goroutine after a reload.
func (w *Watcher) OnReload(fn func(*Document)) {
	w.mu.Lock()
	w.onReload = fn
	w.mu.Unlock()
}

// Start is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.store.Path())
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.log.Info("watching profiles", zap.String("dir", dir))
	go w.run(ctx)
	return nil
}

// Stop waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.log.Warn("close watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	target := filepath.Clean(w.store.Path())
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	due := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
	if due {
		w.pending = time.Time{}
	}
	hook := w.onReload
	w.mu.Unlock()
	if !due {
		return
	}
	if err := w.store.Reload(); err != nil {
		w.log.Warn("profile reload failed, keeping previous snapshot", zap.Error(err))
		return
	}
	if hook != nil {
		hook(w.store.Snapshot())
	}
}
