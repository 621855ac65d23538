package interaction

import (
	"context"
	"errors"
	"sync"
)

const DefaultMemoryCap = 200

// MemoryWriter keeps the most recent records. Older records are discarded
// and counted once the cap is reached.
type MemoryWriter struct {
	mu        sync.RWMutex
	cap       int
	recs      []Record
	truncated int
}

func NewMemory(capacity int) *MemoryWriter {
	if capacity <= 0 {
		capacity = DefaultMemoryCap
	}
	return &MemoryWriter{cap: capacity}
}

func (m *MemoryWriter) Write(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	if l := len(m.recs); l > m.cap {
		dropped := l - m.cap
		m.recs = append([]Record(nil), m.recs[dropped:]...)
		m.truncated += dropped
	}
	return nil
}

func (m *MemoryWriter) Records(context.Context) ([]Record, error) {
	return m.Recent(0), nil
}

// Recent returns up to n newest records, oldest first. n <= 0 means all.
func (m *MemoryWriter) Recent(n int) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.recs
	if n > 0 && n < len(src) {
		src = src[len(src)-n:]
	}
	out := make([]Record, len(src))
	copy(out, src)
	return out
}

// Truncated is the number of records pushed out by the cap.
func (m *MemoryWriter) Truncated() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.truncated
}

func (m *MemoryWriter) Close() error { return nil }

// Tee writes each record to every writer. All writers are attempted.
type Tee []Writer

func (t Tee) Write(ctx context.Context, rec Record) error {
	var errs []error
	for _, w := range t {
		if err := w.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t Tee) Close() error {
	var errs []error
	for _, w := range t {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
