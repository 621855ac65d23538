package interaction

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultQueue = 256
	writeTimeout = 2 * time.Second
)

// Logger serializes records onto a Writer from one goroutine. Append never
// blocks the caller.
type Logger struct {
	w     Writer
	log   *zap.Logger
	queue chan Record

	dropped atomic.Uint64
	written atomic.Uint64

	done chan struct{}
}

func NewLogger(w Writer, queue int, log *zap.Logger) *Logger {
	if queue <= 0 {
		queue = DefaultQueue
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{
		w:     w,
		log:   log.Named("interaction"),
		queue: make(chan Record, queue),
		done:  make(chan struct{}),
	}
}

// Append enqueues rec. A full queue drops the record.
func (l *Logger) Append(rec Record) {
	select {
	case l.queue <- rec:
		metricQueueDepth.Set(float64(len(l.queue)))
	default:
		l.drop(rec, "queue_full", nil)
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left and
// closes the writer.
func (l *Logger) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case rec := <-l.queue:
			l.write(ctx, rec)
		case <-ctx.Done():
			l.flush()
			if err := l.w.Close(); err != nil {
				l.log.Warn("writer close failed", zap.Error(err))
			}
			return nil
		}
	}
}

// Done is closed once Run has flushed and closed the writer.
func (l *Logger) Done() <-chan struct{} { return l.done }

func (l *Logger) Dropped() uint64 { return l.dropped.Load() }
func (l *Logger) Written() uint64 { return l.written.Load() }

func (l *Logger) flush() {
	for {
		select {
		case rec := <-l.queue:
			l.write(context.Background(), rec)
		default:
			metricQueueDepth.Set(0)
			return
		}
	}
}

func (l *Logger) write(ctx context.Context, rec Record) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if ctx.Err() != nil {
			ctx = context.Background()
		}
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = l.w.Write(wctx, rec)
		cancel()
		if err == nil {
			l.written.Add(1)
			metricWritten.Inc()
			metricQueueDepth.Set(float64(len(l.queue)))
			return
		}
		metricWriteErrors.Inc()
	}
	l.drop(rec, "write_failed", err)
}

func (l *Logger) drop(rec Record, reason string, err error) {
	l.dropped.Add(1)
	metricDropped.Inc()
	l.log.Warn("interaction record dropped",
		zap.String("reason", reason),
		zap.String("event_type", rec.EventType),
		zap.String("user_id", rec.UserID),
		zap.Error(err))
}
