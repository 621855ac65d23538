package panel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	ws "nhooyr.io/websocket"
)

var ErrPanelBusy = errors.New("panel outbox full")

const (
	DefaultOutbox = 64
	writeTimeout  = 2 * time.Second
)

// Message is the envelope for everything sent to or received from a panel.
type Message struct {
	Type    string         `json:"type"`
	TsMs    int64          `json:"ts_ms"`
	Seq     int64          `json:"seq"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Hub keeps at most one connection per device and broadcasts to all of them
// from a single goroutine.
type Hub struct {
	mu    sync.Mutex
	conns map[string]*ws.Conn

	seq    atomic.Int64
	outbox chan Message
	log    *zap.Logger
}

func NewHub(outbox int, log *zap.Logger) *Hub {
	if outbox <= 0 {
		outbox = DefaultOutbox
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		conns:  make(map[string]*ws.Conn),
		outbox: make(chan Message, outbox),
		log:    log.Named("panel"),
	}
}

// Join sets the connection for a device and closes the previous one if present.
func (h *Hub) Join(deviceID string, c *ws.Conn) (replaced bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.conns[deviceID]; ok && old != nil && old != c {
		_ = old.Close(ws.StatusNormalClosure, "replaced")
		replaced = true
	}
	h.conns[deviceID] = c
	metricPanels.Set(float64(len(h.conns)))
	return
}

// Leave removes c if it is still the device's current connection.
func (h *Hub) Leave(deviceID string, c *ws.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[deviceID] == c {
		delete(h.conns, deviceID)
	}
	metricPanels.Set(float64(len(h.conns)))
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) envelope(typ string, payload map[string]any) Message {
	return Message{Type: typ, TsMs: time.Now().UnixMilli(), Seq: h.seq.Add(1), Payload: payload}
}

// Publish queues a broadcast. It never blocks; a full outbox drops the
// message and returns ErrPanelBusy.
func (h *Hub) Publish(typ string, payload map[string]any) error {
	select {
	case h.outbox <- h.envelope(typ, payload):
		return nil
	default:
		metricDropped.WithLabelValues(typ).Inc()
		return ErrPanelBusy
	}
}

// Send writes directly to one device.
func (h *Hub) Send(ctx context.Context, deviceID, typ string, payload map[string]any) error {
	h.mu.Lock()
	c := h.conns[deviceID]
	h.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Write(ctx, ws.MessageText, mustJSON(h.envelope(typ, payload)))
}

// Run drains the outbox until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-h.outbox:
			h.broadcast(ctx, m)
		}
	}
}

func (h *Hub) broadcast(ctx context.Context, m Message) {
	h.mu.Lock()
	targets := make(map[string]*ws.Conn, len(h.conns))
	for id, c := range h.conns {
		targets[id] = c
	}
	h.mu.Unlock()

	data := mustJSON(m)
	for id, c := range targets {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.Write(wctx, ws.MessageText, data)
		cancel()
		if err != nil {
			metricWriteErrors.Inc()
			h.log.Debug("panel write failed", zap.String("device", id), zap.String("type", m.Type), zap.Error(err))
			continue
		}
		metricSent.WithLabelValues(m.Type).Inc()
	}
}

// local helper
func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
