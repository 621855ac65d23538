package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	ws "nhooyr.io/websocket"

	"cockpit/fusion/internal/auth"
	"cockpit/fusion/internal/engine"
	"cockpit/fusion/internal/types"
)

// Controller is the slice of the engine a panel may drive.
type Controller interface {
	Snapshot() engine.Snapshot
	SubmitVoice(text string) bool
	RequestScene(ctx context.Context, s types.Scene) error
}

type Server struct {
	Hub *Hub
	Ctl Controller
	// TokenSecret empty disables panel auth.
	TokenSecret   string
	TokenSkewSecs int
	Log           *zap.Logger
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log.Named("panel")
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if s.TokenSecret != "" {
		if deviceID == "" {
			http.Error(w, "missing device_id", http.StatusBadRequest)
			return
		}
		token, err := auth.BearerToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if _, _, err := auth.ValidateDeviceToken(s.TokenSecret, token, deviceID, time.Now(), s.TokenSkewSecs); err != nil {
			metricAuthFailures.Inc()
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}
	if deviceID == "" {
		deviceID = "panel-" + uuid.NewString()
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		s.log().Warn("ws accept", zap.Error(err))
		return
	}
	if s.Hub.Join(deviceID, c) {
		s.log().Info("panel replaced", zap.String("device", deviceID))
	}
	s.log().Info("panel connected", zap.String("device", deviceID))

	ctx := r.Context()
	if s.Ctl != nil {
		_ = s.Hub.Send(ctx, deviceID, "state", snapshotPayload(s.Ctl.Snapshot()))
	}
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText && typ != ws.MessageBinary {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = s.Hub.Send(ctx, deviceID, "error", map[string]any{"error": "invalid message"})
			continue
		}
		s.handle(ctx, deviceID, msg)
	}
	_ = c.Close(ws.StatusNormalClosure, "done")
	s.Hub.Leave(deviceID, c)
	s.log().Info("panel disconnected", zap.String("device", deviceID))
}

func (s *Server) handle(ctx context.Context, deviceID string, msg Message) {
	reply := func(ok bool, errMsg string) {
		p := map[string]any{"for": msg.Type, "seq": msg.Seq, "ok": ok}
		if errMsg != "" {
			p["error"] = errMsg
		}
		_ = s.Hub.Send(ctx, deviceID, "ack", p)
	}
	if s.Ctl == nil {
		reply(false, "no engine")
		return
	}
	switch msg.Type {
	case "voice":
		text, _ := msg.Payload["text"].(string)
		if !s.Ctl.SubmitVoice(text) {
			reply(false, "voice rejected")
			return
		}
		reply(true, "")
	case "scene":
		name, _ := msg.Payload["scene"].(string)
		sc, ok := types.ParseScene(name)
		if !ok {
			reply(false, "unknown scene")
			return
		}
		rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.Ctl.RequestScene(rctx, sc); err != nil {
			reply(false, err.Error())
			return
		}
		reply(true, "")
	case "state":
		_ = s.Hub.Send(ctx, deviceID, "state", snapshotPayload(s.Ctl.Snapshot()))
	default:
		reply(false, "unknown message type")
	}
}
