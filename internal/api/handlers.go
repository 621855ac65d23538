package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"cockpit/fusion/internal/auth"
	"cockpit/fusion/internal/engine"
	"cockpit/fusion/internal/health"
	"cockpit/fusion/internal/interaction"
	"cockpit/fusion/internal/profile"
	"cockpit/fusion/internal/types"
)

// Engine is the control surface the HTTP API drives.
type Engine interface {
	Snapshot() engine.Snapshot
	SubmitVoice(text string) bool
	RequestScene(ctx context.Context, s types.Scene) error
	RequestUser(ctx context.Context, id string) error
}

type RecentRecords interface {
	Recent(n int) []interaction.Record
}

type Options struct {
	TokenSecret string
	TokenTTL    time.Duration
	// Health is used by /readyz.
	Health health.Deps
}

type Handlers struct {
	opts     Options
	eng      Engine
	profiles *profile.Store
	records  RecentRecords
	log      *zap.Logger
}

const (
	requestTimeout = 2 * time.Second
	defaultRecords = 50
)

func NewHandlers(opts Options, eng Engine, profiles *profile.Store, records RecentRecords, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	return &Handlers{opts: opts, eng: eng, profiles: profiles, records: records, log: log.Named("api")}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	return dec.Decode(v)
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	st := health.CheckAll(r.Context(), h.opts.Health)
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

func (h *Handlers) HandleScene(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Scene string `json:"scene"`
	}
	if err := decode(w, r, &body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sc, ok := types.ParseScene(body.Scene)
	if !ok {
		http.Error(w, "unknown scene", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.eng.RequestScene(ctx, sc); err != nil {
		h.controlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

func (h *Handlers) HandleActiveUser(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		snap := h.eng.Snapshot()
		writeJSON(w, http.StatusOK, map[string]any{"user": snap.User, "role": snap.Role})
		return
	}
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := decode(w, r, &body); err != nil || body.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.eng.RequestUser(ctx, body.UserID); err != nil {
		h.controlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

func (h *Handlers) HandleUsers(w http.ResponseWriter, r *http.Request) {
	doc := h.profiles.Snapshot()
	users := make([]profile.User, 0, len(doc.Users))
	for _, id := range doc.UserIDs() {
		u, _ := doc.User(id)
		u.ID = id
		users = append(users, u)
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handlers) HandleVoice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decode(w, r, &body); err != nil || body.Text == "" {
		http.Error(w, "text required", http.StatusBadRequest)
		return
	}
	if !h.eng.SubmitVoice(body.Text) {
		http.Error(w, "voice queue full", http.StatusTooManyRequests)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (h *Handlers) HandleRecords(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		http.Error(w, "interaction log not kept in memory", http.StatusNotFound)
		return
	}
	n := defaultRecords
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			http.Error(w, "invalid n", http.StatusBadRequest)
			return
		}
		n = v
	}
	recs := h.records.Recent(n)
	if recs == nil {
		recs = []interaction.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

// HandleMintToken issues a device token for a panel or signal source.
func (h *Handlers) HandleMintToken(w http.ResponseWriter, r *http.Request) {
	if h.opts.TokenSecret == "" {
		http.Error(w, auth.ErrNoTokenSecret.Error(), http.StatusNotFound)
		return
	}
	var body struct {
		DeviceID string `json:"device_id"`
		TTLSecs  int    `json:"ttl_secs"`
	}
	if err := decode(w, r, &body); err != nil || body.DeviceID == "" {
		http.Error(w, "device_id required", http.StatusBadRequest)
		return
	}
	ttl := h.opts.TokenTTL
	if body.TTLSecs > 0 {
		ttl = time.Duration(body.TTLSecs) * time.Second
	}
	exp := time.Now().Add(ttl).Unix()
	tok, err := auth.GenerateDeviceToken(h.opts.TokenSecret, body.DeviceID, exp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": body.DeviceID, "token": tok, "exp": exp})
}

func (h *Handlers) controlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profile.ErrUnknownUser):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrEngineStopped), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.log.Warn("control request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
