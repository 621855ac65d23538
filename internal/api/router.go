package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter mounts the control API. panelWS may be nil when no GUI panel
// endpoint is served.
func NewRouter(h *Handlers, panelWS http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", h.HandleReady)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/state", only(http.MethodGet, h.HandleState))
	mux.HandleFunc("/scene", only(http.MethodPost, h.HandleScene))
	mux.HandleFunc("/voice", only(http.MethodPost, h.HandleVoice))
	mux.HandleFunc("/users", only(http.MethodGet, h.HandleUsers))
	mux.HandleFunc("/users/active", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.HandleActiveUser(w, r)
	})
	mux.HandleFunc("/records", only(http.MethodGet, h.HandleRecords))
	mux.HandleFunc("/tokens", only(http.MethodPost, h.HandleMintToken))

	if panelWS != nil {
		mux.HandleFunc("/ws/panel", panelWS)
	}
	return mux
}

func only(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
}

// LogMiddleware logs one line per request.
func LogMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	log = log.Named("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("took", time.Since(start)))
	})
}
