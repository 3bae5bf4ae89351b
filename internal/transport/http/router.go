package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter wires the websocket endpoint, the admin API, health and metrics.
func NewRouter(ws *WSHandler, admin *AdminHandler, metricsHandler http.Handler, log *zap.Logger) http.Handler {
	r := mux.NewRouter()
	if log != nil {
		r.Use(accessLog(log))
	}

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	r.HandleFunc("/ws", ws.ServeWS).Methods(http.MethodGet)

	r.HandleFunc("/sessions", admin.ListSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions", admin.CreateSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/today", admin.ListToday).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", admin.UpdateSession).Methods(http.MethodPut)
	r.HandleFunc("/sessions/{id}/entries", admin.Enter).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/leaderboard", admin.Leaderboard).Methods(http.MethodGet)

	return r
}

// accessLog logs one line per plain HTTP request. Websocket upgrades are
// skipped since they hijack the connection for their whole lifetime.
func accessLog(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws" {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("took", time.Since(start)))
		})
	}
}
