// Package server exposes the game over HTTP and WebSocket.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/benpaul2002/99/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter wires the HTTP routes. webOrigin is the browser origin allowed to call
// /session with credentials.
func NewRouter(hub *Hub, sessions *session.Issuer, webOrigin string, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"name": "99", "ws": "/ws"})
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ws", hub.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(cors(webOrigin))
		r.Get("/session", func(w http.ResponseWriter, req *http.Request) {
			id, err := sessions.Ensure(w, req)
			if err != nil {
				log.WithError(err).Error("Failed to issue session")
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"clientId": id})
		})
		r.Options("/session", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

// cors allows credentialed requests from allow.
func cors(allow string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && origin == allow {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			w.Header().Add("Vary", "Origin")
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
