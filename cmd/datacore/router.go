package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ruslano69/datacore/pkg/connection"
	"github.com/ruslano69/datacore/pkg/metrics"
)

// stateSource - то, что нужно health эндпоинтам от connection.Manager
type stateSource interface {
	State() connection.State
	Stats() connection.Stats
}

// newRouter - служебный HTTP: health, readiness, метрики
func newRouter(conn stateSource, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(conn))
	r.Get("/stats", handleStats(conn))
	r.Handle("/metrics", metrics.Handler())

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz - 200 только когда подключение в состоянии Connected
func handleReadyz(conn stateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		state := conn.State()
		status := http.StatusOK
		if state != connection.StateConnected {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"database": state.String()})
	}
}

func handleStats(conn stateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, conn.Stats())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
