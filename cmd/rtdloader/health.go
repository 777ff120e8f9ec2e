package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/rtd-loader/internal/connection"
	"github.com/rickgao/rtd-loader/internal/model"
)

// pinger is the database health check.
type pinger interface {
	Ping(ctx context.Context) error
}

// sessionStatus is the part of a session the health endpoint reports.
type sessionStatus interface {
	ID() string
	States() map[model.Family]connection.State
	SkewValue() (time.Duration, bool)
}

// createHealthHandler creates the HTTP handler for health checks and
// metrics.
func createHealthHandler(db pinger, sess sessionStatus, gatherer prometheus.Gatherer, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Session    string                 `json:"session"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Session:    sess.ID(),
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		// Check loaders
		for family, state := range sess.States() {
			health.Components[string(family)] = state.String()
			switch {
			case state == connection.StateFailed:
				health.Status = "unhealthy"
			case state != connection.StateSubscribed && health.Status == "healthy":
				health.Status = "degraded"
			}
		}

		// Clock skew
		if skew, ok := sess.SkewValue(); ok {
			health.Components["clock_skew"] = skew.String()
		} else {
			health.Components["clock_skew"] = "unknown"
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
