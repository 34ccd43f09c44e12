package ops

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/streamshare/internal/middleware"
)

// NewRouter mounts /metrics for reg and /healthz for db, with request
// logging on every route.
func NewRouter(reg *prometheus.Registry, db Pinger, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	health := &HealthHandler{DB: db, Log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", health.Serve)
	return r
}
