// Package ops serves the process's operational endpoints: Prometheus
// metrics and a database health check.
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports whether the database is reachable.
type HealthHandler struct {
	DB      Pinger
	Log     *slog.Logger
	Timeout time.Duration
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

// Serve handles GET /healthz.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected" }
//
// On DB failure: 503 and
//
//	{ "status":"error", "database":"disconnected", "error":"…" }
func (h *HealthHandler) Serve(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	resp := healthResponse{Status: "ok", Database: "connected"}

	if err := h.DB.PingContext(ctx); err != nil {
		if h.Log != nil {
			h.Log.Error("Health check: database ping failed", "error", err)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Error = err.Error()
	}
	_ = json.NewEncoder(w).Encode(resp)
}
