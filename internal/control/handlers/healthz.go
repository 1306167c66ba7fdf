package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/radio-scheduler/internal/control/deps"
	"github.com/MrSnakeDoc/radio-scheduler/internal/daemon"
)

type healthzResponse struct {
	Status        string       `json:"status"`
	State         daemon.State `json:"state"`
	Health        string       `json:"health"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Version       string       `json:"version,omitempty"`
	Commit        string       `json:"commit,omitempty"`
	BuildDate     string       `json:"build_date,omitempty"`
	GoVersion     string       `json:"go_version,omitempty"`
}

// Healthz answers from the published snapshot without touching the loop,
// so it stays responsive while a tick is running.
func Healthz(d deps.Deps) http.HandlerFunc {
	start := d.StartTime
	return func(w http.ResponseWriter, r *http.Request) {
		snap := d.Daemon.Snapshot()
		status := http.StatusOK
		if snap.State == daemon.ShuttingDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(d, w, status, healthzResponse{
			Status:        "ok",
			State:         snap.State,
			Health:        snap.Health,
			Version:       d.Version,
			Commit:        d.Commit,
			BuildDate:     d.BuildDate,
			GoVersion:     d.GoVersion,
			UptimeSeconds: d.Now().Sub(start).Seconds(),
		})
	}
}
