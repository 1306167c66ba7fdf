package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/radio-scheduler/internal/control/deps"
)

func init() { Register(registerMetrics) }

func registerMetrics(r chi.Router, d deps.Deps) {
	if d.Metrics == nil {
		return
	}
	r.Method("GET", "/metrics", d.Metrics)
}
