package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/radio-scheduler/internal/control/deps"
	"github.com/MrSnakeDoc/radio-scheduler/internal/control/handlers"
	"github.com/MrSnakeDoc/radio-scheduler/internal/daemon"
)

// Snapshots go stale on the next tick.
func init() { Register(registerStatus, middleware.NoCache) }

func registerStatus(r chi.Router, d deps.Deps) {
	r.Get("/status", handlers.Command(d, handlers.Fixed(daemon.Status())))
}
