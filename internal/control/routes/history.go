package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/radio-scheduler/internal/control/deps"
	"github.com/MrSnakeDoc/radio-scheduler/internal/control/handlers"
)

func init() { Register(registerHistory, middleware.NoCache) }

func registerHistory(r chi.Router, d deps.Deps) {
	if d.History == nil {
		return
	}
	r.Get("/history", handlers.History(d))
}
