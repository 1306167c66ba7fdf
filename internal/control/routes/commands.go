package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/radio-scheduler/internal/control/deps"
	"github.com/MrSnakeDoc/radio-scheduler/internal/control/handlers"
	"github.com/MrSnakeDoc/radio-scheduler/internal/daemon"
)

func init() { Register(registerCommands) }

func registerCommands(r chi.Router, d deps.Deps) {
	r.Post("/reload", handlers.Command(d, handlers.Fixed(daemon.Reload())))
	r.Post("/restart", handlers.Command(d, handlers.Fixed(daemon.Restart())))
	r.Post("/play/{stationID}", handlers.Command(d, handlers.PlayStation))
	r.Post("/resume", handlers.Command(d, handlers.Fixed(daemon.Resume())))
	r.Post("/news/skip", handlers.Command(d, handlers.Fixed(daemon.SkipNews())))
	r.Post("/volume/{level}", handlers.Command(d, handlers.SetVolume))
}
