package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/radio-scheduler/internal/control/deps"
	"github.com/MrSnakeDoc/radio-scheduler/internal/daemon"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

// Builder turns a request into a daemon command.
type Builder func(r *http.Request) (daemon.Command, error)

// Fixed returns a Builder for commands without arguments.
func Fixed(cmd daemon.Command) Builder {
	return func(*http.Request) (daemon.Command, error) { return cmd, nil }
}

// PlayStation reads the {stationID} path parameter.
func PlayStation(r *http.Request) (daemon.Command, error) {
	return daemon.Play(chi.URLParam(r, "stationID")), nil
}

// SetVolume reads the {level} path parameter.
func SetVolume(r *http.Request) (daemon.Command, error) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil {
		return daemon.Command{}, domain.ErrInvalidCommand
	}
	return daemon.Volume(level), nil
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Command submits the built command to the loop and writes its Ack.
// Rejected commands carry the Ack with a non-2xx status.
func Command(d deps.Deps, build Builder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, err := build(r)
		if err != nil {
			writeJSON(d, w, StatusFor(err), errorResponse{Error: err.Error()})
			return
		}

		ctx := r.Context()
		if d.CommandTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.CommandTimeout)
			defer cancel()
		}

		ack, err := d.Daemon.Submit(ctx, cmd)
		if err != nil && ack.Command == "" {
			// Never reached the loop.
			writeJSON(d, w, StatusFor(err), errorResponse{Error: err.Error()})
			return
		}
		writeJSON(d, w, StatusFor(err), ack)
	}
}
