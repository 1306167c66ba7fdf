package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/radio-scheduler/internal/control/deps"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

func writeJSON(d deps.Deps, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		d.Logger.Debug("failed to write response", logger.Error(err))
	}
}

// StatusFor maps a command error to the HTTP status sent to clients.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrUnknownStation):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCommand):
		return http.StatusBadRequest
	case domain.IsConfigError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBackendUnreachable), errors.Is(err, domain.ErrPlay):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNotRunning),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
