package handlers

import (
	"net/http"
	"strconv"

	"github.com/MrSnakeDoc/radio-scheduler/internal/control/deps"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 1000
)

type historyResponse struct {
	Events []domain.PlayEvent `json:"events"`
}

func History(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxHistoryLimit {
				writeJSON(d, w, http.StatusBadRequest, errorResponse{Error: "limit must be between 1 and 1000"})
				return
			}
			limit = n
		}

		events, err := d.History.RecentHistory(limit)
		if err != nil {
			d.Logger.Error("failed to read play history", logger.Error(err))
			writeJSON(d, w, http.StatusInternalServerError, errorResponse{Error: "history unavailable"})
			return
		}
		if events == nil {
			events = []domain.PlayEvent{}
		}
		writeJSON(d, w, http.StatusOK, historyResponse{Events: events})
	}
}
