package daemon

import (
	"time"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/schedule"
)

// StationRef identifies a station in status output.
type StationRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Snapshot is the published view of the loop, rebuilt after every tick and
// command. It is immutable once published.
type Snapshot struct {
	State  State  `json:"state"`
	Health string `json:"health"`

	Desired *StationRef     `json:"desired,omitempty"`
	Source  schedule.Source `json:"source"`

	BackendReachable bool               `json:"backend_reachable"`
	Player           domain.PlayerState `json:"player"`

	Override    *schedule.Override `json:"override,omitempty"`
	NewsSkipped bool               `json:"news_skipped"`

	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	NextAttempt         *time.Time `json:"next_attempt,omitempty"`

	ConfigError string `json:"config_error,omitempty"`
	Stations    int    `json:"stations"`

	LastTick  time.Time `json:"last_tick"`
	StartedAt time.Time `json:"started_at"`
}

func stationRef(st *domain.Station) *StationRef {
	if st == nil {
		return nil
	}
	return &StationRef{ID: st.ID, Name: st.Name, URL: st.URL}
}
