package domain

import "time"

// PlayAction is a command the daemon issued to the player.
type PlayAction string

const (
	ActionPlay PlayAction = "play"
	ActionStop PlayAction = "stop"
)

// PlayEvent records one issued player command.
type PlayEvent struct {
	ID        string     `json:"id"`
	At        time.Time  `json:"at"`
	Action    PlayAction `json:"action"`
	StationID string     `json:"station_id,omitempty"`
	URL       string     `json:"url,omitempty"`
	Source    string     `json:"source,omitempty"` // schedule layer that asked for it
	Error     string     `json:"error,omitempty"`
}
