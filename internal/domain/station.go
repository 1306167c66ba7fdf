package domain

import "time"

// Station is a named, addressable audio stream.
type Station struct {
	// ID is the stable identifier referenced by schedule entries.
	ID string

	// Name is what the user sees; it may change without breaking references.
	Name string

	// URL is the stream address handed to the player backend.
	URL string

	Favorite bool

	// Default marks the fallback station. At most one station in a
	// Registry carries it.
	Default bool

	// Extra holds document keys the daemon does not interpret.
	// Values are opaque and written back untouched on save.
	Extra map[string]any

	// Present lists optional keys the document spelled out.
	Present KeySet
}

// ScheduleEntry is a recurring weekly window bound to one station.
//
// When End < Start the window is overnight: it begins on each of Days at
// Start and ends at End on the following calendar day. The post-midnight
// part still belongs to the declared day.
type ScheduleEntry struct {
	StationID string
	Days      DaySet
	Start     TimeOfDay
	End       TimeOfDay
	Extra     map[string]any
}

// Overnight reports whether the window crosses midnight.
func (e ScheduleEntry) Overnight() bool { return e.End < e.Start }

// Length returns the window duration.
func (e ScheduleEntry) Length() time.Duration {
	minutes := int(e.End - e.Start)
	if e.Overnight() {
		minutes += MinutesPerDay
	}
	return time.Duration(minutes) * time.Minute
}

// PlayerState is what the backend reports; it is observed, never owned.
type PlayerState struct {
	Playing          bool   `json:"playing"`
	CurrentURL       string `json:"current_url,omitempty"`
	BackendReachable bool   `json:"backend_reachable"`
	Volume           int    `json:"volume"` // -1 when the backend has no mixer
	Bitrate          string `json:"bitrate,omitempty"`
	AudioFormat      string `json:"audio_format,omitempty"`
	Title            string `json:"title,omitempty"`
}

// UnreachableState is the observed state while the backend cannot be queried.
func UnreachableState() PlayerState {
	return PlayerState{Volume: -1}
}
