package domain

import (
	"fmt"
	"time"
)

// Registry is the full set of stations, schedule entries and news rules.
//
// A Registry handed to the daemon is treated as immutable; mutations go
// through Clone first.
type Registry struct {
	Stations []Station
	Schedule []ScheduleEntry
	News     NewsBreaks

	// AutoResume drops a manual override after this long. Zero disables it.
	AutoResume time.Duration

	Extra   map[string]any
	Present KeySet
}

// KeySet records optional document keys that were present on load, so a
// save writes them back even when they hold their default value.
type KeySet map[string]bool

func (k KeySet) Has(key string) bool { return k[key] }

// Add marks key as present, allocating the set if needed.
func (k *KeySet) Add(key string) {
	if *k == nil {
		*k = KeySet{}
	}
	(*k)[key] = true
}

// Lookup returns the station with the given id.
func (r *Registry) Lookup(id string) (Station, bool) {
	if r == nil {
		return Station{}, false
	}
	for _, s := range r.Stations {
		if s.ID == id {
			return s, true
		}
	}
	return Station{}, false
}

// Default returns the default station, if one is set.
func (r *Registry) Default() (Station, bool) {
	if r == nil {
		return Station{}, false
	}
	for _, s := range r.Stations {
		if s.Default {
			return s, true
		}
	}
	return Station{}, false
}

// Favorites returns the stations flagged as favorite, in document order.
func (r *Registry) Favorites() []Station {
	var out []Station
	for _, s := range r.Stations {
		if s.Favorite {
			out = append(out, s)
		}
	}
	return out
}

// Clone returns a copy whose slices can be mutated freely.
// Extra and Present maps are shared; the daemon never writes to them.
func (r *Registry) Clone() *Registry {
	c := *r
	c.Stations = append([]Station(nil), r.Stations...)
	c.Schedule = append([]ScheduleEntry(nil), r.Schedule...)
	c.News.Rules = append([]NewsRule(nil), r.News.Rules...)
	return &c
}

// SetDefault makes id the only default station. An empty id clears it.
func (r *Registry) SetDefault(id string) error {
	if id != "" {
		if _, ok := r.Lookup(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStation, id)
		}
	}
	for i := range r.Stations {
		r.Stations[i].Default = r.Stations[i].ID == id
	}
	return nil
}

// Upsert adds or replaces a station by id, keeping the single default rule.
func (r *Registry) Upsert(s Station) {
	if s.Default {
		for i := range r.Stations {
			r.Stations[i].Default = false
		}
	}
	for i := range r.Stations {
		if r.Stations[i].ID == s.ID {
			r.Stations[i] = s
			return
		}
	}
	r.Stations = append(r.Stations, s)
}

// Remove deletes a station and every schedule entry or news rule pointing at it.
func (r *Registry) Remove(id string) bool {
	idx := -1
	for i, s := range r.Stations {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	r.Stations = append(r.Stations[:idx:idx], r.Stations[idx+1:]...)

	schedule := r.Schedule[:0:0]
	for _, e := range r.Schedule {
		if e.StationID != id {
			schedule = append(schedule, e)
		}
	}
	r.Schedule = schedule

	rules := r.News.Rules[:0:0]
	for _, n := range r.News.Rules {
		if n.StationID != id {
			rules = append(rules, n)
		}
	}
	r.News.Rules = rules
	return true
}

// Validate checks the registry invariants and returns a *ConfigError
// listing every violation, or nil.
func (r *Registry) Validate() error {
	var issues []string
	add := func(format string, args ...any) { issues = append(issues, fmt.Sprintf(format, args...)) }

	seen := make(map[string]bool, len(r.Stations))
	defaults := 0
	for i, s := range r.Stations {
		switch {
		case s.ID == "":
			add("station #%d (%q) has no id", i+1, s.Name)
		case seen[s.ID]:
			add("duplicate station id %q", s.ID)
		}
		if s.ID != "" {
			seen[s.ID] = true
		}
		if s.URL == "" {
			add("station %q has no url", s.ID)
		}
		if s.Default {
			defaults++
		}
	}
	if defaults > 1 {
		add("%d stations are marked default, at most one is allowed", defaults)
	}

	for i, e := range r.Schedule {
		if !seen[e.StationID] {
			add("schedule entry #%d references unknown station %q", i+1, e.StationID)
		}
		if e.Days.Empty() {
			add("schedule entry #%d has no days", i+1)
		}
		if !e.Start.Valid() || !e.End.Valid() {
			add("schedule entry #%d has an invalid time of day", i+1)
		}
		if e.Start == e.End {
			add("schedule entry #%d starts and ends at %s", i+1, e.Start)
		}
	}

	for i, n := range r.News.Rules {
		if !seen[n.StationID] {
			add("news rule #%d references unknown station %q", i+1, n.StationID)
		}
		if n.Interval < 1 {
			add("news rule #%d interval must be at least 1 minute", i+1)
		}
		if n.Duration < 1 || n.Duration > n.Interval {
			add("news rule #%d duration must be between 1 and the interval", i+1)
		}
		if n.Offset < 0 || n.Offset >= MinutesPerDay {
			add("news rule #%d offset is out of range", i+1)
		}
	}

	if r.AutoResume < 0 {
		add("autoResumeMinutes must not be negative")
	}

	if len(issues) == 0 {
		return nil
	}
	return &ConfigError{Issues: issues}
}
