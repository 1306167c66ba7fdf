// Package schedule decides which station should be on air at a given instant.
//
// Everything here is a pure function of its inputs: no clocks, no I/O.
package schedule

import (
	"fmt"
	"time"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

// Kind tells which branch of the resolution produced the answer.
type Kind int

const (
	NoStation Kind = iota
	Scheduled
	DefaultStation
)

func (k Kind) String() string {
	switch k {
	case Scheduled:
		return "scheduled"
	case DefaultStation:
		return "default"
	default:
		return "none"
	}
}

// Resolution is the schedule's answer for one instant.
type Resolution struct {
	Kind    Kind
	Station domain.Station // zero for NoStation

	// Entry is the index of the winning schedule entry, -1 otherwise.
	Entry int

	// WindowStart is when the winning window opened (zero unless Scheduled).
	WindowStart time.Time
}

// StationID returns the resolved station id, "" for NoStation.
func (r Resolution) StationID() string {
	if r.Kind == NoStation {
		return ""
	}
	return r.Station.ID
}

// Key identifies the schedule window that produced r. It changes exactly
// when the schedule crosses a transition boundary.
func (r Resolution) Key() string {
	switch r.Kind {
	case Scheduled:
		return fmt.Sprintf("scheduled/%s/%d", r.Station.ID, r.WindowStart.Unix())
	case DefaultStation:
		return "default/" + r.Station.ID
	default:
		return "none"
	}
}

// Resolve returns the station that should be active at now.
//
// An entry matches when now falls inside [Start, End) on one of its days.
// Overnight entries also match before End on the day after a declared day.
// When several entries match, the one whose window opened most recently
// wins; equal openings go to the entry listed first. Without a match the
// default station is returned, or NoStation when there is none.
func Resolve(reg *domain.Registry, now time.Time) Resolution {
	best := Resolution{Kind: NoStation, Entry: -1}
	if reg == nil {
		return best
	}

	for i, e := range reg.Schedule {
		start, ok := windowStart(e, now)
		if !ok {
			continue
		}
		st, found := reg.Lookup(e.StationID)
		if !found {
			continue
		}
		if best.Kind == Scheduled && !start.After(best.WindowStart) {
			continue
		}
		best = Resolution{Kind: Scheduled, Station: st, Entry: i, WindowStart: start}
	}

	if best.Kind == Scheduled {
		return best
	}
	if def, ok := reg.Default(); ok {
		return Resolution{Kind: DefaultStation, Station: def, Entry: -1}
	}
	return best
}

// windowStart reports whether e covers now and when the covering window opened.
func windowStart(e domain.ScheduleEntry, now time.Time) (time.Time, bool) {
	sec := domain.SecondOfDay(now)
	start, end := e.Start.Seconds(), e.End.Seconds()
	today := now.Weekday()

	if !e.Overnight() {
		if e.Days.Has(today) && sec >= start && sec < end {
			return e.Start.On(now), true
		}
		return time.Time{}, false
	}

	// Evening part, attributed to today.
	if e.Days.Has(today) && sec >= start {
		return e.Start.On(now), true
	}
	// Post-midnight part, attributed to yesterday.
	if e.Days.Has(domain.Previous(today)) && sec < end {
		y, m, d := now.Date()
		yesterday := time.Date(y, m, d-1, 12, 0, 0, 0, now.Location())
		return e.Start.On(yesterday), true
	}
	return time.Time{}, false
}
