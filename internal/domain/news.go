package domain

import "time"

// NewsBreaks configures periodic switches to a news station.
type NewsBreaks struct {
	Enabled bool

	// InterruptManual lets a news break cut into a manual override.
	// By default an active override suppresses news.
	InterruptManual bool

	Rules   []NewsRule
	Extra   map[string]any
	Present KeySet
}

// NewsRule describes recurring breaks inside a daily window.
//
// A break is active whenever (minuteOfDay - Offset) mod Interval < Duration,
// for minutes at or after Offset, inside [From, To). From == To means the
// whole day. Days are calendar days.
type NewsRule struct {
	StationID string
	Days      DaySet
	From      TimeOfDay
	To        TimeOfDay
	Interval  int // minutes between break starts
	Duration  int // minutes
	Offset    int // minutes after midnight of the first break
	Extra     map[string]any
	Present   KeySet
}

func (r NewsRule) inWindow(m TimeOfDay) bool {
	switch {
	case r.From == r.To:
		return true
	case r.From < r.To:
		return m >= r.From && m < r.To
	default:
		return m >= r.From || m < r.To
	}
}

// ActiveAt reports whether a break of r is running at t.
func (r NewsRule) ActiveAt(t time.Time) bool {
	if r.Interval <= 0 || r.Duration <= 0 || !r.Days.Has(t.Weekday()) {
		return false
	}
	m := At(t)
	if !r.inWindow(m) {
		return false
	}
	since := int(m) - r.Offset
	if since < 0 {
		return false
	}
	return since%r.Interval < r.Duration
}
