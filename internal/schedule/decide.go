package schedule

import (
	"time"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

// Source names the layer that produced a Decision.
type Source string

const (
	SourceNews     Source = "news"
	SourceOverride Source = "override"
	SourceSchedule Source = "schedule"
	SourceDefault  Source = "default"
	SourceNone     Source = "none"
)

// Override pins a station chosen by hand.
type Override struct {
	StationID string    `json:"station_id"`
	BaseKey   string    `json:"base_key"` // Resolution.Key() when the pin was set
	SetAt     time.Time `json:"set_at"`
}

// NewOverride pins stationID against the schedule decision at now.
func NewOverride(reg *domain.Registry, stationID string, now time.Time) Override {
	return Override{
		StationID: stationID,
		BaseKey:   Resolve(reg, now).Key(),
		SetAt:     now,
	}
}

// Inputs carries the daemon-held state layered over the schedule.
type Inputs struct {
	Override    *Override
	NewsSkipped bool // "no news today"
}

// Decision is the fully layered answer: news, then override, then schedule.
type Decision struct {
	Source  Source
	Station *domain.Station // nil means silence
	Base    Resolution

	// OverrideExpired is set when Inputs.Override no longer applies;
	// the caller should drop it. ExpiryReason says why.
	OverrideExpired bool
	ExpiryReason    string
}

// StationID returns the desired station id, "" for silence.
func (d Decision) StationID() string {
	if d.Station == nil {
		return ""
	}
	return d.Station.ID
}

// URL returns the desired stream URL, "" for silence.
func (d Decision) URL() string {
	if d.Station == nil {
		return ""
	}
	return d.Station.URL
}

// Decide layers news breaks and a manual override over Resolve.
//
// An override lasts until the schedule crosses a transition boundary, until
// the registry's auto-resume delay elapses, or until its station is removed.
// News wins over everything unless the override is active and news is
// configured to respect manual choices.
func Decide(reg *domain.Registry, now time.Time, in Inputs) Decision {
	base := Resolve(reg, now)
	d := Decision{Base: base}

	ov := in.Override
	if ov != nil {
		var reason string
		if _, ok := reg.Lookup(ov.StationID); !ok {
			reason = "station removed"
		} else if ov.BaseKey != base.Key() {
			reason = "schedule transition"
		} else if reg.AutoResume > 0 && now.Sub(ov.SetAt) >= reg.AutoResume {
			reason = "auto resume"
		}
		if reason != "" {
			d.OverrideExpired, d.ExpiryReason = true, reason
			ov = nil
		}
	}

	if reg != nil && reg.News.Enabled && !in.NewsSkipped && (ov == nil || reg.News.InterruptManual) {
		if st, ok := activeNews(reg, now); ok {
			d.Source, d.Station = SourceNews, &st
			return d
		}
	}

	if ov != nil {
		st, _ := reg.Lookup(ov.StationID)
		d.Source, d.Station = SourceOverride, &st
		return d
	}

	switch base.Kind {
	case Scheduled:
		st := base.Station
		d.Source, d.Station = SourceSchedule, &st
	case DefaultStation:
		st := base.Station
		d.Source, d.Station = SourceDefault, &st
	default:
		d.Source = SourceNone
	}
	return d
}

// activeNews returns the station of the first news rule running at now.
func activeNews(reg *domain.Registry, now time.Time) (domain.Station, bool) {
	for _, rule := range reg.News.Rules {
		if !rule.ActiveAt(now) {
			continue
		}
		if st, ok := reg.Lookup(rule.StationID); ok {
			return st, true
		}
	}
	return domain.Station{}, false
}
