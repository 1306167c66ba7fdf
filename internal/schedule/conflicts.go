package schedule

import (
	"fmt"
	"time"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

const minutesPerWeek = 7 * domain.MinutesPerDay

// Conflict describes two entries of different stations whose windows overlap.
// The resolver still answers deterministically; conflicts are warnings.
type Conflict struct {
	First, Second int // entry indexes, First < Second
	Day           time.Weekday
	At            domain.TimeOfDay // first overlapping minute
}

func (c Conflict) String() string {
	return fmt.Sprintf("schedule entries #%d and #%d overlap on %s at %s",
		c.First+1, c.Second+1, domain.DayCode(c.Day), c.At)
}

// span is a half-open range of minutes within a Monday-first week.
type span struct{ from, to int }

// spans expands e into week minutes, splitting the Sunday overnight
// window that wraps into Monday.
func spans(e domain.ScheduleEntry) []span {
	var out []span
	length := int(e.Length() / time.Minute)
	for _, d := range e.Days.Days() {
		from := domain.WeekIndex(d)*domain.MinutesPerDay + int(e.Start)
		to := from + length
		if to <= minutesPerWeek {
			out = append(out, span{from, to})
			continue
		}
		out = append(out, span{from, minutesPerWeek}, span{0, to - minutesPerWeek})
	}
	return out
}

// Conflicts lists every overlapping pair of entries bound to different
// stations, reporting the earliest overlapping minute of each pair.
func Conflicts(reg *domain.Registry) []Conflict {
	if reg == nil {
		return nil
	}
	expanded := make([][]span, len(reg.Schedule))
	for i, e := range reg.Schedule {
		expanded[i] = spans(e)
	}

	var out []Conflict
	for i := 0; i < len(reg.Schedule); i++ {
		for j := i + 1; j < len(reg.Schedule); j++ {
			if reg.Schedule[i].StationID == reg.Schedule[j].StationID {
				continue
			}
			if at, ok := firstOverlap(expanded[i], expanded[j]); ok {
				out = append(out, Conflict{
					First:  i,
					Second: j,
					Day:    weekdayAt(at),
					At:     domain.TimeOfDay(at % domain.MinutesPerDay),
				})
			}
		}
	}
	return out
}

func firstOverlap(a, b []span) (int, bool) {
	best, found := 0, false
	for _, x := range a {
		for _, y := range b {
			from := max(x.from, y.from)
			if from < min(x.to, y.to) && (!found || from < best) {
				best, found = from, true
			}
		}
	}
	return best, found
}

func weekdayAt(minute int) time.Weekday {
	return time.Weekday((minute/domain.MinutesPerDay + 1) % 7)
}
