package domain

import (
	"fmt"
	"strings"
	"time"
)

// DaySet is a set of weekdays, one bit per time.Weekday.
type DaySet uint8

// AllDays contains every weekday.
const AllDays DaySet = 1<<7 - 1

// weekOrder is the canonical order used when listing days (Monday first).
var weekOrder = [...]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

var dayCodes = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

var codeDays = map[string]DaySet{
	"mon": NewDaySet(time.Monday), "monday": NewDaySet(time.Monday),
	"tue": NewDaySet(time.Tuesday), "tuesday": NewDaySet(time.Tuesday),
	"wed": NewDaySet(time.Wednesday), "wednesday": NewDaySet(time.Wednesday),
	"thu": NewDaySet(time.Thursday), "thursday": NewDaySet(time.Thursday),
	"fri": NewDaySet(time.Friday), "friday": NewDaySet(time.Friday),
	"sat": NewDaySet(time.Saturday), "saturday": NewDaySet(time.Saturday),
	"sun": NewDaySet(time.Sunday), "sunday": NewDaySet(time.Sunday),
	"daily":    AllDays,
	"weekdays": NewDaySet(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
	"weekend":  NewDaySet(time.Saturday, time.Sunday),
}

func NewDaySet(days ...time.Weekday) DaySet {
	var s DaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// ParseDays accepts day codes ("mon".."sun", full names) and the
// shorthands "daily", "weekdays" and "weekend", case-insensitively.
func ParseDays(codes []string) (DaySet, error) {
	var s DaySet
	for _, c := range codes {
		d, ok := codeDays[strings.ToLower(strings.TrimSpace(c))]
		if !ok {
			return 0, fmt.Errorf("unknown day %q", c)
		}
		s |= d
	}
	return s, nil
}

func (s DaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }

func (s DaySet) Empty() bool { return s&AllDays == 0 }

// Days lists the members Monday first.
func (s DaySet) Days() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for _, d := range weekOrder {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Codes lists the members as canonical three-letter codes.
func (s DaySet) Codes() []string {
	days := s.Days()
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = dayCodes[d]
	}
	return out
}

func (s DaySet) String() string { return strings.Join(s.Codes(), ",") }

// DayCode returns the three-letter code of d.
func DayCode(d time.Weekday) string { return dayCodes[d] }

// WeekIndex returns d's position in a Monday-first week (Monday = 0).
func WeekIndex(d time.Weekday) int { return (int(d) + 6) % 7 }

// Previous returns the weekday before d.
func Previous(d time.Weekday) time.Weekday { return (d + 6) % 7 }
