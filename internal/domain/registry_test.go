package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "08:30", want: 8*60 + 30},
		{in: "8:05", want: 8*60 + 5},
		{in: "23:59", want: 23*60 + 59},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:5", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDays(t *testing.T) {
	s, err := ParseDays([]string{"Sun", "mon", "friday"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mon", "fri", "sun"}, s.Codes())

	s, err = ParseDays([]string{"weekdays"})
	require.NoError(t, err)
	assert.True(t, s.Has(time.Wednesday))
	assert.False(t, s.Has(time.Saturday))

	s, err = ParseDays([]string{"daily"})
	require.NoError(t, err)
	assert.Equal(t, AllDays, s)

	_, err = ParseDays([]string{"funday"})
	assert.Error(t, err)
}

func TestScheduleEntryLength(t *testing.T) {
	day := ScheduleEntry{Start: 8 * 60, End: 9 * 60}
	night := ScheduleEntry{Start: 23 * 60, End: 60}

	assert.False(t, day.Overnight())
	assert.Equal(t, time.Hour, day.Length())
	assert.True(t, night.Overnight())
	assert.Equal(t, 2*time.Hour, night.Length())
}

func testRegistry() *Registry {
	return &Registry{
		Stations: []Station{
			{ID: "a", Name: "Alpha", URL: "http://a/stream", Default: true},
			{ID: "b", Name: "Bravo", URL: "http://b/stream", Favorite: true},
		},
		Schedule: []ScheduleEntry{
			{StationID: "b", Days: NewDaySet(time.Monday), Start: 8 * 60, End: 9 * 60},
		},
	}
}

func TestRegistryValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Registry)
		issue  string
	}{
		{name: "valid", mutate: func(*Registry) {}},
		{
			name:   "unknown station",
			mutate: func(r *Registry) { r.Schedule[0].StationID = "zz" },
			issue:  `references unknown station "zz"`,
		},
		{
			name:   "two defaults",
			mutate: func(r *Registry) { r.Stations[1].Default = true },
			issue:  "at most one is allowed",
		},
		{
			name:   "empty window",
			mutate: func(r *Registry) { r.Schedule[0].End = r.Schedule[0].Start },
			issue:  "starts and ends at 08:00",
		},
		{
			name:   "invalid time",
			mutate: func(r *Registry) { r.Schedule[0].End = MinutesPerDay },
			issue:  "invalid time of day",
		},
		{
			name:   "no days",
			mutate: func(r *Registry) { r.Schedule[0].Days = 0 },
			issue:  "has no days",
		},
		{
			name:   "duplicate id",
			mutate: func(r *Registry) { r.Stations[1].ID = "a" },
			issue:  `duplicate station id "a"`,
		},
		{
			name: "bad news rule",
			mutate: func(r *Registry) {
				r.News.Rules = []NewsRule{{StationID: "a", Days: AllDays, Interval: 30, Duration: 45}}
			},
			issue: "duration must be between 1 and the interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRegistry()
			tt.mutate(r)
			err := r.Validate()
			if tt.issue == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
			assert.Contains(t, err.Error(), tt.issue)
		})
	}
}

func TestRegistrySetDefault(t *testing.T) {
	r := testRegistry()

	require.NoError(t, r.SetDefault("b"))
	def, ok := r.Default()
	require.True(t, ok)
	assert.Equal(t, "b", def.ID)
	assert.NoError(t, r.Validate())

	err := r.SetDefault("missing")
	assert.True(t, errors.Is(err, ErrUnknownStation))

	require.NoError(t, r.SetDefault(""))
	_, ok = r.Default()
	assert.False(t, ok)
}

func TestRegistryUpsertKeepsSingleDefault(t *testing.T) {
	r := testRegistry()
	r.Upsert(Station{ID: "c", Name: "Charlie", URL: "http://c", Default: true})

	assert.Len(t, r.Stations, 3)
	def, ok := r.Default()
	require.True(t, ok)
	assert.Equal(t, "c", def.ID)
	assert.NoError(t, r.Validate())
}

func TestRegistryRemoveDropsReferences(t *testing.T) {
	orig := testRegistry()
	r := orig.Clone()

	assert.True(t, r.Remove("b"))
	assert.False(t, r.Remove("b"))
	assert.Len(t, r.Stations, 1)
	assert.Empty(t, r.Schedule)

	assert.Len(t, orig.Stations, 2, "clone must not alias the original")
	assert.Len(t, orig.Schedule, 1)
}

func TestNewsRuleActiveAt(t *testing.T) {
	rule := NewsRule{
		StationID: "news",
		Days:      NewDaySet(time.Monday),
		From:      6 * 60,
		To:        22 * 60,
		Interval:  60,
		Duration:  5,
		Offset:    0,
	}
	mon := func(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC) }

	assert.True(t, rule.ActiveAt(mon(7, 0)))
	assert.True(t, rule.ActiveAt(mon(7, 4)))
	assert.False(t, rule.ActiveAt(mon(7, 5)))
	assert.False(t, rule.ActiveAt(mon(5, 0)), "outside window")
	assert.False(t, rule.ActiveAt(mon(7, 0).AddDate(0, 0, 1)), "tuesday")

	rule.Offset = 55
	rule.Duration = 8
	assert.True(t, rule.ActiveAt(mon(7, 57)))
	assert.True(t, rule.ActiveAt(mon(8, 2)))
	assert.False(t, rule.ActiveAt(mon(8, 3)))
}
