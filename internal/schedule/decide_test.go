package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

func newsRegistry(blockManual bool) *domain.Registry {
	reg := scenario(true)
	reg.Stations = append(reg.Stations,
		domain.Station{ID: "news", URL: "http://news"},
		domain.Station{ID: "jazz", URL: "http://jazz"},
	)
	reg.News = domain.NewsBreaks{
		Enabled:         true,
		InterruptManual: !blockManual,
		Rules: []domain.NewsRule{{
			StationID: "news",
			Days:      domain.AllDays,
			Interval:  60,
			Duration:  5,
		}},
	}
	return reg
}

func TestDecideLayers(t *testing.T) {
	reg := newsRegistry(false)

	d := Decide(reg, at(1, 8, 30), Inputs{})
	assert.Equal(t, SourceSchedule, d.Source)
	assert.Equal(t, "B", d.StationID())
	assert.Equal(t, "http://b", d.URL())

	d = Decide(reg, at(1, 10, 30), Inputs{})
	assert.Equal(t, SourceDefault, d.Source)

	d = Decide(reg, at(1, 8, 2), Inputs{})
	assert.Equal(t, SourceNews, d.Source)
	assert.Equal(t, "news", d.StationID())
	assert.Equal(t, "B", d.Base.StationID(), "base resolution is kept for the override key")

	d = Decide(reg, at(1, 8, 2), Inputs{NewsSkipped: true})
	assert.Equal(t, SourceSchedule, d.Source)

	reg.Stations[0].Default = false
	d = Decide(reg, at(1, 10, 30), Inputs{})
	assert.Equal(t, SourceNone, d.Source)
	assert.Nil(t, d.Station)
	assert.Empty(t, d.URL())
}

func TestDecideOverridePinsUntilTransition(t *testing.T) {
	reg := newsRegistry(false)
	reg.News.Enabled = false

	ov := NewOverride(reg, "jazz", at(1, 7, 0))
	in := Inputs{Override: &ov}

	d := Decide(reg, at(1, 7, 30), in)
	assert.Equal(t, SourceOverride, d.Source)
	assert.Equal(t, "jazz", d.StationID())
	assert.False(t, d.OverrideExpired)

	// 08:00 opens B's window: the pin lapses.
	d = Decide(reg, at(1, 8, 0), in)
	assert.True(t, d.OverrideExpired)
	assert.Equal(t, "schedule transition", d.ExpiryReason)
	assert.Equal(t, SourceSchedule, d.Source)
	assert.Equal(t, "B", d.StationID())
}

func TestDecideOverrideInsideWindow(t *testing.T) {
	reg := newsRegistry(false)
	reg.News.Enabled = false

	ov := NewOverride(reg, "jazz", at(1, 8, 10))
	in := Inputs{Override: &ov}

	assert.Equal(t, "jazz", Decide(reg, at(1, 8, 59), in).StationID())

	d := Decide(reg, at(1, 9, 0), in)
	assert.True(t, d.OverrideExpired)
	assert.Equal(t, "A", d.StationID())
}

func TestDecideOverrideAutoResume(t *testing.T) {
	reg := newsRegistry(false)
	reg.News.Enabled = false
	reg.AutoResume = 20 * time.Minute

	ov := NewOverride(reg, "jazz", at(1, 10, 0))
	in := Inputs{Override: &ov}

	assert.Equal(t, SourceOverride, Decide(reg, at(1, 10, 19), in).Source)

	d := Decide(reg, at(1, 10, 20), in)
	assert.True(t, d.OverrideExpired)
	assert.Equal(t, "auto resume", d.ExpiryReason)
	assert.Equal(t, SourceDefault, d.Source)
}

func TestDecideOverrideStationRemoved(t *testing.T) {
	reg := newsRegistry(false)
	ov := NewOverride(reg, "jazz", at(1, 10, 0))

	next := reg.Clone()
	require.True(t, next.Remove("jazz"))

	d := Decide(next, at(1, 10, 10), Inputs{Override: &ov})
	assert.True(t, d.OverrideExpired)
	assert.Equal(t, "station removed", d.ExpiryReason)
}

func TestDecideNewsVersusOverride(t *testing.T) {
	for _, block := range []bool{false, true} {
		reg := newsRegistry(block)
		ov := NewOverride(reg, "jazz", at(1, 10, 10))
		d := Decide(reg, at(1, 11, 1), Inputs{Override: &ov})

		if block {
			assert.Equal(t, SourceOverride, d.Source, "an override blocks news by default")
		} else {
			assert.Equal(t, SourceNews, d.Source, "news wins over the override")
		}
		assert.False(t, d.OverrideExpired)
	}
}
