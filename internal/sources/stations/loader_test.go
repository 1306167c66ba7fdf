package stations

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

const sampleYAML = `---
ui:
  theme: dark
  columns: [name, url]
stations:
  - id: fip
    name: FIP
    url: http://icecast.radiofrance.fr/fip-hifi.aac
    favorite: true
    default: true
    icon: fip.png
  - id: jazz
    name: Jazz Radio
    url: http://jazz-wr04.ice.infomaniak.ch/jazz-wr04-128.mp3
schedule:
  - stationId: jazz
    days: [mon, tue, wed, thu, fri]
    start: "08:00"
    end: "09:00"
    color: "#ff0000"
  - stationId: fip
    days: weekend
    start: "23:00"
    end: "01:00"
newsBreaks:
  enabled: true
  blockManual: true
  rules:
    - stationId: fip
      days: daily
      from: "06:00"
      to: "22:00"
      intervalMinutes: 60
      durationMinutes: 5
autoResumeMinutes: 90
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStoreLoad(t *testing.T) {
	store := NewStore(writeFile(t, sampleYAML))

	reg, err := store.Load()
	require.NoError(t, err)

	require.Len(t, reg.Stations, 2)
	def, ok := reg.Default()
	require.True(t, ok)
	assert.Equal(t, "fip", def.ID)
	icon, ok := reg.Stations[0].Extra["icon"].(yaml.Node)
	require.True(t, ok, "unknown keys are kept as nodes")
	assert.Equal(t, "fip.png", icon.Value)

	require.Len(t, reg.Schedule, 2)
	assert.Equal(t, domain.TimeOfDay(8*60), reg.Schedule[0].Start)
	assert.True(t, reg.Schedule[0].Days.Has(time.Friday))
	assert.False(t, reg.Schedule[0].Days.Has(time.Saturday))
	assert.True(t, reg.Schedule[1].Overnight())

	assert.True(t, reg.News.Enabled)
	assert.False(t, reg.News.InterruptManual)
	require.Len(t, reg.News.Rules, 1)
	assert.Equal(t, 60, reg.News.Rules[0].Interval)
	assert.Equal(t, 90*time.Minute, reg.AutoResume)
}

func TestStoreLoadMissingFileIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope.yaml"))

	reg, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, reg.Stations)
	assert.Empty(t, reg.Schedule)
}

func TestStoreLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		issue   string
	}{
		{
			name:    "syntax",
			content: "stations: [\n",
			issue:   "failed to parse config yaml",
		},
		{
			name: "bad time",
			content: `stations: [{id: a, name: A, url: http://a}]
schedule: [{stationId: a, days: [mon], start: "25:00", end: "26:00"}]`,
			issue: "schedule entry #1 start",
		},
		{
			name: "unknown day",
			content: `stations: [{id: a, name: A, url: http://a}]
schedule: [{stationId: a, days: [someday], start: "08:00", end: "09:00"}]`,
			issue: `unknown day "someday"`,
		},
		{
			name: "dangling station",
			content: `stations: [{id: a, name: A, url: http://a}]
schedule: [{stationId: b, days: [mon], start: "08:00", end: "09:00"}]`,
			issue: `unknown station "b"`,
		},
		{
			name: "two defaults",
			content: `stations:
  - {id: a, name: A, url: http://a, default: true}
  - {id: b, name: B, url: http://b, default: true}`,
			issue: "at most one is allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.content)
			_, err := NewStore(path).Load()
			require.Error(t, err)

			var ce *domain.ConfigError
			require.True(t, errors.As(err, &ce), "want *ConfigError, got %T", err)
			assert.Equal(t, path, ce.Path)
			assert.Contains(t, err.Error(), tt.issue)
		})
	}
}

func TestStoreRoundTripKeepsUnknownFields(t *testing.T) {
	store := NewStore(writeFile(t, sampleYAML))

	first, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, store.Save(first))

	second, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, first.Stations[1].ID, second.Stations[1].ID)
	assert.Equal(t, first.Schedule[1].Days, second.Schedule[1].Days)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "theme: dark")
	assert.Contains(t, text, "icon: fip.png")
	assert.Contains(t, text, "#ff0000")
	assert.Contains(t, text, "days: [sat, sun]", "shorthands are saved canonically")

	// A canonical document is a fixed point.
	require.NoError(t, store.Save(second))
	again, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, text, string(again))
}

// A document whose interpreted fields are already canonical must come back
// unchanged, including values the daemon never looks at.
const canonicalYAML = `display:
  gain: 1.0
  added: 2024-01-02
  mask: 0x1F
  label: "yes"
  empty: ~
  tags: [a, b]
stations:
  - id: fip
    name: FIP
    url: http://fip
    favorite: false
    default: true
    volume: 0.50
  - id: news
    name: News
    url: http://news
    default: false
schedule:
  - stationId: fip
    days: [mon, tue]
    start: "08:00"
    end: "09:00"
    note: morning
newsBreaks:
  enabled: true
  blockManual: false
  rules:
    - stationId: news
      days: [mon]
      from: "06:00"
      to: "06:00"
      intervalMinutes: 60
      durationMinutes: 5
      offsetMinutes: 0
autoResumeMinutes: 0
`

func decodeGeneric(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, yaml.Unmarshal(data, &out))
	return out
}

func TestRoundTripIsLossless(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "explicit defaults and foreign values", doc: canonicalYAML},
		{name: "absent optional keys stay absent", doc: `stations:
  - id: a
    name: A
    url: http://a
schedule: []
newsBreaks:
  rules:
    - stationId: a
      days: [mon]
      intervalMinutes: 60
      durationMinutes: 5
`},
		{name: "empty rule list", doc: `stations: []
schedule: []
newsBreaks:
  enabled: false
  rules: []
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := Parse([]byte(tt.doc))
			require.NoError(t, err)
			out, err := Marshal(reg)
			require.NoError(t, err)

			assert.Equal(t, decodeGeneric(t, []byte(tt.doc)), decodeGeneric(t, out), "saved:\n%s", out)
		})
	}
}

func TestRoundTripKeepsScalarSpelling(t *testing.T) {
	reg, err := Parse([]byte(canonicalYAML))
	require.NoError(t, err)
	out, err := Marshal(reg)
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, "gain: 1.0\n")
	assert.Contains(t, text, "added: 2024-01-02\n", "dates are not widened to timestamps")
	assert.Contains(t, text, "mask: 0x1F\n")
	assert.Contains(t, text, `label: "yes"`)
	assert.Contains(t, text, "volume: 0.50\n")
}

func TestNewsDefaults(t *testing.T) {
	reg, err := Parse([]byte(`stations: [{id: a, name: A, url: http://a}]
schedule: []
newsBreaks:
  rules: [{stationId: a, days: [mon], intervalMinutes: 60, durationMinutes: 5}]
`))
	require.NoError(t, err)
	assert.True(t, reg.News.Enabled, "enabled defaults to true")
	assert.False(t, reg.News.InterruptManual, "manual overrides block news by default")
	assert.Equal(t, reg.News.Rules[0].From, reg.News.Rules[0].To, "no window means all day")

	// Values set by code survive a save even without a loaded document.
	built := &domain.Registry{
		Stations: []domain.Station{{ID: "a", Name: "A", URL: "http://a"}},
		News: domain.NewsBreaks{
			InterruptManual: true,
			Rules:           []domain.NewsRule{{StationID: "a", Days: domain.AllDays, Interval: 30, Duration: 2}},
		},
		Extra: map[string]any{"ui": map[string]string{"theme": "dark"}},
	}
	out, err := Marshal(built)
	require.NoError(t, err)
	back, err := Parse(out)
	require.NoError(t, err)
	assert.False(t, back.News.Enabled)
	assert.True(t, back.News.InterruptManual)
	assert.Contains(t, string(out), "theme: dark")
}

func TestStoreSaveIsAtomic(t *testing.T) {
	path := writeFile(t, sampleYAML)
	store := NewStore(path)

	reg, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, reg.SetDefault("jazz"))
	require.NoError(t, store.Save(reg))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temporary file left behind: %s", e.Name())
	}

	reloaded, err := store.Load()
	require.NoError(t, err)
	def, _ := reloaded.Default()
	assert.Equal(t, "jazz", def.ID)
}

func TestStoreSaveRejectsInvalidRegistry(t *testing.T) {
	path := writeFile(t, sampleYAML)
	store := NewStore(path)

	reg, err := store.Load()
	require.NoError(t, err)
	reg.Stations[1].Default = true

	err = store.Save(reg)
	require.Error(t, err)
	assert.True(t, domain.IsConfigError(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleYAML, string(data), "document must be untouched")
}

func TestStoreRevision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store := NewStore(path)

	r0 := store.Revision()
	assert.Equal(t, r0, store.Revision(), "no change, same revision")

	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	r1 := store.Revision()
	assert.Greater(t, r1, r0)
	assert.Equal(t, r1, store.Revision())

	store.Touch()
	assert.Greater(t, store.Revision(), r1)

	require.NoError(t, os.Remove(path))
	r2 := store.Revision()
	assert.Greater(t, r2, r1)
}

func TestStoreBackup(t *testing.T) {
	path := writeFile(t, "stations: [\n")
	bak, err := NewStore(path).Backup()
	require.NoError(t, err)
	assert.Equal(t, path+".bak", bak)

	data, err := os.ReadFile(bak)
	require.NoError(t, err)
	assert.Equal(t, "stations: [\n", string(data))
}

func TestStoreNormalize(t *testing.T) {
	legacy := `stations:
  - name: Morning Show
    url: http://morning
  - id: night
    name: Night
    url: http://night
schedule:
  - stationId: Morning Show
    days: mon,tue
    start: "07:00"
    end: "09:00"
  - stationId: night
    days: [sun]
    start: "22:00"
    end: "02:00"
`
	store := NewStore(writeFile(t, legacy))

	_, err := store.Load()
	require.Error(t, err, "legacy document is not valid as-is")

	report, err := store.Normalize()
	require.NoError(t, err)
	require.Contains(t, report.AssignedIDs, "Morning Show")
	assert.Equal(t, 1, report.RewrittenRefs)
	assert.True(t, report.CanonicalRewritten)

	reg, err := store.Load()
	require.NoError(t, err)
	id := report.AssignedIDs["Morning Show"]
	assert.Equal(t, id, reg.Stations[0].ID)
	assert.Equal(t, id, reg.Schedule[0].StationID)
	assert.Equal(t, "night", reg.Schedule[1].StationID)

	report, err = store.Normalize()
	require.NoError(t, err)
	assert.Empty(t, report.AssignedIDs)
	assert.False(t, report.CanonicalRewritten)
}

func TestStoreWatch(t *testing.T) {
	path := writeFile(t, sampleYAML)
	store := NewStore(path)
	changed := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx, changed, logger.New("error", false)) }()

	before := store.Revision()

	// Give the watcher time to register before writing.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(sampleYAML+"\n# edited\n"), 0o644)
		select {
		case <-changed:
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	assert.Greater(t, store.Revision(), before)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
