package stations

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

// Optional document keys tracked in domain.KeySet.
const (
	keyNewsBreaks  = "newsBreaks"
	keyAutoResume  = "autoResumeMinutes"
	keyFavorite    = "favorite"
	keyDefault     = "default"
	keyEnabled     = "enabled"
	keyBlockManual = "blockManual"
	keyRules       = "rules"
	keyFrom        = "from"
	keyTo          = "to"
	keyOffset      = "offsetMinutes"
)

// ToRegistry converts a parsed document into a registry.
// Field-level problems (bad times, unknown days) are collected into a
// *domain.ConfigError together with the registry invariants.
func ToRegistry(doc *Document) (*domain.Registry, error) {
	var issues []string
	add := func(format string, args ...any) { issues = append(issues, fmt.Sprintf(format, args...)) }

	reg := &domain.Registry{
		Stations: make([]domain.Station, 0, len(doc.Stations)),
		Schedule: make([]domain.ScheduleEntry, 0, len(doc.Schedule)),
		Extra:    extrasIn(doc.Extra),
	}
	if doc.AutoResumeMinutes != nil {
		reg.AutoResume = time.Duration(*doc.AutoResumeMinutes) * time.Minute
		reg.Present.Add(keyAutoResume)
	}

	for _, s := range doc.Stations {
		st := domain.Station{
			ID:    s.ID,
			Name:  s.Name,
			URL:   s.URL,
			Extra: extrasIn(s.Extra),
		}
		if s.Favorite != nil {
			st.Favorite = *s.Favorite
			st.Present.Add(keyFavorite)
		}
		if s.Default != nil {
			st.Default = *s.Default
			st.Present.Add(keyDefault)
		}
		reg.Stations = append(reg.Stations, st)
	}

	for i, e := range doc.Schedule {
		days, err := domain.ParseDays(e.Days)
		if err != nil {
			add("schedule entry #%d: %v", i+1, err)
		}
		start, err := domain.ParseTimeOfDay(e.Start)
		if err != nil {
			add("schedule entry #%d start: %v", i+1, err)
		}
		end, err := domain.ParseTimeOfDay(e.End)
		if err != nil {
			add("schedule entry #%d end: %v", i+1, err)
		}
		reg.Schedule = append(reg.Schedule, domain.ScheduleEntry{
			StationID: e.StationID,
			Days:      days,
			Start:     start,
			End:       end,
			Extra:     extrasIn(e.Extra),
		})
	}

	if n := doc.NewsBreaks; n != nil {
		reg.Present.Add(keyNewsBreaks)
		reg.News = domain.NewsBreaks{Enabled: true, Extra: extrasIn(n.Extra)}
		if n.Enabled != nil {
			reg.News.Enabled = *n.Enabled
			reg.News.Present.Add(keyEnabled)
		}
		if n.BlockManual != nil {
			reg.News.InterruptManual = !*n.BlockManual
			reg.News.Present.Add(keyBlockManual)
		}
		if n.Rules != nil {
			reg.News.Present.Add(keyRules)
		}
		for i, r := range n.Rules {
			days, err := domain.ParseDays(r.Days)
			if err != nil {
				add("news rule #%d: %v", i+1, err)
			}
			from, to, err := newsWindow(r)
			if err != nil {
				add("news rule #%d: %v", i+1, err)
			}
			rule := domain.NewsRule{
				StationID: r.StationID,
				Days:      days,
				From:      from,
				To:        to,
				Interval:  r.IntervalMinutes,
				Duration:  r.DurationMinutes,
				Extra:     extrasIn(r.Extra),
			}
			if r.From != nil {
				rule.Present.Add(keyFrom)
			}
			if r.To != nil {
				rule.Present.Add(keyTo)
			}
			if r.OffsetMinutes != nil {
				rule.Offset = *r.OffsetMinutes
				rule.Present.Add(keyOffset)
			}
			reg.News.Rules = append(reg.News.Rules, rule)
		}
	}

	if len(issues) > 0 {
		return nil, &domain.ConfigError{Issues: issues}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// newsWindow parses the optional from/to pair; both absent means all day.
func newsWindow(r NewsRuleDoc) (domain.TimeOfDay, domain.TimeOfDay, error) {
	if r.From == nil && r.To == nil {
		return 0, 0, nil
	}
	if r.From == nil || r.To == nil {
		return 0, 0, errors.New("from and to must be set together")
	}
	from, err := domain.ParseTimeOfDay(*r.From)
	if err != nil {
		return 0, 0, fmt.Errorf("from: %w", err)
	}
	to, err := domain.ParseTimeOfDay(*r.To)
	if err != nil {
		return 0, 0, fmt.Errorf("to: %w", err)
	}
	return from, to, nil
}

// FromRegistry converts a registry back into its document form. Optional
// keys are written when they differ from their default or were present
// in the loaded document.
func FromRegistry(reg *domain.Registry) (*Document, error) {
	extra, err := extrasOut(reg.Extra)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Stations: make([]StationDoc, 0, len(reg.Stations)),
		Schedule: make([]EntryDoc, 0, len(reg.Schedule)),
		Extra:    extra,
	}
	if minutes := int(reg.AutoResume / time.Minute); minutes != 0 || reg.Present.Has(keyAutoResume) {
		doc.AutoResumeMinutes = &minutes
	}

	for _, s := range reg.Stations {
		extra, err := extrasOut(s.Extra)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", s.ID, err)
		}
		sd := StationDoc{ID: s.ID, Name: s.Name, URL: s.URL, Extra: extra}
		if s.Favorite || s.Present.Has(keyFavorite) {
			sd.Favorite = ptr(s.Favorite)
		}
		if s.Default || s.Present.Has(keyDefault) {
			sd.Default = ptr(s.Default)
		}
		doc.Stations = append(doc.Stations, sd)
	}

	for i, e := range reg.Schedule {
		extra, err := extrasOut(e.Extra)
		if err != nil {
			return nil, fmt.Errorf("schedule entry #%d: %w", i+1, err)
		}
		doc.Schedule = append(doc.Schedule, EntryDoc{
			StationID: e.StationID,
			Days:      e.Days.Codes(),
			Start:     e.Start.String(),
			End:       e.End.String(),
			Extra:     extra,
		})
	}

	n := reg.News
	if !reg.Present.Has(keyNewsBreaks) && !n.Enabled && !n.InterruptManual && len(n.Rules) == 0 && len(n.Extra) == 0 {
		return doc, nil
	}

	extra, err = extrasOut(n.Extra)
	if err != nil {
		return nil, fmt.Errorf("newsBreaks: %w", err)
	}
	nd := &NewsDoc{Extra: extra}
	if !n.Enabled || n.Present.Has(keyEnabled) {
		nd.Enabled = ptr(n.Enabled)
	}
	if n.InterruptManual || n.Present.Has(keyBlockManual) {
		nd.BlockManual = ptr(!n.InterruptManual)
	}
	if len(n.Rules) > 0 || n.Present.Has(keyRules) {
		nd.Rules = make(RuleList, 0, len(n.Rules))
	}
	for i, r := range n.Rules {
		extra, err := extrasOut(r.Extra)
		if err != nil {
			return nil, fmt.Errorf("news rule #%d: %w", i+1, err)
		}
		rd := NewsRuleDoc{
			StationID:       r.StationID,
			Days:            r.Days.Codes(),
			IntervalMinutes: r.Interval,
			DurationMinutes: r.Duration,
			Extra:           extra,
		}
		if r.From != r.To || r.Present.Has(keyFrom) || r.Present.Has(keyTo) {
			rd.From, rd.To = ptr(r.From.String()), ptr(r.To.String())
		}
		if r.Offset != 0 || r.Present.Has(keyOffset) {
			rd.OffsetMinutes = ptr(r.Offset)
		}
		nd.Rules = append(nd.Rules, rd)
	}
	doc.NewsBreaks = nd

	return doc, nil
}

// extrasIn hands unknown keys to the domain as opaque nodes.
func extrasIn(m map[string]yaml.Node) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, n := range m {
		out[k] = n
	}
	return out
}

// extrasOut re-emits loaded nodes verbatim. Values set by code are encoded.
func extrasOut(m map[string]any) (map[string]yaml.Node, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]yaml.Node, len(m))
	for k, v := range m {
		switch v := v.(type) {
		case yaml.Node:
			out[k] = v
		case *yaml.Node:
			out[k] = *v
		default:
			var n yaml.Node
			if err := n.Encode(v); err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = n
		}
	}
	return out, nil
}

func ptr[T any](v T) *T { return &v }
