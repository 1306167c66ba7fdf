package stations

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk configuration shared with the GUI.
//
// Every level keeps unknown keys in Extra as raw nodes, so a load/save
// cycle re-emits fields only the GUI understands exactly as written.
// Optional keys are pointers: nil means the key was absent.
type Document struct {
	Stations          []StationDoc         `yaml:"stations"`
	Schedule          []EntryDoc           `yaml:"schedule"`
	NewsBreaks        *NewsDoc             `yaml:"newsBreaks,omitempty"`
	AutoResumeMinutes *int                 `yaml:"autoResumeMinutes,omitempty"`
	Extra             map[string]yaml.Node `yaml:",inline"`
}

type StationDoc struct {
	ID       string               `yaml:"id"`
	Name     string               `yaml:"name"`
	URL      string               `yaml:"url"`
	Favorite *bool                `yaml:"favorite,omitempty"`
	Default  *bool                `yaml:"default,omitempty"`
	Extra    map[string]yaml.Node `yaml:",inline"`
}

type EntryDoc struct {
	StationID string               `yaml:"stationId"`
	Days      DayList              `yaml:"days"`
	Start     string               `yaml:"start"`
	End       string               `yaml:"end"`
	Extra     map[string]yaml.Node `yaml:",inline"`
}

// NewsDoc defaults: enabled is true and blockManual is true when omitted.
type NewsDoc struct {
	Enabled     *bool                `yaml:"enabled,omitempty"`
	BlockManual *bool                `yaml:"blockManual,omitempty"`
	Rules       RuleList             `yaml:"rules,omitempty"`
	Extra       map[string]yaml.Node `yaml:",inline"`
}

// RuleList is omitted only when the key was absent; an explicit empty
// list is written back as `[]`.
type RuleList []NewsRuleDoc

func (l RuleList) IsZero() bool { return l == nil }

type NewsRuleDoc struct {
	StationID       string               `yaml:"stationId"`
	Days            DayList              `yaml:"days"`
	From            *string              `yaml:"from,omitempty"`
	To              *string              `yaml:"to,omitempty"`
	IntervalMinutes int                  `yaml:"intervalMinutes"`
	DurationMinutes int                  `yaml:"durationMinutes"`
	OffsetMinutes   *int                 `yaml:"offsetMinutes,omitempty"`
	Extra           map[string]yaml.Node `yaml:",inline"`
}

// DayList accepts either a sequence (`[mon, tue]`) or a comma separated
// scalar (`mon,tue` or `weekdays`). It is always written as a flow sequence.
type DayList []string

func (d *DayList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var out DayList
		for _, part := range strings.Split(value.Value, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		*d = out
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := value.Decode(&out); err != nil {
			return err
		}
		*d = out
		return nil
	default:
		return fmt.Errorf("line %d: days must be a list or a comma separated string", value.Line)
	}
}

func (d DayList) MarshalYAML() (interface{}, error) {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	for _, code := range d {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: code})
	}
	return n, nil
}
