package stations

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

// NormalizeReport lists what Normalize changed.
type NormalizeReport struct {
	AssignedIDs        map[string]string // station name -> new id
	RewrittenRefs      int               // schedule/news references switched from name to id
	CanonicalRewritten bool
}

// Normalize migrates a hand-written or legacy document: stations without
// an id get a UUID, references that use a station name are rewritten to
// the id, and the document is saved in canonical form.
func (s *Store) Normalize() (*NormalizeReport, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s does not exist", s.filePath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	doc, err := decode(data)
	if err != nil {
		return nil, err
	}

	report := normalizeDocument(doc, uuid.NewString)

	reg, err := ToRegistry(doc)
	if err != nil {
		var ce *domain.ConfigError
		if errors.As(err, &ce) {
			ce.Path = s.filePath
		}
		return report, err
	}

	out, err := Marshal(reg)
	if err != nil {
		return report, err
	}
	report.CanonicalRewritten = string(out) != string(data)
	if !report.CanonicalRewritten {
		return report, nil
	}
	return report, s.write(out)
}

func normalizeDocument(doc *Document, newID func() string) *NormalizeReport {
	report := &NormalizeReport{AssignedIDs: map[string]string{}}

	ids := make(map[string]bool, len(doc.Stations))
	byName := make(map[string]string, len(doc.Stations))
	for i := range doc.Stations {
		st := &doc.Stations[i]
		if st.ID == "" {
			st.ID = newID()
			report.AssignedIDs[st.Name] = st.ID
		}
		ids[st.ID] = true
		if st.Name != "" {
			if _, dup := byName[st.Name]; !dup {
				byName[st.Name] = st.ID
			}
		}
	}

	resolve := func(ref *string) {
		if ids[*ref] {
			return
		}
		if id, ok := byName[*ref]; ok {
			*ref = id
			report.RewrittenRefs++
		}
	}
	for i := range doc.Schedule {
		resolve(&doc.Schedule[i].StationID)
	}
	if doc.NewsBreaks != nil {
		for i := range doc.NewsBreaks.Rules {
			resolve(&doc.NewsBreaks.Rules[i].StationID)
		}
	}
	return report
}
