package importers

import (
	"encoding/json"
	"fmt"
	"io"
)

// fitcoachJSON mirrors the FitCoach JSON export schema for deserialization.
type fitcoachJSON struct {
	Version   string           `json:"version"`
	Profile   *ParsedProfile   `json:"profile"`
	Plans     []ParsedPlan     `json:"plans"`
	DailyLogs []ParsedDailyLog `json:"daily_logs"`
}

// ParseFitCoachJSON parses a FitCoach JSON export.
func ParseFitCoachJSON(r io.Reader) (*ParsedFile, error) {
	var fj fitcoachJSON
	if err := json.NewDecoder(r).Decode(&fj); err != nil {
		return nil, fmt.Errorf("importers: decode fitcoach json: %w", err)
	}

	if fj.Version == "" {
		return nil, fmt.Errorf("importers: fitcoach json missing version field")
	}

	for i, p := range fj.Plans {
		if len(p.Content) == 0 {
			return nil, fmt.Errorf("importers: plan %d (%q) has no content", i+1, p.Title)
		}
	}

	return &ParsedFile{
		Format:    FormatFitCoachJSON,
		Profile:   fj.Profile,
		Plans:     fj.Plans,
		DailyLogs: fj.DailyLogs,
	}, nil
}
