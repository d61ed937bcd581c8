// Package importers parses FitCoach data exports: the native JSON export
// (profile, plans and daily logs) and the daily log CSV.
package importers

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrUnknownFormat is returned by Parse when the content matches no
// supported format.
var ErrUnknownFormat = errors.New("importers: unrecognized import format")

// Format identifies the source format of an import file.
type Format string

const (
	FormatFitCoachJSON Format = "fitcoach_json"
	FormatLogCSV       Format = "log_csv"
)

// ParsedFile is the unified output from any parser.
type ParsedFile struct {
	Format Format

	// JSON-only fields.
	Profile *ParsedProfile
	Plans   []ParsedPlan

	DailyLogs []ParsedDailyLog
}

// ParsedProfile is a profile from a FitCoach JSON export.
type ParsedProfile struct {
	Age                 int      `json:"age"`
	WeightKg            float64  `json:"weight_kg"`
	HeightCm            float64  `json:"height_cm"`
	Gender              string   `json:"gender"`
	Goal                string   `json:"goal"`
	ActivityLevel       string   `json:"activity_level"`
	ExperienceLevel     string   `json:"experience_level"`
	Equipment           []string `json:"equipment"`
	TrainingDaysPerWeek int      `json:"training_days_per_week"`
	DietaryPreferences  []string `json:"dietary_preferences"`
}

// ParsedPlan is a stored plan. Content is the plan document as exported and
// is validated again on import.
type ParsedPlan struct {
	Category  string          `json:"category"`
	Title     string          `json:"title"`
	Active    bool            `json:"active"`
	CreatedAt string          `json:"created_at"`
	Content   json.RawMessage `json:"content"`
}

// ParsedDailyLog is one day of consumed items.
type ParsedDailyLog struct {
	Date  string       `json:"date"`
	Items []ParsedItem `json:"items"`
}

// ParsedItem is a single checked item.
type ParsedItem struct {
	Label      string  `json:"label"`
	Name       string  `json:"name"`
	Calories   float64 `json:"calories"`
	Protein    float64 `json:"protein"`
	RecordedAt string  `json:"recorded_at"`
}

// DetectFormat guesses the import format from file content. Returns empty
// string if unknown.
func DetectFormat(data []byte) Format {
	trimmed := data

	// Trim BOM and whitespace.
	if len(trimmed) >= 3 && trimmed[0] == 0xEF && trimmed[1] == 0xBB && trimmed[2] == 0xBF {
		trimmed = trimmed[3:]
	}
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\t' || trimmed[0] == '\n' || trimmed[0] == '\r') {
		trimmed = trimmed[1:]
	}

	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatFitCoachJSON
	}

	if containsAll(firstLineOf(trimmed), logColDate, logColLabel, logColItem) {
		return FormatLogCSV
	}
	return ""
}

// Parse detects the format of data and parses it.
func Parse(data []byte) (*ParsedFile, error) {
	switch DetectFormat(data) {
	case FormatFitCoachJSON:
		return ParseFitCoachJSON(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	case FormatLogCSV:
		return ParseLogCSV(bytes.NewReader(data))
	}
	return nil, ErrUnknownFormat
}

func firstLineOf(data []byte) string {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return string(data[:i])
		}
	}
	return string(data)
}

func containsAll(s string, substrings ...string) bool {
	for _, sub := range substrings {
		found := false
		for i := 0; i <= len(s)-len(sub); i++ {
			if s[i:i+len(sub)] == sub {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
