package models

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/carpenike/fitcoach/internal/importers"
	"github.com/carpenike/fitcoach/internal/plan"
)

// ExportVersion is written to every JSON export.
const ExportVersion = "1.0"

// --- Export Types ---

// ExportJSON is the top-level structure for a FitCoach JSON export.
type ExportJSON struct {
	Version    string `json:"version"`
	ExportedAt string `json:"exported_at"`
	Username   string `json:"username"`

	Profile   *ExportProfile   `json:"profile"`
	Plans     []ExportPlan     `json:"plans"`
	DailyLogs []ExportDailyLog `json:"daily_logs"`
}

// ExportProfile is the user's profile in a JSON export.
type ExportProfile struct {
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

// ExportPlan is one stored plan, active or not.
type ExportPlan struct {
	Category  plan.Category   `json:"category"`
	Title     string          `json:"title"`
	Active    bool            `json:"active"`
	CreatedAt string          `json:"created_at"`
	Content   json.RawMessage `json:"content"`
}

// ExportDailyLog is one logged day.
type ExportDailyLog struct {
	Date  string       `json:"date"`
	Items []ExportItem `json:"items"`
}

// ExportItem is one checked item of a day.
type ExportItem struct {
	Label      string  `json:"label"`
	Name       string  `json:"name"`
	Calories   float64 `json:"calories"`
	Protein    float64 `json:"protein"`
	RecordedAt string  `json:"recorded_at"`
}

// BuildExportJSON collects everything stored for the user.
func BuildExportJSON(db *sql.DB, userID int64) (*ExportJSON, error) {
	u, err := GetUserByID(db, userID)
	if err != nil {
		return nil, fmt.Errorf("models: export user %d: %w", userID, err)
	}

	export := &ExportJSON{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Username:   u.Username,
		Plans:      []ExportPlan{},
		DailyLogs:  []ExportDailyLog{},
	}

	p, err := GetProfile(db, userID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		export.Profile = &ExportProfile{
			Age:                 p.Age,
			WeightKg:            p.WeightKg,
			HeightCm:            p.HeightCm,
			Gender:              p.Gender,
			Goal:                p.Goal,
			ActivityLevel:       p.ActivityLevel,
			ExperienceLevel:     p.ExperienceLevel,
			Equipment:           p.Equipment,
			TrainingDaysPerWeek: p.TrainingDaysPerWeek,
			DietaryPreferences:  p.DietaryPreferences,
		}
	}

	for _, cat := range []plan.Category{plan.Workout, plan.Nutrition} {
		plans, err := ListPlans(db, userID, cat)
		if err != nil {
			return nil, err
		}
		for _, pl := range plans {
			export.Plans = append(export.Plans, ExportPlan{
				Category:  pl.Category,
				Title:     pl.Title,
				Active:    pl.IsActive,
				CreatedAt: pl.CreatedAt.UTC().Format(time.RFC3339),
				Content:   pl.Content,
			})
		}
	}

	logs, err := ListDailyLogs(db, userID, "0001-01-01", "9999-12-31")
	if err != nil {
		return nil, err
	}
	for _, l := range logs {
		day := ExportDailyLog{Date: l.Date, Items: []ExportItem{}}
		for _, it := range l.Items {
			day.Items = append(day.Items, ExportItem{
				Label:      it.Label,
				Name:       it.Name,
				Calories:   it.Calories,
				Protein:    it.Protein,
				RecordedAt: formatRecordedAt(it.RecordedAt),
			})
		}
		export.DailyLogs = append(export.DailyLogs, day)
	}

	return export, nil
}

// WriteExportJSON serializes the export to JSON and writes it.
func WriteExportJSON(w io.Writer, export *ExportJSON) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(export)
}

// WriteExportLogCSV writes the user's daily logs between from and to
// inclusive as CSV, one row per checked item.
func WriteExportLogCSV(w io.Writer, db *sql.DB, userID int64, from, to string) error {
	logs, err := ListDailyLogs(db, userID, from, to)
	if err != nil {
		return fmt.Errorf("models: list daily logs for csv: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(importers.LogCSVHeader); err != nil {
		return fmt.Errorf("models: write csv header: %w", err)
	}
	for _, l := range logs {
		for _, it := range l.Items {
			if err := cw.Write([]string{
				l.Date,
				it.Label,
				it.Name,
				strconv.FormatFloat(it.Calories, 'f', -1, 64),
				strconv.FormatFloat(it.Protein, 'f', -1, 64),
				formatRecordedAt(it.RecordedAt),
			}); err != nil {
				return fmt.Errorf("models: write csv row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatRecordedAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
