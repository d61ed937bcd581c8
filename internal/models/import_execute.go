package models

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carpenike/fitcoach/internal/dailylog"
	"github.com/carpenike/fitcoach/internal/importers"
	"github.com/carpenike/fitcoach/internal/plan"
)

// ErrInvalidImport is returned when an import file holds data that cannot be
// stored. Nothing is written in that case.
var ErrInvalidImport = errors.New("invalid import")

// ImportResult summarizes what an import changed.
type ImportResult struct {
	ProfileImported bool `json:"profile_imported"`
	PlansImported   int  `json:"plans_imported"`
	PlansActivated  int  `json:"plans_activated"`
	LogsImported    int  `json:"logs_imported"`
	LogsReplaced    int  `json:"logs_replaced"`
}

type importPlan struct {
	record *Plan
	active bool
}

// ExecuteImport stores a parsed file for the user in one transaction.
//
// Plans are re-validated and appended to the history. An imported plan
// marked active becomes active only when the user has no active plan of
// that category; the newest such plan wins. Imported days replace the
// stored day wholesale, with totals recomputed from the items.
func ExecuteImport(db *sql.DB, userID int64, pf *importers.ParsedFile) (*ImportResult, error) {
	now := time.Now()

	var profile *Profile
	if pp := pf.Profile; pp != nil {
		profile = &Profile{
			UserID:              userID,
			Age:                 pp.Age,
			WeightKg:            pp.WeightKg,
			HeightCm:            pp.HeightCm,
			Gender:              pp.Gender,
			Goal:                pp.Goal,
			ActivityLevel:       pp.ActivityLevel,
			ExperienceLevel:     pp.ExperienceLevel,
			Equipment:           pp.Equipment,
			TrainingDaysPerWeek: pp.TrainingDaysPerWeek,
			DietaryPreferences:  pp.DietaryPreferences,
		}
		if err := profile.Validate(); err != nil {
			return nil, fmt.Errorf("%w: profile: %w", ErrInvalidImport, err)
		}
	}

	plans, err := buildImportPlans(userID, pf.Plans, now)
	if err != nil {
		return nil, err
	}
	logs, err := buildImportLogs(userID, pf.DailyLogs, now)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("models: begin import tx: %w", err)
	}
	defer tx.Rollback()

	// Phase 1: Profile.
	if profile != nil {
		if err := upsertProfile(tx, profile); err != nil {
			return nil, err
		}
		result.ProfileImported = true
	}

	// Phase 2: Plans. Pick at most one plan per category to activate.
	activate := make(map[plan.Category]*importPlan)
	for i := range plans {
		ip := &plans[i]
		if !ip.active {
			continue
		}
		cur := activate[ip.record.Category]
		if cur == nil || ip.record.CreatedAt.After(cur.record.CreatedAt) {
			activate[ip.record.Category] = ip
		}
	}
	for cat := range activate {
		var n int
		err := tx.QueryRow(
			`SELECT COUNT(*) FROM plans WHERE user_id = ? AND category = ? AND is_active = 1`,
			userID, cat,
		).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("models: import check active %s plan: %w", cat, err)
		}
		if n > 0 {
			delete(activate, cat)
		}
	}
	for i := range plans {
		ip := &plans[i]
		active := activate[ip.record.Category] == ip
		if _, err := insertPlan(tx, ip.record, active); err != nil {
			return nil, fmt.Errorf("models: import plan %q: %w", ip.record.Title, err)
		}
		result.PlansImported++
		if active {
			result.PlansActivated++
		}
	}

	// Phase 3: Daily logs.
	for _, l := range logs {
		var exists int
		err := tx.QueryRow(
			`SELECT COUNT(*) FROM daily_logs WHERE user_id = ? AND log_date = ?`, userID, l.Date,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("models: import check daily log %s: %w", l.Date, err)
		}
		if err := upsertDailyLog(tx, l); err != nil {
			return nil, err
		}
		if exists > 0 {
			result.LogsReplaced++
		} else {
			result.LogsImported++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("models: commit import tx: %w", err)
	}
	return result, nil
}

func buildImportPlans(userID int64, parsed []importers.ParsedPlan, now time.Time) ([]importPlan, error) {
	out := make([]importPlan, 0, len(parsed))
	for i, pp := range parsed {
		cat, err := plan.ParseCategory(pp.Category)
		if err != nil {
			return nil, fmt.Errorf("%w: plan %d: %w", ErrInvalidImport, i+1, err)
		}
		c, err := plan.Validate(string(pp.Content), cat)
		if err != nil {
			return nil, fmt.Errorf("%w: plan %d: %w", ErrInvalidImport, i+1, err)
		}
		record, err := NewPlan(userID, c)
		if err != nil {
			return nil, err
		}
		if title := strings.TrimSpace(pp.Title); title != "" {
			record.Title = title
		}
		record.CreatedAt = parseImportTime(pp.CreatedAt, now)
		out = append(out, importPlan{record: record, active: pp.Active})
	}
	return out, nil
}

func buildImportLogs(userID int64, parsed []importers.ParsedDailyLog, now time.Time) ([]*dailylog.Log, error) {
	out := make([]*dailylog.Log, 0, len(parsed))
	for _, pd := range parsed {
		date, err := dailylog.ParseDate(pd.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: daily log %q: %w", ErrInvalidImport, pd.Date, err)
		}
		l := &dailylog.Log{UserID: userID, Date: date, Items: []dailylog.Item{}, UpdatedAt: now}
		for _, pi := range pd.Items {
			it := dailylog.Item{
				Label:      strings.TrimSpace(pi.Label),
				Name:       strings.TrimSpace(pi.Name),
				Calories:   pi.Calories,
				Protein:    pi.Protein,
				RecordedAt: parseImportTime(pi.RecordedAt, now),
			}
			if it.Label == "" || it.Name == "" {
				return nil, fmt.Errorf("%w: daily log %s: item needs a label and a name", ErrInvalidImport, date)
			}
			if it.Calories < 0 || it.Protein < 0 {
				return nil, fmt.Errorf("%w: daily log %s: %s has negative amounts", ErrInvalidImport, date, it.Name)
			}
			if l.Has(it.Key()) {
				continue
			}
			l.Items = append(l.Items, it)
		}
		l.Totals = dailylog.Recompute(l.Items)
		out = append(out, l)
	}
	return out, nil
}

func parseImportTime(s string, def time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(s)); err == nil {
		return t
	}
	return def
}
