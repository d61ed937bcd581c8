package importers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Daily log CSV columns, one row per checked item:
// Date,Label,Item,Calories,Protein,Recorded At
const (
	logColDate       = "Date"
	logColLabel      = "Label"
	logColItem       = "Item"
	logColCalories   = "Calories"
	logColProtein    = "Protein"
	logColRecordedAt = "Recorded At"
)

// LogCSVHeader is the header row written by exports.
var LogCSVHeader = []string{logColDate, logColLabel, logColItem, logColCalories, logColProtein, logColRecordedAt}

// ParseLogCSV parses a daily log CSV. Rows are grouped by date in file
// order; a repeated (label, item) pair on the same date is kept once.
func ParseLogCSV(r io.Reader) (*ParsedFile, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("importers: read log csv: %w", err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("importers: log csv has no data rows")
	}

	// Build column index from header row.
	idx := make(map[string]int)
	for i, col := range records[0] {
		idx[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = i
	}

	for _, required := range []string{logColDate, logColLabel, logColItem} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("importers: log csv missing required column %q", required)
		}
	}

	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	pf := &ParsedFile{Format: FormatLogCSV}
	days := make(map[string]int) // date -> index in pf.DailyLogs
	seen := make(map[[3]string]bool)

	for n, row := range records[1:] {
		line := n + 2
		date := get(row, logColDate)
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, fmt.Errorf("importers: log csv line %d: invalid date %q", line, date)
		}
		item := ParsedItem{
			Label:      get(row, logColLabel),
			Name:       get(row, logColItem),
			RecordedAt: get(row, logColRecordedAt),
		}
		if item.Label == "" || item.Name == "" {
			return nil, fmt.Errorf("importers: log csv line %d: label and item are required", line)
		}
		if item.Calories, err = parseAmount(get(row, logColCalories)); err != nil {
			return nil, fmt.Errorf("importers: log csv line %d: calories: %w", line, err)
		}
		if item.Protein, err = parseAmount(get(row, logColProtein)); err != nil {
			return nil, fmt.Errorf("importers: log csv line %d: protein: %w", line, err)
		}

		key := [3]string{date, item.Label, item.Name}
		if seen[key] {
			continue
		}
		seen[key] = true

		i, ok := days[date]
		if !ok {
			i = len(pf.DailyLogs)
			days[date] = i
			pf.DailyLogs = append(pf.DailyLogs, ParsedDailyLog{Date: date})
		}
		pf.DailyLogs[i].Items = append(pf.DailyLogs[i].Items, item)
	}

	return pf, nil
}

// parseAmount reads a non-negative number; blank is zero.
func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value %q", s)
	}
	return v, nil
}
